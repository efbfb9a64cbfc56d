package converter

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"

	"mediaconv/engine"
	"mediaconv/failures"
	"mediaconv/formats"
	"mediaconv/logger"
	"mediaconv/models"
	"mediaconv/progress"
)

// Service is the caller-facing surface: validate, acquire the shared engine,
// convert.
type Service struct {
	manager     *engine.Manager
	execTimeout time.Duration
	log         hclog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithExecTimeout bounds each engine run. Zero means no limit.
func WithExecTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.execTimeout = d }
}

// WithServiceLogger sets the service's logger.
func WithServiceLogger(l hclog.Logger) ServiceOption {
	return func(s *Service) { s.log = l }
}

// NewService wraps manager. The engine is loaded lazily by the first Convert
// or Warmup.
func NewService(manager *engine.Manager, opts ...ServiceOption) *Service {
	s := &Service{manager: manager, log: logger.Named("converter")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Convert converts file from one format to another. Invalid requests are
// rejected before the engine is touched.
func (s *Service) Convert(ctx context.Context, file models.InputFile, from, to models.MediaFormat, reporter progress.Reporter, opts models.ConversionOptions) (*models.ConversionResult, error) {
	req := models.ConversionRequest{File: file, From: from, To: to, Options: opts}

	start := time.Now()
	if _, _, err := formats.Validate(from, to); err != nil {
		observe(req, nil, start, err)
		return nil, err
	}
	if verr := opts.Validate(); verr != nil {
		err := failures.InvalidOptions(verr)
		observe(req, nil, start, err)
		return nil, err
	}

	h, err := s.manager.Acquire(ctx)
	if err != nil {
		observe(req, nil, start, err)
		s.log.Error("engine unavailable", "error", err)
		return nil, err
	}
	return run(ctx, h, req, reporter, runOptions{execTimeout: s.execTimeout, log: s.log})
}

// Warmup loads the engine without converting anything.
func (s *Service) Warmup(ctx context.Context) error {
	_, err := s.manager.Acquire(ctx)
	return err
}

// IsReady reports whether the engine is loaded.
func (s *Service) IsReady() bool {
	return s.manager.IsReady()
}

// State returns the engine lifecycle state.
func (s *Service) State() engine.State {
	return s.manager.State()
}

// Describe returns the descriptor of a supported format.
func (s *Service) Describe(f models.MediaFormat) (models.FormatDescriptor, error) {
	return formats.Describe(f)
}

// IsConversionSupported consults the static allow-list.
func (s *Service) IsConversionSupported(from, to models.MediaFormat) bool {
	return formats.IsConversionSupported(from, to)
}

// Close disposes the engine.
func (s *Service) Close() error {
	return s.manager.Dispose()
}
