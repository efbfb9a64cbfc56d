// Package converter orchestrates a single conversion on a loaded engine:
// stage the input, run the engine, collect the output, clean up.
package converter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"mediaconv/encoder"
	"mediaconv/engine"
	"mediaconv/failures"
	"mediaconv/formats"
	"mediaconv/logger"
	"mediaconv/metrics"
	"mediaconv/models"
	"mediaconv/progress"
	"mediaconv/utils"
)

// Synthetic progress for images, where the engine reports no duration.
const (
	imageStartPulse = 0.1
	imageDonePulse  = 1.0
)

// Convert runs req on the engine behind h. At most one conversion runs per
// handle; others wait their turn. Staged files are removed on every exit.
func Convert(ctx context.Context, h *engine.Handle, req models.ConversionRequest, reporter progress.Reporter) (*models.ConversionResult, error) {
	return run(ctx, h, req, reporter, runOptions{log: logger.Named("converter")})
}

type runOptions struct {
	execTimeout time.Duration
	log         hclog.Logger
}

func run(ctx context.Context, h *engine.Handle, req models.ConversionRequest, reporter progress.Reporter, o runOptions) (result *models.ConversionResult, err error) {
	start := time.Now()
	id := uuid.NewString()
	log := o.log.With("conversion", id, "from", req.From, "to", req.To)

	defer func() {
		observe(req, result, start, err)
		if err != nil {
			log.Error("conversion failed", "kind", failures.KindOf(err), "error", err)
			return
		}
		log.Info("conversion finished", "bytes_in", len(req.File.Data), "bytes_out", result.Size(), "elapsed", time.Since(start))
	}()

	src, dst, err := formats.Validate(req.From, req.To)
	if err != nil {
		return nil, err
	}
	if err := req.Options.Validate(); err != nil {
		return nil, failures.InvalidOptions(err)
	}
	if h == nil {
		return nil, failures.EngineLoadFailed(errors.New("no engine handle"))
	}

	base := utils.SafeFileName(req.File.Name)
	c := &conversion{
		req:      req,
		src:      src,
		dst:      dst,
		inName:   base + src.Extension,
		outName:  base + dst.Extension,
		reporter: progress.Monotonic(reporter),
		timeout:  o.execTimeout,
		log:      log,
	}

	err = h.Do(ctx, func(ctx context.Context, e engine.Engine) error {
		res, err := c.run(ctx, e)
		result = res
		return err
	})
	if err != nil {
		return nil, failures.Wrap(failures.KindEncodingFailed, err)
	}
	return result, nil
}

type conversion struct {
	req      models.ConversionRequest
	src, dst models.FormatDescriptor
	inName   string
	outName  string
	reporter progress.Reporter
	timeout  time.Duration
	log      hclog.Logger
}

func (c *conversion) isImage() bool {
	return c.dst.Kind == models.KindImage
}

func (c *conversion) run(ctx context.Context, e engine.Engine) (*models.ConversionResult, error) {
	unsubscribe := e.Subscribe(engine.ListenerFuncs{
		Progress: func(ev engine.ProgressEvent) {
			if !c.isImage() {
				c.reporter.Report(models.Progress{Ratio: ev.Progress, Elapsed: ev.Time})
			}
		},
		Log: func(ev engine.LogEvent) {
			c.log.Trace("engine output", "line", ev.Message)
		},
	})
	defer unsubscribe()
	defer c.cleanup(e)

	if c.isImage() {
		c.reporter.Report(models.Progress{Ratio: imageStartPulse})
	}

	c.log.Debug("staging input", "name", c.inName, "bytes", len(c.req.File.Data))
	if err := e.WriteFile(c.inName, c.req.File.Data); err != nil {
		return nil, failures.InputStagingFailed(err)
	}

	args, err := encoder.Build(c.src, c.dst, c.req.Options, c.inName, c.outName)
	if err != nil {
		return nil, failures.Wrap(failures.KindEncodingFailed, err)
	}

	execCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if err := e.Exec(execCtx, args); err != nil {
		return nil, failures.EncodingFailed(err)
	}

	if err := c.verifyOutput(e); err != nil {
		return nil, failures.EncodingFailed(err)
	}
	if c.isImage() {
		c.reporter.Report(models.Progress{Ratio: imageDonePulse})
	}

	data, err := e.ReadFile(c.outName)
	if err != nil {
		return nil, failures.OutputReadFailed(err)
	}
	return &models.ConversionResult{
		Data:     data,
		MimeType: c.dst.MimeType,
		FileName: utils.ReplaceExt(c.req.File.Name, c.dst.Extension),
	}, nil
}

func (c *conversion) verifyOutput(e engine.Engine) error {
	files, err := e.ListDir("")
	if err != nil {
		return fmt.Errorf("list engine files: %w", err)
	}
	for _, f := range files {
		if f.Name == c.outName {
			if f.Size <= 0 {
				return fmt.Errorf("output %s is empty", c.outName)
			}
			return nil
		}
	}
	return fmt.Errorf("output %s was not produced", c.outName)
}

// cleanup removes whichever staged files exist. Failures are logged and
// never replace the conversion's own result. Engine filesystem calls take no
// context, so caller cancellation cannot cut this short.
func (c *conversion) cleanup(e engine.Engine) {
	present := map[string]bool{}
	files, err := e.ListDir("")
	if err != nil {
		c.log.Warn("cleanup: listing failed, deleting blindly", "error", err)
		present[c.inName], present[c.outName] = true, true
	}
	for _, f := range files {
		present[f.Name] = true
	}
	for _, name := range []string{c.inName, c.outName} {
		if !present[name] {
			continue
		}
		if err := e.DeleteFile(name); err != nil {
			metrics.StagedFilesCleanupFailures.Inc()
			c.log.Warn("cleanup: failed to delete staged file", "name", name, "error", err)
		}
	}
}

func observe(req models.ConversionRequest, result *models.ConversionResult, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(failures.KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	kind := "unknown"
	if formats.IsImageFormat(req.From) {
		kind = string(models.KindImage)
	} else if formats.IsVideoFormat(req.From) {
		kind = string(models.KindVideo)
	}
	metrics.ConversionsTotal.WithLabelValues(string(req.From), string(req.To), outcome).Inc()
	metrics.ConversionDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	metrics.ConversionBytes.WithLabelValues("in").Add(float64(len(req.File.Data)))
	if err == nil {
		metrics.ConversionBytes.WithLabelValues("out").Add(float64(result.Size()))
	}
}
