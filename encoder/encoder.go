// Package encoder maps a conversion request onto an ffmpeg argument list.
// Strategies are registered per target format.
package encoder

import (
	"fmt"
	"sync"

	"mediaconv/failures"
	"mediaconv/logger"
	"mediaconv/models"
)

// BuildFunc is the function signature for any argument builder. in and out
// are bare names inside the engine's private filesystem.
type BuildFunc func(from, to models.FormatDescriptor, opts models.ConversionOptions, in, out string) ([]string, error)

var (
	mu       sync.RWMutex
	registry = map[models.MediaFormat]BuildFunc{}
	defaults sync.Once
)

// Register adds or replaces the strategy for a target format.
func Register(format models.MediaFormat, fn BuildFunc) {
	mu.Lock()
	defer mu.Unlock()
	registry[format] = fn
	logger.Debugf("encoder [%s] registered", format)
}

// Get looks up the strategy for a target format.
func Get(format models.MediaFormat) (BuildFunc, bool) {
	RegisterDefaults()
	mu.RLock()
	defer mu.RUnlock()
	fn, ok := registry[format]
	return fn, ok
}

// RegisterDefaults installs the built-in strategies once, leaving any
// strategy already registered for a format in place.
func RegisterDefaults() {
	defaults.Do(func() {
		for _, f := range []models.MediaFormat{
			models.FormatMP4, models.FormatWebM, models.FormatMOV,
			models.FormatAVI, models.FormatFLV, models.FormatMKV,
		} {
			registerDefault(f, BuildVideo)
		}
		for f, enc := range imageEncoders {
			registerDefault(f, enc.build)
		}
		registerDefault(models.FormatSVG, BuildImageFallback)
	})
}

func registerDefault(format models.MediaFormat, fn BuildFunc) {
	mu.RLock()
	_, exists := registry[format]
	mu.RUnlock()
	if !exists {
		Register(format, fn)
	}
}

// Build produces the full argument list for one conversion. Cross-kind
// pairs are rejected; image targets without a strategy use the fallback.
func Build(from, to models.FormatDescriptor, opts models.ConversionOptions, in, out string) ([]string, error) {
	if from.Kind != to.Kind {
		return nil, failures.UnsupportedConversion(string(from.Format), string(to.Format))
	}
	if err := opts.Validate(); err != nil {
		return nil, failures.InvalidOptions(err)
	}
	opts = opts.Normalize()

	fn, ok := Get(to.Format)
	if !ok {
		switch to.Kind {
		case models.KindImage:
			fn = BuildImageFallback
		case models.KindVideo:
			fn = BuildVideo
		default:
			return nil, failures.EncodingFailed(fmt.Errorf("no encoder for %s", to.Format))
		}
	}
	return fn(from, to, opts, in, out)
}
