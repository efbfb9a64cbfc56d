package models

import (
	"fmt"
	"strings"
	"time"
)

// Quality controls output fidelity.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// Speed controls encoder effort. Only meaningful for video.
type Speed string

const (
	SpeedFast   Speed = "fast"
	SpeedMedium Speed = "medium"
	SpeedSlow   Speed = "slow"
)

// ConversionOptions are the two independent tuning axes of a conversion.
// Zero values mean "use the default".
type ConversionOptions struct {
	Quality Quality `json:"quality,omitempty" yaml:"quality,omitempty"`
	Speed   Speed   `json:"speed,omitempty" yaml:"speed,omitempty"`
}

// DefaultOptions returns medium quality at fast speed.
func DefaultOptions() ConversionOptions {
	return ConversionOptions{Quality: QualityMedium, Speed: SpeedFast}
}

// Normalize fills in defaults for absent values.
func (o ConversionOptions) Normalize() ConversionOptions {
	if o.Quality == "" {
		o.Quality = QualityMedium
	}
	if o.Speed == "" {
		o.Speed = SpeedFast
	}
	return o
}

// Validate reports values outside the enumerations. Empty values are valid.
func (o ConversionOptions) Validate() error {
	switch o.Quality {
	case "", QualityLow, QualityMedium, QualityHigh:
	default:
		return fmt.Errorf("invalid quality %q (want low, medium or high)", o.Quality)
	}
	switch o.Speed {
	case "", SpeedFast, SpeedMedium, SpeedSlow:
	default:
		return fmt.Errorf("invalid speed %q (want fast, medium or slow)", o.Speed)
	}
	return nil
}

// ParseQuality accepts any casing of low/medium/high; empty yields "".
func ParseQuality(s string) (Quality, error) {
	q := Quality(strings.ToLower(strings.TrimSpace(s)))
	if err := (ConversionOptions{Quality: q}).Validate(); err != nil {
		return "", err
	}
	return q, nil
}

// ParseSpeed accepts any casing of fast/medium/slow; empty yields "".
func ParseSpeed(s string) (Speed, error) {
	sp := Speed(strings.ToLower(strings.TrimSpace(s)))
	if err := (ConversionOptions{Speed: sp}).Validate(); err != nil {
		return "", err
	}
	return sp, nil
}

// InputFile is the opaque payload handed over by the caller.
type InputFile struct {
	Name string
	Data []byte
}

// ConversionRequest describes one user-initiated conversion.
type ConversionRequest struct {
	File    InputFile
	From    MediaFormat
	To      MediaFormat
	Options ConversionOptions
}

// ConversionResult is the converted payload plus its naming metadata.
type ConversionResult struct {
	Data     []byte
	MimeType string
	FileName string
}

// Size returns the payload length in bytes.
func (r *ConversionResult) Size() int {
	if r == nil {
		return 0
	}
	return len(r.Data)
}

// Progress is one normalized progress sample.
type Progress struct {
	Ratio   float64       `json:"ratio"`   // 0..1
	Elapsed time.Duration `json:"elapsed"` // media time processed so far
}
