// Package failures defines the error taxonomy surfaced to conversion callers.
package failures

import (
	"errors"
	"fmt"
)

// Kind classifies a conversion failure.
type Kind string

const (
	KindUnknownFormat         Kind = "unknown_format"
	KindUnsupportedConversion Kind = "unsupported_conversion"
	KindEngineLoadFailed      Kind = "engine_load_failed"
	KindInputStagingFailed    Kind = "input_staging_failed"
	KindEncodingFailed        Kind = "encoding_failed"
	KindOutputReadFailed      Kind = "output_read_failed"
)

// Sentinels usable with errors.Is against any ConversionError of that kind.
var (
	ErrUnknownFormat         = &ConversionError{Kind: KindUnknownFormat}
	ErrUnsupportedConversion = &ConversionError{Kind: KindUnsupportedConversion}
	ErrEngineLoadFailed      = &ConversionError{Kind: KindEngineLoadFailed}
	ErrInputStagingFailed    = &ConversionError{Kind: KindInputStagingFailed}
	ErrEncodingFailed        = &ConversionError{Kind: KindEncodingFailed}
	ErrOutputReadFailed      = &ConversionError{Kind: KindOutputReadFailed}
)

// ConversionError is the single error type returned across the converter boundary.
type ConversionError struct {
	Kind    Kind
	Message string // user-facing
	Err     error  // underlying cause, kept for logs and errors.Is
}

func (e *ConversionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause.
func (e *ConversionError) Unwrap() error {
	return e.Err
}

// Is matches any ConversionError carrying the same kind.
func (e *ConversionError) Is(target error) bool {
	t, ok := target.(*ConversionError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Retryable reports whether a later attempt may succeed without changing the request.
func (e *ConversionError) Retryable() bool {
	return Retryable(e.Kind)
}

// Retryable is true only for engine load failures.
func Retryable(k Kind) bool {
	return k == KindEngineLoadFailed
}

var (
	UnknownFormat = func(format string) *ConversionError {
		return &ConversionError{Kind: KindUnknownFormat, Message: fmt.Sprintf("unknown format %q", format)}
	}
	UnsupportedConversion = func(from, to string) *ConversionError {
		return &ConversionError{Kind: KindUnsupportedConversion, Message: fmt.Sprintf("conversion from %s to %s is not supported", from, to)}
	}
	// InvalidOptions rejects quality/speed values outside their enumerations.
	InvalidOptions = func(err error) *ConversionError {
		return &ConversionError{Kind: KindUnsupportedConversion, Message: "invalid conversion options", Err: err}
	}
	EngineLoadFailed = func(err error) *ConversionError {
		return &ConversionError{Kind: KindEngineLoadFailed, Message: "engine not ready", Err: err}
	}
	InputStagingFailed = func(err error) *ConversionError {
		return &ConversionError{Kind: KindInputStagingFailed, Message: "failed to process input file", Err: err}
	}
	EncodingFailed = func(err error) *ConversionError {
		return &ConversionError{Kind: KindEncodingFailed, Message: "failed to convert file", Err: err}
	}
	OutputReadFailed = func(err error) *ConversionError {
		return &ConversionError{Kind: KindOutputReadFailed, Message: "failed to read converted file", Err: err}
	}
)

// KindOf extracts the kind of err, or "" when err is not a ConversionError.
func KindOf(err error) Kind {
	var ce *ConversionError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// Wrap maps err onto kind unless it already is a ConversionError, in which
// case it is returned unchanged so the first classification wins.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	var ce *ConversionError
	if errors.As(err, &ce) {
		return err
	}
	switch kind {
	case KindEngineLoadFailed:
		return EngineLoadFailed(err)
	case KindInputStagingFailed:
		return InputStagingFailed(err)
	case KindOutputReadFailed:
		return OutputReadFailed(err)
	case KindUnsupportedConversion:
		return &ConversionError{Kind: kind, Message: "conversion is not supported", Err: err}
	case KindUnknownFormat:
		return &ConversionError{Kind: kind, Message: "unknown format", Err: err}
	default:
		return EncodingFailed(err)
	}
}
