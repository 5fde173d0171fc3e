package sources

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("product not found")
	ErrTransient     = errors.New("transient failure")
	ErrFatal         = errors.New("fatal failure")
	ErrUnknownSource = errors.New("unknown source")
)

// ParseError reports a response that could not be mapped onto a Product.
type ParseError struct {
	Source string
	Field  string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: parse: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("%s: parse %s: %v", e.Source, e.Field, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Transient marks err as worth retrying (rate limits, bot challenges, timeouts).
func Transient(err error) error {
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Fatal marks err as a structural mismatch that retrying cannot fix.
func Fatal(err error) error {
	return fmt.Errorf("%w: %w", ErrFatal, err)
}

// NotFound marks err as a genuine absence at the source.
func NotFound(err error) error {
	return fmt.Errorf("%w: %w", ErrNotFound, err)
}

// Outcome is the classification of a single fetch attempt.
type Outcome int

const (
	Success Outcome = iota
	OutcomeNotFound
	OutcomeTransient
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeTransient:
		return "transient"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify maps an attempt error onto an Outcome. Errors that carry no marker
// come from the transport and are treated as transient; parse errors are fatal.
func Classify(err error) Outcome {
	var perr *ParseError
	switch {
	case err == nil:
		return Success
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrFatal), errors.As(err, &perr):
		return OutcomeFatal
	case errors.Is(err, context.Canceled):
		return OutcomeFatal
	default:
		return OutcomeTransient
	}
}
