package rag

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds. Every failure produced by the pipeline matches exactly one of
// these with errors.Is, plus ErrTimeout when the cause was a deadline.
var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrExtraction        = errors.New("extraction failed")
	ErrEmbedding         = errors.New("embedding failed")
	ErrStoreWrite        = errors.New("store write failed")
	ErrStoreRead         = errors.New("store read failed")
	ErrGeneration        = errors.New("generation failed")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrTimeout           = errors.New("timeout")

	// ErrDimensionMismatch accompanies ErrStoreWrite or ErrEmbedding when a
	// vector's length differs from the configured dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrPermanent marks a provider rejection that repeating will not fix,
	// such as bad credentials or an unknown model.
	ErrPermanent = errors.New("permanent failure")
)

// Error is a classified pipeline failure.
type Error struct {
	// Kind is one of the sentinel errors above.
	Kind error

	// Op names the operation that failed, e.g. "qdrant upsert".
	Op string

	// Err is the underlying cause. May be nil.
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes the kind, the cause, and ErrTimeout when the cause is a
// deadline or a network timeout.
func (e *Error) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
		if e.Kind != ErrTimeout && isTimeout(e.Err) {
			errs = append(errs, ErrTimeout)
		}
	}
	return errs
}

// Wrap classifies err as kind for operation op.
func Wrap(kind error, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf classifies a freshly formatted error as kind for operation op.
func Errorf(kind error, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Retryable reports whether repeating the failed call could succeed.
// Cancellation and caller mistakes are never retryable.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrDimensionMismatch),
		errors.Is(err, ErrPermanent),
		errors.Is(err, ErrUnsupportedFormat):
		return false
	}
	return true
}

// ContextError classifies a context failure noticed between calls. A
// deadline is ErrTimeout; a cancellation by the caller keeps no kind and
// still matches context.Canceled.
func ContextError(op string, err error) error {
	if isTimeout(err) {
		return Wrap(ErrTimeout, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func errEmbedCount(want, got int) error {
	return fmt.Errorf("expected %d vectors, got %d", want, got)
}
