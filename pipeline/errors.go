package pipeline

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

var (
	// ErrNilHeaders fails a call whose transport reported nil headers.
	ErrNilHeaders = errors.New("pipeline: transport reported nil response headers")
	// ErrNoHeaders fails a call whose transport completed before
	// reporting headers.
	ErrNoHeaders = errors.New("pipeline: transport completed without response headers")
	// ErrDuplicateHeaders fails a call whose transport reported headers
	// twice.
	ErrDuplicateHeaders = errors.New("pipeline: transport reported response headers twice")
	// ErrAborted stands in for a nil error passed to Abort.
	ErrAborted = errors.New("pipeline: exchange aborted")
	// ErrNoEncoder fails a call with an entity when no encoder is set.
	ErrNoEncoder = errors.New("pipeline: request has an entity but no encoder is configured")
	// ErrNilDecoder fails a call whose decoder factory returned nil.
	ErrNilDecoder = errors.New("pipeline: decoder factory returned nil")
)

// PanicError carries a recovered panic value that was not an error.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("pipeline: panic: %v", e.Value)
}

// SuppressedError is a failure raised while an earlier failure was being
// handled. It formats and unwraps as Err; the earlier failures are kept in
// Suppressed.
type SuppressedError struct {
	Err        error
	Suppressed []error
}

func (e *SuppressedError) Error() string {
	msgs := make([]string, len(e.Suppressed))
	for i, s := range e.Suppressed {
		msgs[i] = s.Error()
	}
	return fmt.Sprintf("%v (suppressed: %s)", e.Err, strings.Join(msgs, "; "))
}

func (e *SuppressedError) Unwrap() error {
	return e.Err
}

// Suppressed returns the failures err superseded.
func Suppressed(err error) []error {
	var s *SuppressedError
	if errors.As(err, &s) {
		return s.Suppressed
	}
	return nil
}

// combine decides what to forward when a handler failed with raised while
// handling cause. A raised error that already wraps cause is forwarded as
// is; otherwise raised is forwarded with cause suppressed.
func combine(cause, raised error) error {
	if errors.Is(raised, cause) {
		return raised
	}
	return &SuppressedError{Err: raised, Suppressed: []error{cause}}
}

// capture runs fn and converts a panic into an error.
func capture(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = asError(r)
		}
	}()
	fn()
	return nil
}

func asError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return &PanicError{Value: r, Stack: debug.Stack()}
}
