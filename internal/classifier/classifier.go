// Package classifier turns raw complaint text into a validated
// domain.Analysis. The learned model behind it is opaque; everything it
// returns is treated as untrusted and parsed strictly before use.
//
// Two implementations ship with the service:
//
//   - OpenAI: chat-completions gateway with a per-attempt timeout and bounded
//     exponential backoff on transient failures (timeouts, 408/429/5xx).
//   - Rules: deterministic keyword classifier over labeled exemplars, used
//     offline and in development.
//
// Every failure is reported as *Error and matches ErrClassification.
package classifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/tbourn/go-complaint-triage/internal/domain"
)

// ErrClassification matches every error returned by a Classifier.
var ErrClassification = errors.New("classification failed")

// Classifier maps complaint text to an analysis.
type Classifier interface {
	Classify(ctx context.Context, text string) (domain.Analysis, error)
}

// Func adapts a plain function to the Classifier interface.
type Func func(ctx context.Context, text string) (domain.Analysis, error)

// Classify calls f(ctx, text).
func (f Func) Classify(ctx context.Context, text string) (domain.Analysis, error) {
	return f(ctx, text)
}

// Error describes a failed classification.
type Error struct {
	// StatusCode is the upstream HTTP status, or 0 when no response was read.
	StatusCode int
	// Message is safe to show to API clients.
	Message string
	// Err is the underlying cause.
	Err error
	// Temporary reports whether another attempt could succeed.
	Temporary bool
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = ErrClassification.Error()
	}
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrClassification) hold for every *Error.
func (e *Error) Is(target error) bool { return target == ErrClassification }

// IsTemporary reports whether err is a classification error worth retrying.
func IsTemporary(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Temporary
}
