// Package services holds the complaint pipeline: input validation and the
// submission orchestrator that drives a complaint from raw text to a stored,
// classified record.
//
// This file centralizes service-level error values. Translation into
// user-facing messages or HTTP status codes is performed by the handler
// layer.
package services

import (
	"errors"
	"fmt"
)

// Validation errors.
var (
	// ErrEmptyComplaint is returned when the complaint text is missing or
	// whitespace-only.
	ErrEmptyComplaint = errors.New("complaint text is required")

	// ErrComplaintTooLong is returned when the text exceeds the configured
	// rune limit.
	ErrComplaintTooLong = errors.New("complaint text too long")

	// ErrInvalidText is returned for text that is not valid UTF-8 or contains
	// NUL bytes.
	ErrInvalidText = errors.New("complaint text is not valid UTF-8 text")

	// ErrInvalidEmail is returned when a supplied user_email is not an
	// address.
	ErrInvalidEmail = errors.New("user_email is not a valid email address")

	// ErrInvalidCursor is returned when a list cursor cannot be decoded.
	ErrInvalidCursor = errors.New("invalid cursor")
)

// ErrComplaintNotFound indicates that the requested complaint does not exist.
var ErrComplaintNotFound = errors.New("complaint not found")

// Failure kinds. errors.Is(err, ErrValidation) and friends hold for any
// *SubmissionError of that kind.
var (
	ErrValidation     = errors.New("validation error")
	ErrClassification = errors.New("classification error")
	ErrStore          = errors.New("store error")
)

// Stage is a state of the submission state machine.
type Stage string

const (
	StageReceived   Stage = "Received"
	StageValidated  Stage = "Validated"
	StageClassified Stage = "Classified"
	StagePersisted  Stage = "Persisted"
	StageCompleted  Stage = "Completed"
	StageFailed     Stage = "Failed"
)

// SubmissionError reports which stage a submission failed at and why. Stage
// is the last state reached before the failing transition.
type SubmissionError struct {
	Stage Stage
	Kind  error // ErrValidation, ErrClassification, or ErrStore
	Err   error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%v after %s: %v", e.Kind, e.Stage, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *SubmissionError) Unwrap() []error { return []error{e.Kind, e.Err} }
