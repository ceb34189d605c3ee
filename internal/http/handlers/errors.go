// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are stable, lowercase snake_case strings returned next to the
// human-readable `error` message. Clients branch on the code; the message is
// safe to display.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "validation_failed",
//	  "error": "Complaint text is required"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Submission pipeline:
	ErrCodeValidationFailed     = "validation_failed"
	ErrCodeClassificationFailed = "classification_failed"
	ErrCodeStoreFailed          = "store_failed"

	// Reads:
	ErrCodeInvalidCursor = "invalid_cursor"
	ErrCodeListFailed    = "list_failed"
)
