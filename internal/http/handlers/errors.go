// Package handlers defines the error codes returned by the waitlist API.
//
// Codes are lowercase snake_case. Clients branch on the code, not on the
// message.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeInternal         = "internal_error"

	// Busy means the submission was not admitted; retry later.
	ErrCodeBusy = "busy"
	// Unavailable means the server is shutting down.
	ErrCodeUnavailable = "unavailable"
	// SubmitFailed is only returned when submissions await durability.
	ErrCodeSubmitFailed = "submit_failed"
)
