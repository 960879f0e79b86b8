// Package services defines the business logic for waitlist submissions,
// exports and stats. This file centralizes common service-level error values
// so that they can be consistently returned by service methods and checked by
// callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import "errors"

var (
	// ErrEmailRequired is returned when a submission has an empty email.
	ErrEmailRequired = errors.New("email is required")

	// ErrFieldTooLong is returned when a field exceeds what a single
	// spreadsheet cell can hold.
	ErrFieldTooLong = errors.New("field too long")

	// ErrInvalidCharacters is returned when a field carries control
	// characters or invalid UTF-8 that a spreadsheet cell cannot store.
	ErrInvalidCharacters = errors.New("field contains invalid characters")

	// ErrQueueBusy is returned when the append backlog is at capacity and the
	// submission was not admitted.
	ErrQueueBusy = errors.New("submission queue is busy")

	// ErrQueueClosed is returned while the service is shutting down and no
	// longer admits submissions.
	ErrQueueClosed = errors.New("submission queue is closed")

	// ErrStoreNotFound indicates that no submission has been stored yet, so
	// there is no file to export.
	ErrStoreNotFound = errors.New("store file not found")
)
