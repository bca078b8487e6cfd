// Package domain defines the core business entities and errors.
package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrUnauthorized is returned when an operation is rejected before any
	// scheduling occurs, e.g. a manual regenerate on a card the caller does
	// not own.
	ErrUnauthorized = errors.New("unauthorized operation")

	// ErrCardDeleted is returned when an operation targets a soft-deleted
	// card. Deleted cards are excluded from all enrichment scheduling.
	ErrCardDeleted = errors.New("card is deleted")
)
