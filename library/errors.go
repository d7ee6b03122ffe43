package library

import "errors"

var (
	// ErrMalformedRecord is returned when a stored record cannot be turned back into an entity.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrUnknownBook is returned when a diary operation references a book that does not exist.
	ErrUnknownBook = errors.New("unknown book")

	// ErrPersistence is returned when the durable file could not be read or written.
	ErrPersistence = errors.New("persistence failure")

	// ErrInvalidDate is returned when a diary date cannot be stored as YYYY-MM-DD.
	ErrInvalidDate = errors.New("invalid diary date")
)
