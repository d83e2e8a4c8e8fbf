package models

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("not a participant of this conversation")
	ErrValidation   = errors.New("validation failed")
)

// Error codes reported to clients over both REST and the live connection.
const (
	CodeNotFound     = "not_found"
	CodeUnauthorized = "unauthorized"
	CodeValidation   = "validation"
	CodeInternal     = "internal"
)

// Code classifies err into one of the client-visible error codes. Store and
// transport failures all collapse into CodeInternal.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrValidation):
		return CodeValidation
	default:
		return CodeInternal
	}
}
