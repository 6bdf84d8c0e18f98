package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrPreferencesNotFound  = errors.New("no alert preferences configured")
	ErrChannelNotConfigured = errors.New("channel not configured")
	ErrDestinationMissing   = errors.New("destination not set")
	ErrUnknownChannel       = errors.New("unknown channel")
	ErrInvalidDeal          = errors.New("invalid deal")
)

// ValidationError reports a single rejected field of a user update.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
