package chat

import "errors"

// ErrMessageRequired is returned when a request carries no message.
var ErrMessageRequired = errors.New("message is required")

// UpstreamError wraps any failure of the AI provider.
type UpstreamError struct {
	SessionID string
	Err       error
}

func (e *UpstreamError) Error() string {
	return e.Err.Error()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
