package envelope

import "fmt"

// EnvelopeError is the typed error hierarchy for envelope encode/decode
// failures, mirroring commbus's CommBusError: a Code, a human message, and
// an optional wrapped cause for errors.Is/errors.As.
type EnvelopeError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *EnvelopeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("envelope: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("envelope: %s", e.Message)
}

func (e *EnvelopeError) Unwrap() error {
	return e.Cause
}

// NewInvalidMessageError reports a malformed frame (a truncated or
// unreadable header, body or payload field).
func NewInvalidMessageError(msg string, cause error) *EnvelopeError {
	return &EnvelopeError{Code: InvalidMessage, Message: msg, Cause: cause}
}

// NewInvalidPayloadError reports a Payload field whose encoding is
// inconsistent (e.g. a field that consumed a different number of bytes
// than its declared length).
func NewInvalidPayloadError(msg string, cause error) *EnvelopeError {
	return &EnvelopeError{Code: InvalidPayload, Message: msg, Cause: cause}
}

// NewEnvelopeTooLargeError reports a frame exceeding config.MaxEnvelopeBytes.
func NewEnvelopeTooLargeError(size, max int) *EnvelopeError {
	return &EnvelopeError{
		Code:    InvalidMessage,
		Message: fmt.Sprintf("envelope of %d bytes exceeds maximum %d bytes", size, max),
	}
}
