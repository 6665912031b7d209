package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeUnauthorized       = "unauthorized"
	ErrCodeUnsupportedVersion = "unsupported_version"
	ErrCodeBadRequest         = "bad_request"
	ErrCodeInvalidMessage     = "invalid_message"
	ErrCodeSelfMessage        = "self_message"
	ErrCodeEmptyText          = "empty_text"
	ErrCodeTextTooLong        = "text_too_long"
	ErrCodeRateLimited        = "rate_limited"
	ErrCodeForbidden          = "forbidden"
	ErrCodeDeliveryFailed     = "delivery_failed"
	ErrCodeInternal           = "internal_error"
)

var (
	ErrSelfMessage = errors.New("cannot message yourself")
	ErrNoPeer      = errors.New("other user is required")
	ErrInvalidPeer = errors.New("other user id is malformed")
	ErrEmptyText   = errors.New("text is required")
	ErrTextTooLong = errors.New("text is too long")
	ErrForbidden   = errors.New("forbidden")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
	// ClientID echoes the correlation token of the failed send, if any.
	ClientID string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// AsCoreError maps validation errors to their wire codes.
func AsCoreError(err error) *CoreError {
	var ce *CoreError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ce):
		return ce
	case errors.Is(err, ErrSelfMessage):
		return coreError(ErrCodeSelfMessage, err.Error())
	case errors.Is(err, ErrNoPeer), errors.Is(err, ErrInvalidPeer):
		return coreError(ErrCodeBadRequest, err.Error())
	case errors.Is(err, ErrEmptyText):
		return coreError(ErrCodeEmptyText, err.Error())
	case errors.Is(err, ErrTextTooLong):
		return coreError(ErrCodeTextTooLong, err.Error())
	case errors.Is(err, ErrForbidden):
		return coreError(ErrCodeForbidden, err.Error())
	default:
		return coreError(ErrCodeInternal, "internal error")
	}
}
