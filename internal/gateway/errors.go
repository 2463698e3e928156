package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrDownstreamUnreachable covers every transport failure talking to a
	// downstream service, timeouts included.
	ErrDownstreamUnreachable = errors.New("downstream unreachable")
	ErrDownstreamTimeout     = fmt.Errorf("%w: timed out", ErrDownstreamUnreachable)

	// ErrMalformedEnvelope means the downstream answered with an expected
	// status but the body is not a {"data": ...} envelope.
	ErrMalformedEnvelope = errors.New("malformed downstream envelope")
	ErrResponseTooLarge  = fmt.Errorf("%w: response too large", ErrMalformedEnvelope)
)

// DefaultDetail is used when a downstream error body carries no detail.
const DefaultDetail = "Unknown error."

// Error is a downstream status the gateway passes through to its client.
type Error struct {
	StatusCode int
	Detail     string
}

func NewError(status int, detail string) *Error {
	return &Error{StatusCode: status, Detail: detail}
}

func (e *Error) Error() string {
	return fmt.Sprintf("downstream status %d: %s", e.StatusCode, e.Detail)
}
