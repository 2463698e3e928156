package gateway

import (
	"bytes"
	"fmt"
	"net/http"
	"slices"

	"github.com/goccy/go-json"
)

// VerifyStatus accepts status when it is one of expected (200 if none are
// given). Otherwise it returns an *Error carrying the downstream status and
// the body's "detail" member. The body is never modified.
func VerifyStatus(body json.RawMessage, status int, expected ...int) error {
	if len(expected) == 0 {
		expected = []int{http.StatusOK}
	}
	if slices.Contains(expected, status) {
		return nil
	}
	return NewError(status, extractDetail(body))
}

func extractDetail(body json.RawMessage) string {
	if len(body) == 0 {
		return DefaultDetail
	}

	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return DefaultDetail
	}
	if len(payload.Detail) == 0 || string(payload.Detail) == "null" {
		return DefaultDetail
	}

	var detail string
	if err := json.Unmarshal(payload.Detail, &detail); err == nil {
		if detail == "" {
			return DefaultDetail
		}
		return detail
	}

	// Validation errors and similar arrive as objects or lists.
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload.Detail); err != nil {
		return DefaultDetail
	}
	return buf.String()
}

// Data returns the raw "data" member of an envelope body.
func Data(body json.RawMessage) (json.RawMessage, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedEnvelope)
	}

	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, fmt.Errorf("%w: missing data", ErrMalformedEnvelope)
	}
	return env.Data, nil
}

// DecodeData decodes the "data" member of an envelope body into T.
func DecodeData[T any](body json.RawMessage) (T, error) {
	var out T

	data, err := Data(body)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	return out, nil
}
