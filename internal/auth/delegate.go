// Package auth validates bearer tokens by asking the auth service who
// they belong to. Tokens are never verified locally.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"market-gateway/internal/gateway"
	"market-gateway/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrUnauthenticated = errors.New("could not validate credentials")

const mePath = "/api/v1/auth/me"

// Caller is the part of the gateway the delegate needs.
type Caller interface {
	Call(ctx context.Context, service string, req gateway.Request, expected ...int) (*gateway.Response, error)
}

type Delegate struct {
	gw      Caller
	service string
	logger  *zap.Logger
}

func NewDelegate(gw Caller, service string, log *zap.Logger) *Delegate {
	return &Delegate{gw: gw, service: service, logger: log}
}

// Authenticate makes one introspection call to the auth service. Any
// answer other than 200 with a well formed identity is ErrUnauthenticated.
// Transport and registry failures are returned as they are.
func (d *Delegate) Authenticate(ctx context.Context, token string) (*models.Identity, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("%w: missing bearer token", ErrUnauthenticated)
	}

	resp, err := d.gw.Call(ctx, d.service, gateway.Request{
		Method: http.MethodGet,
		Path:   mePath,
		Header: http.Header{"Authorization": {"Bearer " + token}},
	})
	if err != nil {
		var gwErr *gateway.Error
		if errors.As(err, &gwErr) {
			d.logger.Debug("Token rejected by auth service",
				zap.Int("status_code", gwErr.StatusCode),
				zap.String("detail", gwErr.Detail),
			)
			return nil, fmt.Errorf("%w: auth service answered %d", ErrUnauthenticated, gwErr.StatusCode)
		}
		return nil, err
	}

	identity, err := gateway.DecodeData[models.Identity](resp.Body)
	if err != nil {
		d.logger.Warn("Auth service returned a malformed identity", zap.Error(err))
		return nil, fmt.Errorf("%w: malformed identity", ErrUnauthenticated)
	}
	if identity.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: identity has no id", ErrUnauthenticated)
	}

	return &identity, nil
}

// ExtractToken extracts token from Authorization header
func ExtractToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", fmt.Errorf("%w: authorization header is empty", ErrUnauthenticated)
	}

	const scheme = "bearer "
	if len(authHeader) < len(scheme) || !strings.EqualFold(authHeader[:len(scheme)], scheme) {
		return "", fmt.Errorf("%w: invalid authorization header format", ErrUnauthenticated)
	}

	token := strings.TrimSpace(authHeader[len(scheme):])
	if token == "" {
		return "", fmt.Errorf("%w: empty bearer token", ErrUnauthenticated)
	}
	return token, nil
}
