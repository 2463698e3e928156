// Package gateway forwards calls to downstream services and normalizes
// their answers into the gateway's response contract.
package gateway

import (
	"context"
	"fmt"

	"market-gateway/internal/registry"
)

type Resolver interface {
	Resolve(name string) (registry.Service, error)
}

type Forwarder interface {
	Forward(ctx context.Context, svc registry.Service, req Request) (*Response, error)
}

// Gateway resolves, forwards and verifies. Every handler that talks to a
// downstream service goes through Call.
type Gateway struct {
	resolver  Resolver
	forwarder Forwarder
}

func New(resolver Resolver, forwarder Forwarder) *Gateway {
	return &Gateway{resolver: resolver, forwarder: forwarder}
}

// Call sends req to the named service. A status outside expected (200 when
// empty) comes back as an *Error. The response is returned in both cases.
func (g *Gateway) Call(ctx context.Context, service string, req Request, expected ...int) (*Response, error) {
	svc, err := g.resolver.Resolve(service)
	if err != nil {
		return nil, err
	}

	resp, err := g.forwarder.Forward(ctx, svc, req)
	if err != nil {
		return nil, fmt.Errorf("%s %s%s: %w", req.Method, svc.Name, req.Path, err)
	}

	if err := VerifyStatus(resp.Body, resp.StatusCode, expected...); err != nil {
		return resp, err
	}
	return resp, nil
}
