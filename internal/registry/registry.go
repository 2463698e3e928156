// Package registry maps logical service names to their base URLs.
package registry

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"market-gateway/internal/config"
)

var ErrServiceNotFound = errors.New("service not found")

// Service describes one downstream service.
type Service struct {
	Name          string
	BaseURL       string
	ReadinessPath string
	// Timeout overrides the gateway default when non-zero.
	Timeout time.Duration
}

// Registry is built once and never mutated, so concurrent readers need no locking.
type Registry struct {
	byName map[string]Service
	order  []Service
}

func New(services []config.ServiceConfig) (*Registry, error) {
	r := &Registry{
		byName: make(map[string]Service, len(services)),
		order:  make([]Service, 0, len(services)),
	}

	for _, sc := range services {
		name := strings.TrimSpace(sc.Name)
		if name == "" {
			return nil, fmt.Errorf("service with url %q has no name", sc.URL)
		}

		key := strings.ToLower(name)
		if _, exists := r.byName[key]; exists {
			return nil, fmt.Errorf("duplicate service %q", name)
		}

		base, err := normalizeBaseURL(sc.URL)
		if err != nil {
			return nil, fmt.Errorf("service %q: %w", name, err)
		}

		svc := Service{
			Name:          name,
			BaseURL:       base,
			ReadinessPath: sc.ReadinessPath,
			Timeout:       time.Duration(sc.Timeout) * time.Second,
		}
		r.byName[key] = svc
		r.order = append(r.order, svc)
	}

	return r, nil
}

// Resolve looks a service up by name, ignoring case.
func (r *Registry) Resolve(name string) (Service, error) {
	svc, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Service{}, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	return svc, nil
}

// All returns the services in configuration order.
func (r *Registry) All() []Service {
	out := make([]Service, len(r.order))
	copy(out, r.order)
	return out
}

func normalizeBaseURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid base url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid base url %q: missing host", raw)
	}
	return strings.TrimRight(u.String(), "/"), nil
}
