package registry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"market-gateway/internal/config"
)

func testServices() []config.ServiceConfig {
	return []config.ServiceConfig{
		{Name: "auth", URL: "http://auth:8000/", ReadinessPath: "/readiness"},
		{Name: "Market", URL: "https://market.internal", Timeout: 5},
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	reg, err := New(testServices())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		name    string
		lookup  string
		wantURL string
	}{
		{name: "exact", lookup: "auth", wantURL: "http://auth:8000"},
		{name: "case insensitive", lookup: "AUTH", wantURL: "http://auth:8000"},
		{name: "configured upper case", lookup: "market", wantURL: "https://market.internal"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc, err := reg.Resolve(tt.lookup)
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", tt.lookup, err)
			}
			if svc.BaseURL != tt.wantURL {
				t.Errorf("BaseURL = %q, want %q", svc.BaseURL, tt.wantURL)
			}
		})
	}
}

func TestResolveTimeout(t *testing.T) {
	t.Parallel()

	reg, err := New(testServices())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	svc, err := reg.Resolve("market")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if svc.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", svc.Timeout)
	}
}

func TestResolveNotFound(t *testing.T) {
	t.Parallel()

	reg, err := New(testServices())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = reg.Resolve("billing")
	if !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("Resolve() error = %v, want ErrServiceNotFound", err)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		services []config.ServiceConfig
	}{
		{name: "duplicate", services: []config.ServiceConfig{
			{Name: "auth", URL: "http://a"},
			{Name: "AUTH", URL: "http://b"},
		}},
		{name: "empty name", services: []config.ServiceConfig{{Name: " ", URL: "http://a"}}},
		{name: "relative url", services: []config.ServiceConfig{{Name: "auth", URL: "/auth"}}},
		{name: "bad scheme", services: []config.ServiceConfig{{Name: "auth", URL: "ftp://auth"}}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(tt.services); err == nil {
				t.Fatal("New() expected error")
			}
		})
	}
}

func TestAllKeepsOrder(t *testing.T) {
	t.Parallel()

	reg, err := New(testServices())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	all := reg.All()
	if len(all) != 2 || all[0].Name != "auth" || all[1].Name != "Market" {
		t.Fatalf("All() = %+v", all)
	}

	all[0].BaseURL = "http://mutated"
	if svc, _ := reg.Resolve("auth"); svc.BaseURL != "http://auth:8000" {
		t.Error("All() must return a copy")
	}
}

func TestResolveConcurrent(t *testing.T) {
	t.Parallel()

	reg, err := New(testServices())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := reg.Resolve("market"); err != nil {
				t.Errorf("Resolve() error = %v", err)
			}
		}()
	}
	wg.Wait()
}
