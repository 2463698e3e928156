package middleware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"market-gateway/internal/auth"
	"market-gateway/internal/config"
	"market-gateway/internal/gateway"
	"market-gateway/internal/models"
	"market-gateway/internal/ratelimit"
	"market-gateway/internal/registry"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type stubAdmitter struct {
	err     error
	clients []string
}

func (s *stubAdmitter) Admit(_ context.Context, identity string) error {
	s.clients = append(s.clients, identity)
	return s.err
}

type stubAuthenticator struct {
	identity *models.Identity
	tokens   []string
}

func (s *stubAuthenticator) Authenticate(_ context.Context, token string) (*models.Identity, error) {
	s.tokens = append(s.tokens, token)
	if token == "" || s.identity == nil {
		return nil, auth.ErrUnauthenticated
	}
	return s.identity, nil
}

func newTestApp(handlers ...func(app *fiber.App)) *fiber.App {
	log := zap.NewNop()
	errHandler := ErrorHandler(log)
	app := fiber.New(fiber.Config{ErrorHandler: errHandler})
	app.Use(RequestLogger(log, errHandler), Recover(log))
	for _, h := range handlers {
		h(app)
	}
	return app
}

func decodeDetail(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body models.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Detail
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   int
		wantDetail string
	}{
		{"rate limited", fmt.Errorf("%w: x", ratelimit.ErrLimitExceeded), 429, "Surpassed rate limit."},
		{"store down", ratelimit.ErrStoreUnavailable, 503, "Rate limiter is unavailable."},
		{"unauthenticated", auth.ErrUnauthenticated, 401, "Could not validate credentials."},
		{"downstream status", fmt.Errorf("wrapped: %w", gateway.NewError(404, "User not found.")), 404, "User not found."},
		{"timeout", gateway.ErrDownstreamTimeout, 503, "Service is timed out."},
		{"unreachable", fmt.Errorf("%w: refused", gateway.ErrDownstreamUnreachable), 503, "Service is unavailable."},
		{"not configured", registry.ErrServiceNotFound, 500, "Service is not configured."},
		{"malformed", gateway.ErrMalformedEnvelope, 500, "Service error."},
		{"fiber error", fiber.NewError(422, "keyword is required."), 422, "keyword is required."},
		{"unknown", errors.New("secret internals"), 500, "Internal server error."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, detail := Translate(tt.err)
			if code != tt.wantCode || detail != tt.wantDetail {
				t.Errorf("Translate() = %d %q, want %d %q", code, detail, tt.wantCode, tt.wantDetail)
			}
		})
	}
}

func TestErrorHandlerResponse(t *testing.T) {
	app := newTestApp(func(app *fiber.App) {
		app.Get("/unauth", func(c *fiber.Ctx) error { return auth.ErrUnauthenticated })
		app.Get("/panic", func(c *fiber.Ctx) error { panic("boom") })
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/unauth", nil), -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
	if got := resp.Header.Get("WWW-Authenticate"); got != "Bearer" {
		t.Errorf("WWW-Authenticate = %q", got)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	if detail := decodeDetail(t, resp); detail != "Could not validate credentials." {
		t.Errorf("detail = %q", detail)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/panic", nil), -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	if detail := decodeDetail(t, resp); detail != "Internal server error." {
		t.Errorf("detail = %q", detail)
	}
}

func TestMediatorPublic(t *testing.T) {
	adm := &stubAdmitter{}
	authn := &stubAuthenticator{}
	m := NewMediator(gateway.NewPipeline(adm, authn), zap.NewNop())

	app := newTestApp(func(app *fiber.App) {
		app.Get("/health", m.Public(), func(c *fiber.Ctx) error { return c.SendString("ok") })
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(adm.clients) != 1 || adm.clients[0] != "203.0.113.7" {
		t.Errorf("admitted clients = %v", adm.clients)
	}
	if len(authn.tokens) != 0 {
		t.Errorf("public route authenticated: %v", authn.tokens)
	}
}

func TestMediatorProtected(t *testing.T) {
	id := &models.Identity{ID: uuid.New(), Email: "john@doe.com"}
	authn := &stubAuthenticator{identity: id}
	m := NewMediator(gateway.NewPipeline(nil, authn), zap.NewNop())

	reached := 0
	app := newTestApp(func(app *fiber.App) {
		app.Get("/me", m.Protected(), func(c *fiber.Ctx) error {
			reached++
			return c.JSON(models.Envelope{Data: IdentityFrom(c)})
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body = %s", resp.StatusCode, body)
	}
	var env struct {
		Data models.Identity `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil || env.Data.ID != id.ID {
		t.Errorf("body = %s, err = %v", body, err)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/me", nil), -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status without token = %d, want 401", resp.StatusCode)
	}
	if reached != 1 {
		t.Errorf("handler reached %d times, want 1", reached)
	}
	if authn.tokens[len(authn.tokens)-1] != "" {
		t.Errorf("missing header should give an empty token, got %q", authn.tokens[len(authn.tokens)-1])
	}
}

func TestMediatorRateLimited(t *testing.T) {
	adm := &stubAdmitter{err: ratelimit.ErrLimitExceeded}
	authn := &stubAuthenticator{}
	m := NewMediator(gateway.NewPipeline(adm, authn), zap.NewNop())

	app := newTestApp(func(app *fiber.App) {
		app.Get("/stocks", m.Protected(), func(c *fiber.Ctx) error {
			t.Error("handler must not run")
			return nil
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/stocks", nil)
	req.Header.Set("Authorization", "Bearer good")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", resp.StatusCode)
	}
	if detail := decodeDetail(t, resp); detail != "Surpassed rate limit." {
		t.Errorf("detail = %q", detail)
	}
	if len(authn.tokens) != 0 {
		t.Error("rate limited request reached the authenticator")
	}
}

func TestCorsPreflight(t *testing.T) {
	cfg := config.CORSConfig{
		AllowedOrigins: []string{"http://localhost:4200"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}
	app := newTestApp(func(app *fiber.App) {
		app.Use(Cors(cfg))
		app.Get("/api/v1/stocks", func(c *fiber.Ctx) error { return c.SendString("ok") })
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/stocks", nil)
	req.Header.Set("Origin", "http://localhost:4200")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:4200" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/stocks", nil)
	req.Header.Set("Origin", "http://localhost:4200")
	resp, err = app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:4200" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}
