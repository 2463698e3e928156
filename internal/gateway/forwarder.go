package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"market-gateway/internal/config"
	"market-gateway/internal/registry"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Request is one outbound call to a downstream service.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Query  url.Values
	// Body is encoded as JSON when non-nil.
	Body any
}

type Response struct {
	StatusCode int
	Header     http.Header
	// Body is nil when the downstream sent nothing or sent non-JSON.
	Body json.RawMessage
}

// HTTPForwarder executes downstream calls over one pooled client shared by
// every request. Each service gets its own circuit breaker.
type HTTPForwarder struct {
	logger          *zap.Logger
	client          *http.Client
	timeout         time.Duration
	maxBody         int64
	circuitBreakers map[string]*gobreaker.CircuitBreaker
}

const (
	defaultTimeout          = 30 * time.Second
	defaultMaxResponseBytes = 10 << 20
)

func NewHTTPForwarder(cfg *config.Config, services []registry.Service, log *zap.Logger) *HTTPForwarder {
	timeout := cfg.Gateway.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	maxBody := cfg.Gateway.MaxResponseBytes
	if maxBody <= 0 {
		maxBody = defaultMaxResponseBytes
	}

	f := &HTTPForwarder{
		logger:          log,
		timeout:         timeout,
		maxBody:         maxBody,
		circuitBreakers: make(map[string]*gobreaker.CircuitBreaker),
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}

	if cfg.CircuitBreaker.Enabled {
		for _, svc := range services {
			f.circuitBreakers[strings.ToLower(svc.Name)] = newBreaker(svc.Name, cfg.CircuitBreaker, log)
		}
	}

	f.logger.Info("Forwarder initialized",
		zap.Int("services", len(services)),
		zap.Bool("circuit_breaker", cfg.CircuitBreaker.Enabled),
		zap.Duration("timeout", f.timeout),
	)

	return f
}

func newBreaker(name string, cfg config.CircuitBreakerConfig, log *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.MinRequests && failureRatio >= cfg.FailureRatio
		},
		// Only transport failures count against a service.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrDownstreamUnreachable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state changed",
				zap.String("service", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

// Forward sends req to svc and returns whatever the service answered. It
// never judges the status code.
func (f *HTTPForwarder) Forward(ctx context.Context, svc registry.Service, req Request) (*Response, error) {
	cb, ok := f.circuitBreakers[strings.ToLower(svc.Name)]
	if !ok {
		return f.executeRequest(ctx, svc, req)
	}

	result, err := cb.Execute(func() (interface{}, error) {
		return f.executeRequest(ctx, svc, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			f.logger.Warn("Circuit breaker rejected request",
				zap.String("service", svc.Name),
				zap.Error(err),
			)
			return nil, fmt.Errorf("%w: %s: %w", ErrDownstreamUnreachable, svc.Name, err)
		}
		return nil, err
	}

	return result.(*Response), nil
}

func (f *HTTPForwarder) executeRequest(ctx context.Context, svc registry.Service, req Request) (*Response, error) {
	timeout := f.timeout
	if svc.Timeout > 0 {
		timeout = svc.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	target := svc.BaseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	outReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create downstream request: %w", err)
	}

	copyHeaders(req.Header, outReq.Header)
	outReq.Header.Set("Accept", "application/json")
	if body != nil {
		outReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := f.client.Do(outReq)
	if err != nil {
		return nil, f.transportError(svc, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, f.transportError(svc, err)
	}
	if int64(len(raw)) > f.maxBody {
		f.logger.Error("Downstream response too large",
			zap.String("service", svc.Name),
			zap.Int64("limit", f.maxBody),
		)
		return nil, fmt.Errorf("%w: %s sent more than %d bytes", ErrResponseTooLarge, svc.Name, f.maxBody)
	}

	f.logger.Debug("Request forwarded",
		zap.String("service", svc.Name),
		zap.String("method", method),
		zap.String("path", req.Path),
		zap.Int("status_code", resp.StatusCode),
		zap.Int("response_size", len(raw)),
		zap.Duration("latency", time.Since(start)),
	)

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       f.decodeBody(svc, resp, raw),
	}, nil
}

func (f *HTTPForwarder) decodeBody(svc registry.Service, resp *http.Response, raw []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	if !json.Valid(trimmed) {
		f.logger.Warn("Discarding non-JSON response body",
			zap.String("service", svc.Name),
			zap.Int("status_code", resp.StatusCode),
			zap.String("content_type", resp.Header.Get("Content-Type")),
		)
		return nil
	}
	return json.RawMessage(trimmed)
}

func (f *HTTPForwarder) transportError(svc registry.Service, err error) error {
	// The caller went away; the downstream is not at fault.
	if errors.Is(err, context.Canceled) {
		f.logger.Debug("Downstream call cancelled", zap.String("service", svc.Name))
		return fmt.Errorf("%s: request cancelled: %w", svc.Name, err)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		f.logger.Error("Downstream timed out", zap.String("service", svc.Name), zap.Error(err))
		return fmt.Errorf("%w: %s: %w", ErrDownstreamTimeout, svc.Name, err)
	}

	f.logger.Error("Downstream unreachable", zap.String("service", svc.Name), zap.Error(err))
	return fmt.Errorf("%w: %s: %w", ErrDownstreamUnreachable, svc.Name, err)
}

// BreakerState reports the circuit breaker state of a service, or "" when
// it has none.
func (f *HTTPForwarder) BreakerState(serviceName string) string {
	cb, ok := f.circuitBreakers[strings.ToLower(serviceName)]
	if !ok {
		return ""
	}
	return cb.State().String()
}

// Close releases pooled connections. Call it once at shutdown.
func (f *HTTPForwarder) Close() {
	f.client.CloseIdleConnections()
}

func copyHeaders(src http.Header, dst http.Header) {
	// Hop-by-hop and framing headers belong to the inbound connection.
	skipHeaders := map[string]bool{
		"host":              true,
		"connection":        true,
		"content-length":    true,
		"transfer-encoding": true,
		"upgrade":           true,
	}

	for key, values := range src {
		if skipHeaders[strings.ToLower(key)] {
			continue
		}

		for _, value := range values {
			dst.Add(key, value)
		}
	}
}
