package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"market-gateway/internal/auth"
	"market-gateway/internal/gateway"
	"market-gateway/internal/ratelimit"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ClientIdentity keys the rate limiter: the first X-Forwarded-For entry,
// else the peer address.
func ClientIdentity(c *fiber.Ctx) string {
	if xff := c.Get(fiber.HeaderXForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return c.IP()
}

// Mediator runs the admission pipeline in front of route handlers.
type Mediator struct {
	pipeline *gateway.Pipeline
	logger   *zap.Logger
	// denials samples rate limit logs so a flood does not flood the log too.
	denials *rate.Sometimes
}

func NewMediator(p *gateway.Pipeline, log *zap.Logger) *Mediator {
	return &Mediator{
		pipeline: p,
		logger:   log,
		denials:  &rate.Sometimes{First: 5, Interval: 10 * time.Second},
	}
}

// Public admits a request after the rate limit check only.
func (m *Mediator) Public() fiber.Handler {
	return m.handler(false)
}

// Protected also requires a bearer token the auth service accepts.
func (m *Mediator) Protected() fiber.Handler {
	return m.handler(true)
}

func (m *Mediator) handler(protected bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		in := gateway.Inbound{
			ClientID:  ClientIdentity(c),
			Protected: protected,
		}
		if protected {
			// A missing or malformed header leaves the token empty and the
			// delegate rejects it without a round trip.
			in.BearerToken, _ = auth.ExtractToken(c.Get(fiber.HeaderAuthorization))
		}

		outcome := m.pipeline.Run(c.UserContext(), in)
		if !outcome.Admitted() {
			if errors.Is(outcome.Err, ratelimit.ErrLimitExceeded) {
				m.denials.Do(func() {
					m.logger.Warn("Rate limit exceeded",
						zap.String("client", in.ClientID),
						zap.String("path", c.Path()),
					)
				})
			}
			return outcome.Err
		}

		if outcome.Identity != nil {
			c.Locals(identityKey, outcome.Identity)
		}
		return c.Next()
	}
}

// LogStages reports every pipeline transition at debug level.
func LogStages(p *gateway.Pipeline, log *zap.Logger) {
	if !log.Core().Enabled(zap.DebugLevel) {
		return
	}
	p.Observe(func(_ context.Context, stage gateway.Stage) {
		log.Debug("Pipeline stage", zap.Stringer("stage", stage))
	})
}
