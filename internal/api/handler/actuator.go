package handler

import (
	"context"
	"net/http"
	"time"

	"market-gateway/internal/gateway"
	"market-gateway/internal/models"
	"market-gateway/internal/registry"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/sourcegraph/conc/iter"
	"go.uber.org/zap"
)

const gatewayName = "api-gateway"

type Pinger interface {
	Ping(ctx context.Context) error
}

type BreakerReporter interface {
	BreakerState(serviceName string) string
}

type ActuatorHandler struct {
	gw       Caller
	services []registry.Service
	redis    Pinger
	breakers BreakerReporter
	logger   *zap.Logger
}

// NewActuatorHandler builds the health endpoints. redis and breakers may be nil.
func NewActuatorHandler(gw Caller, services []registry.Service, redis Pinger, breakers BreakerReporter, log *zap.Logger) *ActuatorHandler {
	return &ActuatorHandler{
		gw:       gw,
		services: services,
		redis:    redis,
		breakers: breakers,
		logger:   log,
	}
}

// Health reports that the gateway process is up.
func (h *ActuatorHandler) Health(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(models.Envelope{
		Data: models.StatusChecked{Name: gatewayName, Status: models.StatusOnline},
	})
}

// Readiness probes every downstream service and Redis concurrently. Any
// offline dependency makes the answer 503.
func (h *ActuatorHandler) Readiness(c *fiber.Ctx) error {
	ctx := c.UserContext()

	probes := make([]func(context.Context) models.StatusChecked, 0, len(h.services)+1)
	for _, svc := range h.services {
		probes = append(probes, h.serviceProbe(svc))
	}
	if h.redis != nil {
		probes = append(probes, h.redisProbe)
	}

	statuses := iter.Map(probes, func(probe *func(context.Context) models.StatusChecked) models.StatusChecked {
		return (*probe)(ctx)
	})

	readiness := models.ReadinessChecked{
		Status:    models.StatusOnline,
		Services:  statuses,
		CheckedAt: time.Now().UTC(),
	}

	for _, s := range statuses {
		if s.Status == models.StatusOffline {
			readiness.Status = models.StatusOffline
			break
		}
	}

	if readiness.Status == models.StatusOffline {
		h.logger.Error("Gateway is not ready to accept requests", zap.Any("services", statuses))
		// detail is always a string; the readiness report travels as JSON text.
		detail, err := json.Marshal(readiness)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{Detail: string(detail)})
	}

	h.logger.Debug("Gateway is ready to accept requests")
	return c.Status(fiber.StatusOK).JSON(models.Envelope{Data: readiness})
}

func (h *ActuatorHandler) serviceProbe(svc registry.Service) func(context.Context) models.StatusChecked {
	return func(ctx context.Context) models.StatusChecked {
		status := models.StatusChecked{Name: svc.Name, Status: models.StatusOnline}
		if h.breakers != nil {
			status.Breaker = h.breakers.BreakerState(svc.Name)
		}

		_, err := h.gw.Call(ctx, svc.Name, gateway.Request{Method: http.MethodGet, Path: svc.ReadinessPath})
		if err != nil {
			h.logger.Warn("Readiness probe failed", zap.String("service", svc.Name), zap.Error(err))
			status.Status = models.StatusOffline
		}
		return status
	}
}

func (h *ActuatorHandler) redisProbe(ctx context.Context) models.StatusChecked {
	status := models.StatusChecked{Name: "redis", Status: models.StatusOnline}
	if err := h.redis.Ping(ctx); err != nil {
		h.logger.Warn("Redis ping failed", zap.Error(err))
		status.Status = models.StatusOffline
	}
	return status
}

// Root redirects to the health check.
func (h *ActuatorHandler) Root(c *fiber.Ctx) error {
	return c.Redirect("/health", fiber.StatusMovedPermanently)
}
