package middleware

import (
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"market-gateway/internal/auth"
	"market-gateway/internal/gateway"
	"market-gateway/internal/models"
	"market-gateway/internal/ratelimit"
	"market-gateway/internal/registry"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	identityKey  = "identity"
	requestIDKey = "requestid"
)

// IdentityFrom returns the identity set by a protected route's mediation.
func IdentityFrom(c *fiber.Ctx) *models.Identity {
	id, _ := c.Locals(identityKey).(*models.Identity)
	return id
}

// RequestIDFrom returns the id RequestLogger assigned to the request.
func RequestIDFrom(c *fiber.Ctx) string {
	id, _ := c.Locals(requestIDKey).(string)
	return id
}

// Translate maps an error to the status and detail sent to the client.
func Translate(err error) (int, string) {
	var gwErr *gateway.Error
	var fiberErr *fiber.Error

	switch {
	case errors.Is(err, ratelimit.ErrLimitExceeded):
		return fiber.StatusTooManyRequests, "Surpassed rate limit."
	case errors.Is(err, ratelimit.ErrStoreUnavailable):
		return fiber.StatusServiceUnavailable, "Rate limiter is unavailable."
	case errors.Is(err, auth.ErrUnauthenticated):
		return fiber.StatusUnauthorized, "Could not validate credentials."
	case errors.As(err, &gwErr):
		return gwErr.StatusCode, gwErr.Detail
	case errors.Is(err, gateway.ErrDownstreamTimeout):
		return fiber.StatusServiceUnavailable, "Service is timed out."
	case errors.Is(err, gateway.ErrDownstreamUnreachable):
		return fiber.StatusServiceUnavailable, "Service is unavailable."
	case errors.Is(err, registry.ErrServiceNotFound):
		return fiber.StatusInternalServerError, "Service is not configured."
	case errors.Is(err, gateway.ErrMalformedEnvelope):
		return fiber.StatusInternalServerError, "Service error."
	case errors.As(err, &fiberErr):
		return fiberErr.Code, fiberErr.Message
	default:
		return fiber.StatusInternalServerError, "Internal server error."
	}
}

// ErrorHandler is the Fiber error handler. It is the only place errors
// become HTTP responses.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code, detail := Translate(err)

		if code == fiber.StatusUnauthorized {
			c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
		}

		var gwErr *gateway.Error
		if code >= fiber.StatusInternalServerError && !errors.As(err, &gwErr) {
			log.Error("Request failed",
				zap.String("request_id", RequestIDFrom(c)),
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Int("status", code),
				zap.Error(err),
			)
		}

		return c.Status(code).JSON(models.ErrorResponse{Detail: detail})
	}
}

// RequestLogger logs every request once it has been answered. Errors from
// the chain are rendered here so the logged status is the one sent.
func RequestLogger(log *zap.Logger, errHandler fiber.ErrorHandler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		requestID := c.Get(fiber.HeaderXRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Locals(requestIDKey, requestID)
		c.Set(fiber.HeaderXRequestID, requestID)

		if chainErr := c.Next(); chainErr != nil {
			if err := errHandler(c, chainErr); err != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		log.Info("Request handled",
			zap.String("request_id", requestID),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("ip", ClientIdentity(c)),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("latency", time.Since(start)),
		)

		return nil
	}
}

// Recover turns a panic in a handler into a 500.
func Recover(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("Panic recovered",
					zap.Any("error", r),
					zap.ByteString("stack", debug.Stack()),
				)
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return c.Next()
	}
}

// NotFound answers any route nobody registered.
func NotFound(c *fiber.Ctx) error {
	return fiber.NewError(fiber.StatusNotFound, "Not Found")
}
