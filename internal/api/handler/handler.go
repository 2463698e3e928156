// Package handler holds the gateway's route handlers. Each one calls a
// downstream service through the gateway and re-emits the normalized data.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"market-gateway/internal/api/middleware"
	"market-gateway/internal/gateway"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

const apiV1 = "/api/v1"

// Caller is the part of the gateway handlers depend on.
type Caller interface {
	Call(ctx context.Context, service string, req gateway.Request, expected ...int) (*gateway.Response, error)
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// bindCommand parses and validates a JSON request body into dst.
func bindCommand(c *fiber.Ctx, v *validator.Validate, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "Request body must be a JSON object.")
	}

	if err := v.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, describeField(fe))
		}
		return fiber.NewError(fiber.StatusUnprocessableEntity, strings.Join(msgs, " "))
	}
	return nil
}

func describeField(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required.", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address.", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long.", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long.", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid.", fe.Field())
	}
}

// outboundHeader carries the request id to downstream services.
func outboundHeader(c *fiber.Ctx) http.Header {
	h := http.Header{}
	if id := middleware.RequestIDFrom(c); id != "" {
		h.Set(fiber.HeaderXRequestID, id)
	}
	return h
}
