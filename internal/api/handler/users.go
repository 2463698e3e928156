package handler

import (
	"net/http"

	"market-gateway/internal/api/middleware"
	"market-gateway/internal/gateway"
	"market-gateway/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UsersHandler fronts the auth service's user and token endpoints.
type UsersHandler struct {
	gw       Caller
	service  string
	validate *validator.Validate
	logger   *zap.Logger
}

func NewUsersHandler(gw Caller, service string, log *zap.Logger) *UsersHandler {
	return &UsersHandler{
		gw:       gw,
		service:  service,
		validate: newValidator(),
		logger:   log,
	}
}

func (h *UsersHandler) List(c *fiber.Ctx) error {
	resp, err := h.gw.Call(c.UserContext(), h.service, gateway.Request{
		Method: http.MethodGet,
		Path:   apiV1 + "/users",
		Header: outboundHeader(c),
	})
	if err != nil {
		return err
	}

	users, err := gateway.DecodeData[[]models.User](resp.Body)
	if err != nil {
		return err
	}

	h.logger.Info("Users queried", zap.Int("count", len(users)))
	return c.JSON(models.Envelope{Data: users})
}

func (h *UsersHandler) Get(c *fiber.Ctx) error {
	userID, err := uuid.Parse(c.Params("user_id"))
	if err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "user_id must be a valid UUID.")
	}

	resp, err := h.gw.Call(c.UserContext(), h.service, gateway.Request{
		Method: http.MethodGet,
		Path:   apiV1 + "/users/" + userID.String() + "/",
		Header: outboundHeader(c),
	})
	if err != nil {
		return err
	}

	user, err := gateway.DecodeData[models.User](resp.Body)
	if err != nil {
		return err
	}

	h.logger.Info("User queried", zap.Stringer("user_id", userID))
	return c.JSON(models.Envelope{Data: user})
}

// Register creates a user and points Location at the new resource.
func (h *UsersHandler) Register(c *fiber.Ctx) error {
	var cmd models.RegisterUser
	if err := bindCommand(c, h.validate, &cmd); err != nil {
		return err
	}

	resp, err := h.gw.Call(c.UserContext(), h.service, gateway.Request{
		Method: http.MethodPost,
		Path:   apiV1 + "/users/",
		Header: outboundHeader(c),
		Body:   cmd,
	}, http.StatusCreated)
	if err != nil {
		return err
	}

	user, err := gateway.DecodeData[models.User](resp.Body)
	if err != nil {
		return err
	}

	h.logger.Info("User created", zap.Stringer("user_id", user.ID))

	c.Location(c.BaseURL() + apiV1 + "/users/" + user.ID.String())
	return c.Status(fiber.StatusCreated).JSON(models.Envelope{Data: user})
}

func (h *UsersHandler) Token(c *fiber.Ctx) error {
	var cmd models.AuthenticateUser
	if err := bindCommand(c, h.validate, &cmd); err != nil {
		return err
	}

	resp, err := h.gw.Call(c.UserContext(), h.service, gateway.Request{
		Method: http.MethodPost,
		Path:   apiV1 + "/auth/token",
		Header: outboundHeader(c),
		Body:   cmd,
	})
	if err != nil {
		return err
	}

	token, err := gateway.DecodeData[models.TokenGenerated](resp.Body)
	if err != nil {
		return err
	}
	if token.Type == "" {
		token.Type = "Bearer"
	}

	h.logger.Info("User authenticated", zap.String("email", cmd.Email))
	return c.JSON(models.Envelope{Data: token})
}

// Me echoes the identity the auth service resolved for the bearer token.
func (h *UsersHandler) Me(c *fiber.Ctx) error {
	identity := middleware.IdentityFrom(c)
	if identity == nil {
		return fiber.NewError(fiber.StatusUnauthorized, "Could not validate credentials.")
	}

	h.logger.Info("User authorized", zap.Stringer("user_id", identity.ID))
	return c.JSON(models.Envelope{Data: identity})
}
