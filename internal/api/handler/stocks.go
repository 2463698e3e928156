package handler

import (
	"net/http"
	"net/url"
	"strings"

	"market-gateway/internal/api/middleware"
	"market-gateway/internal/gateway"
	"market-gateway/internal/models"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// StocksHandler fronts the market data service. Its routes are protected.
type StocksHandler struct {
	gw      Caller
	service string
	logger  *zap.Logger
}

func NewStocksHandler(gw Caller, service string, log *zap.Logger) *StocksHandler {
	return &StocksHandler{gw: gw, service: service, logger: log}
}

// Search finds stock symbols matching a keyword.
func (h *StocksHandler) Search(c *fiber.Ctx) error {
	keyword := strings.TrimSpace(c.Query("keyword"))
	if keyword == "" {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "keyword is required.")
	}

	resp, err := h.gw.Call(c.UserContext(), h.service, gateway.Request{
		Method: http.MethodGet,
		Path:   apiV1 + "/stocks",
		Header: outboundHeader(c),
		Query:  url.Values{"keyword": {keyword}},
	})
	if err != nil {
		return err
	}

	matches, err := gateway.DecodeData[[]models.StockMarketQueried](resp.Body)
	if err != nil {
		return err
	}

	h.logger.Info("Stock market queried",
		zap.String("email", userEmail(c)),
		zap.String("keyword", keyword),
		zap.Int("results", len(matches)),
	)
	return c.JSON(models.Envelope{Data: matches})
}

// Quote returns the global quote for one symbol.
func (h *StocksHandler) Quote(c *fiber.Ctx) error {
	symbol := strings.TrimSpace(c.Params("symbol"))
	if symbol == "" {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "symbol is required.")
	}

	resp, err := h.gw.Call(c.UserContext(), h.service, gateway.Request{
		Method: http.MethodGet,
		Path:   apiV1 + "/stocks/" + url.PathEscape(symbol),
		Header: outboundHeader(c),
	})
	if err != nil {
		return err
	}

	data, err := gateway.DecodeData[models.StockDataRetrieved](resp.Body)
	if err != nil {
		return err
	}

	h.logger.Info("Stock data retrieved",
		zap.String("email", userEmail(c)),
		zap.String("symbol", symbol),
	)
	return c.JSON(models.Envelope{Data: data})
}

func userEmail(c *fiber.Ctx) string {
	if id := middleware.IdentityFrom(c); id != nil {
		return id.Email
	}
	return ""
}
