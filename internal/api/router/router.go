package router

import (
	"time"

	"market-gateway/internal/api/handler"
	"market-gateway/internal/api/middleware"
	"market-gateway/internal/config"
	"market-gateway/internal/gateway"
	"market-gateway/internal/registry"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Dependencies are the long-lived components the routes share. Redis and
// Breakers may be nil.
type Dependencies struct {
	Gateway  handler.Caller
	Pipeline *gateway.Pipeline
	Services []registry.Service
	Redis    handler.Pinger
	Breakers handler.BreakerReporter
}

// NewApp creates the Fiber application with every route registered.
func NewApp(cfg *config.Config, log *zap.Logger, deps Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Market Gateway",
		ErrorHandler: middleware.ErrorHandler(log),
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	})

	SetupRouter(app, cfg, log, deps)
	return app
}

// SetupRouter initializes the main router with all routes
func SetupRouter(app *fiber.App, cfg *config.Config, log *zap.Logger, deps Dependencies) {
	SetupCoreMiddleware(app, cfg, log)

	middleware.LogStages(deps.Pipeline, log)
	mediator := middleware.NewMediator(deps.Pipeline, log)

	SetupActuatorRoutes(app, mediator, log, deps)
	SetupAPIRoutes(app, cfg, mediator, log, deps)

	// Unknown routes still count against the rate limit.
	app.Use(mediator.Public(), fiber.Handler(middleware.NotFound))
}

// ============================================================================
// CORE - Always enabled (logging, recovery, CORS)
// ============================================================================

// SetupCoreMiddleware installs logging, recovery and CORS, in that order.
func SetupCoreMiddleware(app *fiber.App, cfg *config.Config, log *zap.Logger) {
	app.Use(middleware.RequestLogger(log, app.Config().ErrorHandler))
	app.Use(middleware.Recover(log))
	app.Use(middleware.Cors(cfg.CORS))
}

// ============================================================================
// ROUTES - Every route is mediated; stocks and auth/me need a bearer token
// ============================================================================

func SetupActuatorRoutes(app *fiber.App, m *middleware.Mediator, log *zap.Logger, deps Dependencies) {
	actuator := handler.NewActuatorHandler(deps.Gateway, deps.Services, deps.Redis, deps.Breakers, log)

	app.Get("/", m.Public(), actuator.Root)
	app.Get("/health", m.Public(), actuator.Health)
	app.Get("/readiness", m.Public(), actuator.Readiness)
}

func SetupAPIRoutes(app *fiber.App, cfg *config.Config, m *middleware.Mediator, log *zap.Logger, deps Dependencies) {
	v1 := app.Group("/api/v1")

	users := handler.NewUsersHandler(deps.Gateway, cfg.Gateway.AuthService, log)
	v1.Get("/users", m.Public(), users.List)
	v1.Get("/users/:user_id", m.Public(), users.Get)
	v1.Post("/users", m.Public(), users.Register)
	v1.Post("/auth/token", m.Public(), users.Token)
	v1.Get("/auth/me", m.Protected(), users.Me)

	stocks := handler.NewStocksHandler(deps.Gateway, cfg.Gateway.MarketService, log)
	v1.Get("/stocks", m.Protected(), stocks.Search)
	v1.Get("/stocks/:symbol", m.Protected(), stocks.Quote)
}
