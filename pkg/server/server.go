package server

import (
	"errors"
	"io/fs"
	"net/http"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/gofiber/storage/redis/v3"
	"go.uber.org/zap"

	"github.com/sharmaanmol256/new-calendar/pkg/apperr"
	"github.com/sharmaanmol256/new-calendar/pkg/config"
	"github.com/sharmaanmol256/new-calendar/pkg/handlers"
	"github.com/sharmaanmol256/new-calendar/pkg/identity"
	"github.com/sharmaanmol256/new-calendar/pkg/middleware"
)

// Deps are the collaborators the HTTP surface is wired from.
type Deps struct {
	Config   config.Config
	Log      *zap.Logger
	Resolver identity.Resolver
	Policy   middleware.TokenPolicy
	Auth     *handlers.AuthHandler
	Events   *handlers.EventsHandler
	Health   *handlers.HealthHandler
	// UI is served at / when set.
	UI fs.FS
}

// NewSessionStore keeps sessions in Redis when redisURL is set and in
// process memory otherwise.
func NewSessionStore(redisURL string) *session.Store {
	cfg := session.Config{
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
	}
	if redisURL != "" {
		cfg.Storage = redis.New(redis.Config{URL: redisURL})
	}
	return session.New(cfg)
}

// NewResolver picks the identity resolver for the configured mode.
func NewResolver(mode string, sessions *session.Store) identity.Resolver {
	if mode == config.IdentityModeSession {
		return identity.SessionResolver{Store: sessions}
	}
	return identity.EmailResolver{}
}

// New builds the fiber application with every route mounted.
func New(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "calendar-service",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(d.Log),
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.RequestLogger(d.Log))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     originOf(d.Config.FrontendURL),
		AllowCredentials: true,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Content-Type, Authorization",
	}))

	app.Get("/health", d.Health.Health)

	auth := app.Group("/api/auth")
	auth.Get("/google", d.Auth.Login)
	auth.Get("/callback", d.Auth.Callback)
	auth.Get("/check", d.Auth.Check)
	auth.Post("/logout", d.Auth.Logout)
	auth.Post("/refresh", d.Auth.Refresh)

	events := app.Group("/api/events", middleware.AuthGate(d.Resolver, d.Policy, d.Log))
	events.Get("/", d.Events.List)
	events.Get("/history", d.Events.History)
	events.Post("/", d.Events.Create)
	events.Put("/:eventId", d.Events.Update)
	events.Delete("/:eventId", d.Events.Delete)

	if d.UI != nil {
		app.Use("/", filesystem.New(filesystem.Config{
			Root:  http.FS(d.UI),
			Index: "index.html",
		}))
	}

	return app
}

// originOf strips path and query from a frontend URL so it can be used as
// a CORS origin.
func originOf(frontendURL string) string {
	u, err := url.Parse(frontendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return frontendURL
	}
	return u.Scheme + "://" + u.Host
}

// errorHandler renders every returned error as {"error": message}.
func errorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}

		status := apperr.Status(err)
		if status >= fiber.StatusInternalServerError {
			log.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
		}
		return c.Status(status).JSON(fiber.Map{"error": apperr.Message(err)})
	}
}
