package main

import (
	"context"
	"log"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sharmaanmol256/new-calendar/pkg/calendar"
	"github.com/sharmaanmol256/new-calendar/pkg/config"
	"github.com/sharmaanmol256/new-calendar/pkg/database"
	"github.com/sharmaanmol256/new-calendar/pkg/handlers"
	"github.com/sharmaanmol256/new-calendar/pkg/logger"
	"github.com/sharmaanmol256/new-calendar/pkg/oauth"
	"github.com/sharmaanmol256/new-calendar/pkg/repository"
	"github.com/sharmaanmol256/new-calendar/pkg/server"
	"github.com/sharmaanmol256/new-calendar/pkg/tokens"
	"github.com/sharmaanmol256/new-calendar/web"
)

func main() {
	cfg, err := config.LoadConfig("./")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync()

	db, err := database.Open(cfg.DatabaseURL, zl)
	if err != nil {
		zl.Fatal("database unavailable", zap.Error(err))
	}

	users := repository.NewUserRepository(db)
	mirror := repository.NewEventRepository(db)
	provider := oauth.NewGoogle(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.RedirectURL)
	policy := tokens.NewPolicy(users, provider, logger.WithComponent(zl, "tokens"))
	proxy := calendar.NewProxy(logger.WithComponent(zl, "calendar"), cfg.TimeZone)
	sessions := server.NewSessionStore(cfg.SessionRedisURL)

	app := server.New(server.Deps{
		Config:   cfg,
		Log:      zl,
		Resolver: server.NewResolver(cfg.IdentityMode, sessions),
		Policy:   policy,
		Auth:     handlers.NewAuthHandler(provider, users, policy, sessions, cfg.FrontendURL, logger.WithComponent(zl, "auth")),
		Events:   handlers.NewEventsHandler(proxy, mirror, logger.WithComponent(zl, "events")),
		Health:   handlers.NewHealthHandler(pinger(db), zl),
		UI:       web.FS(),
	})

	go func() {
		zl.Info("server listening",
			zap.String("addr", cfg.ListenAddr()),
			zap.String("frontend_url", cfg.FrontendURL),
			zap.String("identity_mode", cfg.IdentityMode))
		if err := app.Listen(cfg.ListenAddr()); err != nil {
			zl.Fatal("listen failed", zap.Error(err))
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http": func(ctx context.Context) error {
				zl.Info("shutting down http server")
				return app.ShutdownWithContext(ctx)
			},
			"database": func(ctx context.Context) error {
				return database.Close(db)
			},
		},
	)

	exitCode := <-wait
	zl.Info("exited", zap.Int("code", exitCode))
	_ = zl.Sync()
	os.Exit(exitCode)
}

func pinger(db *gorm.DB) handlers.Pinger {
	return func(ctx context.Context) error {
		return database.Ping(ctx, db)
	}
}
