// Package server initializes and runs the auth service: it opens the
// database, applies migrations, wires the services and the HTTP router,
// and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/alexivashchenko/auth-service/internal/logging"
	"github.com/alexivashchenko/auth-service/internal/server/config"
	"github.com/alexivashchenko/auth-service/internal/server/handlers"
	"github.com/alexivashchenko/auth-service/internal/server/metrics"
	"github.com/alexivashchenko/auth-service/internal/server/repositories/repomanager"
	"github.com/alexivashchenko/auth-service/internal/server/services"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	authService *services.AuthService
	sessions    *services.SessionService
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)

	sessions := services.NewSessionService(db, rm, cfg)
	authService := services.NewAuthService(db, rm, sessions, logger, cfg)

	return &App{
		config:      cfg,
		logger:      logger,
		db:          db,
		authService: authService,
		sessions:    sessions,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	handler := handlers.NewAuthHandler(app.authService, app.logger, app.config)
	srv := &http.Server{
		Addr:    app.config.EndpointAddrHTTP,
		Handler: handlers.NewRouter(handler),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(shutdownCtx, "http shutdown error", "error", err)
		}
	}()

	app.logger.Info(ctx, "starting http server", "addr", app.config.EndpointAddrHTTP)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, "http server error", "error", err)
		cancelFunc()
	}
}

// startReaper periodically purges expired refresh tokens so rows for users
// who never come back do not pile up.
func (app *App) startReaper(ctx context.Context) {
	ticker := time.NewTicker(app.config.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := app.sessions.ReapExpired(ctx)
			if err != nil {
				app.logger.Error(ctx, "token reap error", "error", err)
				continue
			}
			if n > 0 {
				metrics.TokensReaped.Add(float64(n))
				app.logger.Info(ctx, "reaped expired refresh tokens", "count", n)
			}
		}
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startReaper(ctx)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
	app.logger.Info(ctx, "app stopped")
}
