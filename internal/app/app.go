package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/animeshkarmakar7/CommuNet/internal/auth"
	"github.com/animeshkarmakar7/CommuNet/internal/httpapi"
	"github.com/animeshkarmakar7/CommuNet/internal/realtime"
)

// App owns all long-lived components and their shutdown order.
type App struct {
	Config Config
	Log    *slog.Logger

	DB *pgxpool.Pool

	Messages realtime.MessageStore
	Registry *realtime.Registry
	Router   *realtime.Router
	Gateway  *realtime.WSGateway

	Auth *auth.Service
	API  *httpapi.Handler
}

// New wires the application from configuration. When COMMUNET_DATABASE_URL is
// set, both the message store and the auth store run on Postgres; otherwise
// everything is in-memory, which is the mode tests and local dev use.
func New(ctx context.Context, cfg Config, log *slog.Logger) (*App, error) {
	a := &App{
		Config: cfg,
		Log:    log,
	}

	var authStore auth.Store

	if cfg.DatabaseURL != "" {
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.DB = pool

		msgStore, err := realtime.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		a.Messages = msgStore

		as, err := auth.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		authStore = as

		log.Info("app.store", "kind", "postgres")
	} else {
		a.Messages = realtime.NewInMemoryStore()
		authStore = auth.NewInMemoryStore()
		log.Info("app.store", "kind", "memory")
	}

	a.Registry = realtime.NewRegistry(log)
	a.Router = realtime.NewRouter(log, a.Messages, a.Registry, cfg.TypingTTL)
	a.Auth = auth.NewService(log, authStore, auth.WithTokenTTL(cfg.TokenTTL))
	a.Gateway = realtime.NewWSGateway(log, a.Registry, a.Router, a.Auth)
	a.API = httpapi.NewHandler(log, a.Auth, a.Router, a.Messages)

	return a, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled, then shuts
// down gracefully.
func (a *App) Run(ctx context.Context) error {
	srv := a.NewHTTPServer()

	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("http.listen", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		a.close()
		return err
	case <-ctx.Done():
	}

	a.Log.Info("app.shutdown.begin")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	a.close()

	if err != nil {
		a.Log.Error("app.shutdown.error", "err", err)
		return err
	}

	a.Log.Info("app.shutdown.done")
	return nil
}

func (a *App) close() {
	if a.Router != nil {
		a.Router.Close()
	}
	if a.Messages != nil {
		if err := a.Messages.Close(); err != nil {
			a.Log.Warn("app.store.close", "err", err)
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
