package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Fazzolix/matningsabo/internal/activities"
	"github.com/Fazzolix/matningsabo/internal/audit"
	"github.com/Fazzolix/matningsabo/internal/authz"
	"github.com/Fazzolix/matningsabo/internal/companions"
	"github.com/Fazzolix/matningsabo/internal/homes"
	httpapi "github.com/Fazzolix/matningsabo/internal/http"
	"github.com/Fazzolix/matningsabo/internal/identity"
	"github.com/Fazzolix/matningsabo/internal/platform/config"
	"github.com/Fazzolix/matningsabo/internal/platform/docstore"
	"github.com/Fazzolix/matningsabo/internal/platform/httpserver"
	"github.com/Fazzolix/matningsabo/internal/platform/logger"
	"github.com/Fazzolix/matningsabo/internal/platform/metrics"
	"github.com/Fazzolix/matningsabo/internal/platform/middleware"
	"github.com/Fazzolix/matningsabo/internal/ratelimit"
	"github.com/Fazzolix/matningsabo/internal/users"
	"github.com/Fazzolix/matningsabo/internal/visits"
)

// main wires dependencies and owns the process lifecycle. Everything with
// behavior lives in internal packages.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", slog.Any("error", err))
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db docstore.Store
	if cfg.MemoryStore {
		log.Warn("using in-memory store, data is not persisted")
		db = docstore.NewMemory()
	} else {
		mongoStore, err := docstore.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			log.Error("mongodb connection failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer mongoStore.Close(context.Background())
		db = mongoStore
	}

	m := metrics.New()
	auditor := audit.NewRecorder(db, log, m)

	userStore := users.NewStore(db, auditor)
	resolver := authz.NewResolver(userStore, cfg.SuperadminEmail, log)
	sessions := middleware.NewSessions(cfg.SessionKey, time.Duration(cfg.SessionMaxAge)*time.Second, cfg.SecureCookies)

	limiter := ratelimit.New()
	limits := ratelimit.NewMiddleware(limiter, log, m, ratelimit.WithDisabled(cfg.RateLimitsOff))

	router := httpapi.New(httpapi.Deps{
		Logger:     log,
		Metrics:    m,
		Sessions:   sessions,
		Limits:     limits,
		Resolver:   resolver,
		Verifier:   identity.NewGraphVerifier(log),
		Auditor:    auditor,
		Homes:      homes.NewStore(db),
		Activities: activities.NewStore(db),
		Companions: companions.NewStore(db),
		Visits:     visits.NewStore(db),
		Users:      userStore,
	})

	// Hourly sweep keeps the limiter's per-client history bounded.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.Cleanup()
			}
		}
	}()

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("server starting", slog.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownGraceS)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", slog.Any("error", err))
		os.Exit(1)
	}
}
