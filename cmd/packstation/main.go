package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/avelez/packstation/internal/catalog"
	"github.com/avelez/packstation/internal/config"
	"github.com/avelez/packstation/internal/httpx"
	"github.com/avelez/packstation/internal/ledger/redisledger"
	"github.com/avelez/packstation/internal/packlog"
	packsqlite "github.com/avelez/packstation/internal/packlog/sqlite"
	"github.com/avelez/packstation/internal/pkg/telemetry"
	"github.com/avelez/packstation/internal/session"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	telemetry.InitLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.SetupTracer(ctx, cfg.ServiceName)
	if err != nil {
		log.Fatalf("tracer setup failed: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			slog.Error("tracer shutdown failed", "error", err)
		}
	}()

	store := redisledger.New(cfg.RedisAddr)
	defer store.Close()

	var activity *packsqlite.Repository
	var recorder packlog.Repository
	if cfg.PackLogPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.PackLogPath), 0o755); err != nil {
			log.Fatalf("pack log directory: %v", err)
		}
		activity, err = packsqlite.Open(cfg.PackLogPath)
		if err != nil {
			log.Fatalf("pack log open failed: %v", err)
		}
		defer activity.Close()
		recorder = activity
	}

	cache := catalog.NewCache(store)
	sessions := session.NewManager(store, cache, recorder, cfg.Actor)

	hub := httpx.NewHub()
	sessions.SetOnChange(hub.Broadcast)

	handler := httpx.NewHandler(sessions, activityOrNil(activity), hub)
	router := httpx.NewRouter(handler, sessions, hub)

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		slog.Info("packing terminal listening",
			"addr", cfg.HTTPAddr, "actor", cfg.Actor, "ledger", cfg.RedisAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	// A session being discarded mid-write is fine: the write lands in the
	// ledger and the next session on any terminal picks it up.
	sessions.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}
}

// activityOrNil avoids handing a typed-nil *Repository to the handler's
// interface field.
func activityOrNil(r *packsqlite.Repository) httpx.ActivityLister {
	if r == nil {
		return nil
	}
	return r
}
