package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/park285/cheese-matchd/internal/config"
	"github.com/park285/cheese-matchd/internal/events"
	"github.com/park285/cheese-matchd/internal/httpapi"
	"github.com/park285/cheese-matchd/internal/kv"
	"github.com/park285/cheese-matchd/internal/matchqueue"
	"github.com/park285/cheese-matchd/internal/msgcat"
	"github.com/park285/cheese-matchd/internal/obslog"
	"github.com/park285/cheese-matchd/internal/reaper"
	"github.com/park285/cheese-matchd/internal/rules"
	"github.com/park285/cheese-matchd/internal/session"
	"github.com/park285/cheese-matchd/internal/stream"
	"github.com/park285/cheese-matchd/internal/turn"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.Init(cfg.Log); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := kv.Open(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis_connect_error", zap.Error(err))
	}
	defer rdb.Close()

	msgs, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		logger.Fatal("messages_load_error", zap.Error(err))
	}
	if cfg.MessagesDir != "" {
		if err := msgs.Watch(ctx, cfg.MessagesDir); err != nil {
			logger.Warn("messages_watch_error", zap.String("dir", cfg.MessagesDir), zap.Error(err))
		}
	}

	var engine rules.Engine = rules.NewChessEngine()
	if cfg.RulesEngineURL != "" {
		engine = rules.NewRemoteEngine(cfg.RulesEngineURL, cfg.RulesEngineTimeout)
		logger.Info("rules_engine_remote", zap.String("url", cfg.RulesEngineURL))
	}

	store := session.NewStore(rdb, cfg.SessionTTL)
	bus := events.New(rdb)
	queue := matchqueue.New(store, bus, cfg.QueueTTL)
	turns := turn.New(store, engine, bus)
	streams := stream.New(bus, reaper.New(queue, store, bus), cfg.KeepaliveInterval)

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Queue:         queue,
			Turns:         turns,
			Streams:       streams,
			Redis:         rdb,
			Messages:      msgs,
			AllowedOrigin: cfg.AllowedOrigin,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		// no WriteTimeout: event streams stay open indefinitely
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http_listen", zap.String("addr", cfg.HTTPAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown_signal")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_serve_error", zap.Error(err))
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		// open streams do not finish on their own; cut them so they reap
		logger.Warn("http_shutdown_timeout", zap.Error(err))
		_ = srv.Close()
	}
	logger.Info("shutdown_complete")
}
