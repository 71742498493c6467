package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jaminalder/codex-greed/internal/app"
	"github.com/jaminalder/codex-greed/internal/config"
	"github.com/jaminalder/codex-greed/internal/natsbus"
	"github.com/jaminalder/codex-greed/internal/store/redisstore"
	"github.com/jaminalder/codex-greed/internal/web"
	"github.com/jaminalder/codex-greed/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (optional)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		logger.Log.WithError(err).Error("greed exited")
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	log := logger.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store app.Store = app.NewMemoryStore()
	if cfg.Store.Backend == "redis" {
		client := redisstore.NewClient(cfg.Redis)
		defer client.Close()
		rs := redisstore.New(client, cfg.Redis.KeyPrefix, cfg.Redis.PlayTTL)
		if err := rs.Ping(ctx); err != nil {
			return fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		store = rs
		log.WithField("addr", cfg.Redis.Addr).Info("using redis store")
	}

	svc := app.NewService(app.WithStore(store), app.WithLogger(log))

	if cfg.NATS.Enabled {
		nc, err := natsbus.Connect(cfg.NATS, log)
		if err != nil {
			return fmt.Errorf("connect nats %s: %w", cfg.NATS.URL, err)
		}
		defer nc.Close()
		responder := natsbus.NewResponder(nc, svc, cfg.NATS, log)
		if err := responder.Start(); err != nil {
			return fmt.Errorf("start nats responder: %w", err)
		}
		defer func() { _ = responder.Stop() }()
	}

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: web.NewServer(svc, log)}
	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("http server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
