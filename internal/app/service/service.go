// Package service wires the tracking service: backend clients, snapshot
// cache, broker feeds, session manager and the HTTP surface.
package service

import (
	"context"
	"strconv"
	"time"

	"delivery-tracking/internal/api"
	"delivery-tracking/internal/client"
	"delivery-tracking/internal/common/config"
	"delivery-tracking/internal/common/db"
	"delivery-tracking/internal/common/httpx"
	"delivery-tracking/internal/common/logger"
	"delivery-tracking/internal/common/mq"
	"delivery-tracking/internal/push"
	"delivery-tracking/internal/routing"
	"delivery-tracking/internal/store"
	"delivery-tracking/internal/tracking"
)

func Run(ctx context.Context, cfg config.App) error {
	lg := logger.New("tracking-service")
	defer lg.Sync()

	cache, closeCache := buildCache(ctx, cfg, lg)
	defer closeCache()

	// Broker unavailable is a degraded start, not a fatal one: sessions fall
	// back to snapshot polling and the cache.
	var pushFeed *push.Consumer
	var telePush api.TelemetryPush
	broker, err := mq.Dial(cfg.Rabbit.Host, cfg.Rabbit.Port, cfg.Rabbit.User, cfg.Rabbit.Pass)
	if err != nil {
		lg.Warn("broker_unavailable", map[string]any{"reason": err.Error()})
	} else {
		defer broker.Close()
		if err := broker.DeclareTopology(); err != nil {
			return err
		}
		pushFeed = push.NewConsumer(broker, lg)
		telePush = pushFeed
	}

	backendTimeout := time.Duration(cfg.Backend.TimeoutSeconds) * time.Second
	orders := client.NewOrderClient(cfg.Backend.BaseURL, backendTimeout)
	tele := client.NewTelemetryClient(cfg.Backend.BaseURL, backendTimeout)

	var provider routing.Provider
	if cfg.Routing.ProviderURL != "" {
		provider = routing.NewHTTPProvider(cfg.Routing.ProviderURL, time.Duration(cfg.Routing.TimeoutSeconds)*time.Second)
	}
	routes := routing.NewResolver(provider, lg)

	deps := tracking.Deps{Fetcher: orders, Cache: cache, Log: lg}
	if pushFeed != nil {
		deps.Push = pushFeed
	}

	mgr := api.NewManager(ctx, api.ManagerConfig{
		Deps:         deps,
		Telemetry:    tele,
		TelePush:     telePush,
		Routes:       routes,
		Log:          lg,
		PollInterval: time.Duration(cfg.Tracking.PollIntervalMs) * time.Millisecond,
	})
	defer mgr.Shutdown()

	srv := httpx.New(":"+strconv.Itoa(cfg.Tracking.HTTPPort), api.NewHandler(mgr, lg).Routes())
	lg.Info("service_started", map[string]any{"port": cfg.Tracking.HTTPPort})
	return srv.Run(ctx)
}

// buildCache prefers the durable Postgres slot store and falls back to the
// in-process one when no database is configured or reachable.
func buildCache(ctx context.Context, cfg config.App, lg *logger.Logger) (store.SnapshotCache, func()) {
	if cfg.Database.Host == "" {
		return store.NewMemory(), func() {}
	}
	conn, err := db.Connect(ctx, cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Pass, cfg.Database.Name)
	if err != nil {
		lg.Warn("database_unavailable", map[string]any{"reason": err.Error()})
		return store.NewMemory(), func() {}
	}
	return store.NewPG(conn), conn.Close
}
