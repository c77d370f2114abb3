// Package dronesim boots the synthetic drone fleet used in development.
package dronesim

import (
	"context"
	"strings"
	"time"

	"delivery-tracking/internal/common/config"
	"delivery-tracking/internal/common/logger"
	"delivery-tracking/internal/common/mq"
	"delivery-tracking/internal/domain"
	"delivery-tracking/internal/routing"
	"delivery-tracking/internal/sim"
)

type Config struct {
	Orders  string // comma-separated order ids to fly
	Tick    string // cron spec, e.g. "@every 2s"
	StepPct float64
}

// A fixed depot-to-customer corridor keeps simulated flights reproducible.
var (
	depot    = domain.Coordinate{Lat: 21.0278, Lng: 105.8342}
	dropsite = domain.Coordinate{Lat: 21.0065, Lng: 105.8431}
)

func Run(ctx context.Context, appCfg config.App, cfg Config) error {
	lg := logger.New("drone-simulator")
	defer lg.Sync()

	broker, err := mq.Dial(appCfg.Rabbit.Host, appCfg.Rabbit.Port, appCfg.Rabbit.User, appCfg.Rabbit.Pass)
	if err != nil {
		return err
	}
	defer broker.Close()
	if err := broker.DeclareTopology(); err != nil {
		return err
	}

	var provider routing.Provider
	if appCfg.Routing.ProviderURL != "" {
		provider = routing.NewHTTPProvider(appCfg.Routing.ProviderURL, time.Duration(appCfg.Routing.TimeoutSeconds)*time.Second)
	}
	routes := routing.NewResolver(provider, lg)

	s := sim.New(broker, routes, lg)
	for _, orderID := range strings.Split(cfg.Orders, ",") {
		orderID = strings.TrimSpace(orderID)
		if orderID == "" {
			continue
		}
		s.Launch(ctx, orderID, depot, dropsite, cfg.StepPct)
	}

	if cfg.Tick == "" {
		cfg.Tick = "@every 2s"
	}
	return s.Run(ctx, cfg.Tick)
}
