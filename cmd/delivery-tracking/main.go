package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"delivery-tracking/internal/app/dronesim"
	"delivery-tracking/internal/app/service"
	"delivery-tracking/internal/common/config"
	"delivery-tracking/internal/common/logger"
)

func main() {
	mode := flag.String("mode", "", "tracking-service | drone-simulator")
	port := flag.Int("port", 0, "tracking-service: http port override")
	orders := flag.String("orders", "", "drone-simulator: comma-separated order ids to fly")
	tick := flag.String("tick", "@every 2s", "drone-simulator: cron spec for telemetry frames")
	step := flag.Float64("step-pct", 5, "drone-simulator: route percent covered per tick")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	lg := logger.New("bootstrap")
	defer lg.Sync()

	path, err := config.FindConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "no config.yaml found")
		os.Exit(2)
	}
	cfg, err := config.Load(path)
	if err != nil {
		lg.Error("config_invalid", err, map[string]any{"path": path})
		os.Exit(2)
	}
	if *port != 0 {
		cfg.Tracking.HTTPPort = *port
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch *mode {
	case "tracking-service":
		lg.Info("service_started", map[string]any{"service": "tracking-service", "config": path})
		if err := service.Run(ctx, cfg); err != nil {
			lg.Error("fatal", err, nil)
			os.Exit(1)
		}
	case "drone-simulator":
		if *orders == "" {
			fmt.Fprintln(os.Stderr, "--orders is required for drone-simulator")
			os.Exit(2)
		}
		lg.Info("service_started", map[string]any{"service": "drone-simulator", "orders": *orders})
		if err := dronesim.Run(ctx, cfg, dronesim.Config{Orders: *orders, Tick: *tick, StepPct: *step}); err != nil {
			lg.Error("fatal", err, nil)
			os.Exit(1)
		}
	default:
		fmt.Fprintln(os.Stderr, "--mode is required: tracking-service | drone-simulator")
		os.Exit(2)
	}
}
