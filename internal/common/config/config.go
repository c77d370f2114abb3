package config

import (
	"errors"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

type DB struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	User string `yaml:"user"`
	Pass string `yaml:"password"`
	Name string `yaml:"database"`
}

type MQ struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	User string `yaml:"user"`
	Pass string `yaml:"password"`
}

// Backend points at the order/catalog service the tracker snapshots from.
type Backend struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Routing points at the external route provider. An empty URL means
// straight-line fallback only.
type Routing struct {
	ProviderURL    string `yaml:"provider_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type Tracking struct {
	HTTPPort       int `yaml:"http_port"`
	PollIntervalMs int `yaml:"poll_interval_ms"`
}

type App struct {
	Database DB       `yaml:"database"`
	Rabbit   MQ       `yaml:"rabbitmq"`
	Backend  Backend  `yaml:"backend"`
	Routing  Routing  `yaml:"routing"`
	Tracking Tracking `yaml:"tracking"`
}

func Load(path string) (App, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return App{}, err
	}
	var a App
	if err := yaml.Unmarshal(b, &a); err != nil {
		return App{}, err
	}
	if a.Backend.BaseURL == "" {
		return App{}, errors.New("invalid config: missing backend base_url")
	}
	if a.Backend.TimeoutSeconds <= 0 {
		a.Backend.TimeoutSeconds = 10
	}
	if a.Routing.TimeoutSeconds <= 0 {
		a.Routing.TimeoutSeconds = 5
	}
	if a.Tracking.HTTPPort == 0 {
		a.Tracking.HTTPPort = 3002
	}
	if a.Tracking.PollIntervalMs <= 0 {
		a.Tracking.PollIntervalMs = 5000
	}
	return a, nil
}

func FindConfig() (string, error) {
	candidates := []string{"config.yaml", "deploy/config.example.yaml"}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fs.ErrNotExist
}
