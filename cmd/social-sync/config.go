package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-social-sync/adapters/gologger"
	"github.com/goliatone/go-social-sync/core"
	sqlstore "github.com/goliatone/go-social-sync/store/sql"
	"gopkg.in/yaml.v3"
)

const (
	envConfigPath   = "SOCIALSYNC_CONFIG"
	defaultConfig   = "config.yaml"
	defaultHTTPAddr = ":8080"
)

// appSections are the top-level keys owned by the binary rather than the
// connector.
var appSections = []string{"server", "database", "redis", "log"}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Metrics         bool          `yaml:"metrics"`
}

type RedisConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

type AppConfig struct {
	Server   ServerConfig               `yaml:"server"`
	Database sqlstore.PersistenceConfig `yaml:"database"`
	Redis    RedisConfig                `yaml:"redis"`
	Log      gologger.Config            `yaml:"log"`
	EnvFiles []string                   `yaml:"-"`
}

func loadAppConfig(path string) (AppConfig, error) {
	cfg := AppConfig{
		Server: ServerConfig{
			Addr:            defaultHTTPAddr,
			ShutdownTimeout: 10 * time.Second,
			Metrics:         true,
		},
		Database: sqlstore.PersistenceConfig{
			Driver: sqlstore.DriverSQLite,
			DSN:    "file:socialsync.db?_foreign_keys=on",
		},
		Log:      gologger.Config{Level: "info", Format: "json"},
		EnvFiles: []string{".env"},
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	return cfg, nil
}

// connectorLoader feeds the connector only its own sections of the shared
// config file.
type connectorLoader struct {
	base core.YAMLConfigLoader
}

func (l connectorLoader) LoadRaw(ctx context.Context) (map[string]any, error) {
	if _, err := os.Stat(l.base.Path); os.IsNotExist(err) {
		return map[string]any{}, nil
	}
	raw, err := l.base.LoadRaw(ctx)
	if err != nil {
		return nil, err
	}
	for _, key := range appSections {
		delete(raw, key)
	}
	return raw, nil
}

func configPath() string {
	if path := strings.TrimSpace(os.Getenv(envConfigPath)); path != "" {
		return path
	}
	return defaultConfig
}
