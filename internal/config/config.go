package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all amplifier configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Engine   EngineConfig   `yaml:"engine"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
	// RunEvery and RunBurst bound how often POST /api/analysis/run may fire.
	RunEvery time.Duration `yaml:"run_every"`
	RunBurst int           `yaml:"run_burst"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	Path   string `yaml:"path"`   // sqlite file, resolved at runtime when empty
	URL    string `yaml:"url"`    // postgres DSN
}

type EngineConfig struct {
	LookbackDays       int           `yaml:"lookback_days"`
	MinMentions        int           `yaml:"min_mentions"`
	StoreTimeout       time.Duration `yaml:"store_timeout"`
	UnusualBehaviorCap int           `yaml:"unusual_behavior_cap"` // 0 = unbounded
	TenantWorkers      int           `yaml:"tenant_workers"`
	ScheduleInterval   time.Duration `yaml:"schedule_interval"` // 0 disables the scheduler
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text", "json", "logfmt"
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind:     "127.0.0.1",
			Port:     37780,
			RunEvery: time.Minute,
			RunBurst: 2,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
		},
		Engine: EngineConfig{
			LookbackDays:       30,
			MinMentions:        2,
			StoreTimeout:       5 * time.Second,
			UnusualBehaviorCap: 50,
			TenantWorkers:      4,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML config file over the defaults, then applies env overrides.
// A missing file is not an error: defaults plus env are returned.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("AMPLIFIER_DB"); v != "" {
		c.Database.Driver = "sqlite"
		c.Database.Path = v
	}
	if v := os.Getenv("AMPLIFIER_DATABASE_URL"); v != "" {
		c.Database.Driver = "postgres"
		c.Database.URL = v
	}
	if v := os.Getenv("AMPLIFIER_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if strings.TrimSpace(c.Database.URL) == "" {
			return fmt.Errorf("postgres driver requires database.url")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Engine.LookbackDays <= 0 {
		return fmt.Errorf("engine.lookback_days must be positive, got %d", c.Engine.LookbackDays)
	}
	if c.Engine.MinMentions < 1 {
		return fmt.Errorf("engine.min_mentions must be at least 1, got %d", c.Engine.MinMentions)
	}
	if c.Engine.StoreTimeout <= 0 {
		return fmt.Errorf("engine.store_timeout must be positive")
	}
	if c.Engine.UnusualBehaviorCap < 0 {
		return fmt.Errorf("engine.unusual_behavior_cap must not be negative")
	}
	if c.Engine.TenantWorkers <= 0 {
		c.Engine.TenantWorkers = 1
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
