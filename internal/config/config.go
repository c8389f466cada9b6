// Package config loads the canvas process configuration from a YAML file,
// CANVAS_* environment variables and built-in defaults, in increasing order
// of precedence: defaults, file, environment. Command-line flags are applied
// on top by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bert-systems/canvas/internal/logging"
	"github.com/bert-systems/canvas/pkg/execution"
	"github.com/bert-systems/canvas/pkg/outbox"
)

// Config is the full process configuration.
type Config struct {
	Log         LogConfig        `yaml:"log"`
	Server      ServerConfig     `yaml:"server"`
	Execution   execution.Config `yaml:"execution"`
	Sync        outbox.Config    `yaml:"sync"`
	Redis       RedisConfig      `yaml:"redis"`
	SQLite      SQLiteConfig     `yaml:"sqlite"`
	JobService  ServiceConfig    `yaml:"job_service"`
	NodeService ServiceConfig    `yaml:"node_service"`
	// Board is an optional seed file loaded into the session at startup.
	Board string `yaml:"board"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// AllowOrigin is the value of Access-Control-Allow-Origin.
	AllowOrigin string `yaml:"allow_origin"`
}

// RedisConfig enables the Redis outbox store and distributed locks when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// SQLiteConfig enables the embedded outbox store when Path is set.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// ServiceConfig points at a remote HTTP service.
type ServiceConfig struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Log:       LogConfig{Level: "info", Format: "text"},
		Server:    ServerConfig{Addr: ":8080", AllowOrigin: "*"},
		Execution: execution.DefaultConfig(),
		Sync:      outbox.DefaultConfig(),
		JobService: ServiceConfig{
			Timeout: 30 * time.Second,
		},
		NodeService: ServiceConfig{
			Timeout: 10 * time.Second,
		},
	}
}

// Load reads path (optional) and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	var errs []error
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid log format %q", c.Log.Format))
	}
	if c.Redis.Addr != "" && c.SQLite.Path != "" {
		errs = append(errs, errors.New("redis and sqlite outbox stores are mutually exclusive"))
	}
	if c.Execution.PollInterval < 0 || c.Sync.Debounce < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	return errors.Join(errs...)
}

type lookupFunc func(string) (string, bool)

type envVar struct {
	name string
	set  func(*Config, string) error
}

var envVars = []envVar{
	{"CANVAS_LOG_LEVEL", func(c *Config, v string) error { c.Log.Level = v; return nil }},
	{"CANVAS_LOG_FORMAT", func(c *Config, v string) error { c.Log.Format = v; return nil }},
	{"CANVAS_SERVER_ADDR", func(c *Config, v string) error { c.Server.Addr = v; return nil }},
	{"CANVAS_SERVER_ALLOW_ORIGIN", func(c *Config, v string) error { c.Server.AllowOrigin = v; return nil }},
	{"CANVAS_EXECUTION_POLL_INTERVAL", durationVar(func(c *Config) *time.Duration { return &c.Execution.PollInterval })},
	{"CANVAS_EXECUTION_TIMEOUT", durationVar(func(c *Config) *time.Duration { return &c.Execution.Timeout })},
	{"CANVAS_EXECUTION_MAX_POLL_FAILURES", intVar(func(c *Config) *int { return &c.Execution.MaxPollFailures })},
	{"CANVAS_SYNC_DEBOUNCE", durationVar(func(c *Config) *time.Duration { return &c.Sync.Debounce })},
	{"CANVAS_SYNC_MAX_ATTEMPTS", intVar(func(c *Config) *int { return &c.Sync.MaxAttempts })},
	{"CANVAS_REDIS_ADDR", func(c *Config, v string) error { c.Redis.Addr = v; return nil }},
	{"CANVAS_REDIS_PASSWORD", func(c *Config, v string) error { c.Redis.Password = v; return nil }},
	{"CANVAS_REDIS_DB", intVar(func(c *Config) *int { return &c.Redis.DB })},
	{"CANVAS_REDIS_PREFIX", func(c *Config, v string) error { c.Redis.Prefix = v; return nil }},
	{"CANVAS_SQLITE_PATH", func(c *Config, v string) error { c.SQLite.Path = v; return nil }},
	{"CANVAS_JOB_SERVICE_URL", func(c *Config, v string) error { c.JobService.URL = v; return nil }},
	{"CANVAS_JOB_SERVICE_TOKEN", func(c *Config, v string) error { c.JobService.Token = v; return nil }},
	{"CANVAS_NODE_SERVICE_URL", func(c *Config, v string) error { c.NodeService.URL = v; return nil }},
	{"CANVAS_NODE_SERVICE_TOKEN", func(c *Config, v string) error { c.NodeService.Token = v; return nil }},
	{"CANVAS_BOARD", func(c *Config, v string) error { c.Board = v; return nil }},
}

func applyEnv(c *Config, lookup lookupFunc) error {
	var errs []error
	for _, ev := range envVars {
		v, ok := lookup(ev.name)
		if !ok {
			continue
		}
		if err := ev.set(c, v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ev.name, err))
		}
	}
	return errors.Join(errs...)
}

func durationVar(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}

func intVar(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}
