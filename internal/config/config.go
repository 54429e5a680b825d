// Package config loads the erpui server configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/matthewbaird/erpui/internal/dashboard"
	"github.com/matthewbaird/erpui/internal/permission"
)

// Config is the full server configuration.
type Config struct {
	Port int `yaml:"port"`
	// DatabaseURL is the SQLite DSN of the development API. "memory" keeps
	// documents in process.
	DatabaseURL string `yaml:"databaseURL"`
	// APIBaseURL is where the engine sends REST calls. Empty means the
	// development API served by this process.
	APIBaseURL string `yaml:"apiBaseURL"`
	Actor      string `yaml:"actor"`
	// RequestTimeout bounds each REST call. Empty or "0" means no timeout.
	RequestTimeout string `yaml:"requestTimeout"`

	// SchemaDir holds extra CUE schemas, reloaded on change.
	SchemaDir string `yaml:"schemaDir"`
	// StateDir holds persisted table state. Empty keeps it in memory.
	StateDir string `yaml:"stateDir"`
	Seed     bool   `yaml:"seed"`
	Async    bool   `yaml:"async"`

	Sessions SessionConfig `yaml:"sessions"`
	Logging  LoggingConfig `yaml:"logging"`

	// Collections are schema-less endpoints the development API serves.
	Collections []string               `yaml:"collections"`
	Dashboards  []dashboard.Definition `yaml:"dashboards"`
	Permissions []permission.Module    `yaml:"permissions"`
}

// SessionConfig bounds form session lifetime.
type SessionConfig struct {
	MaxAge      string `yaml:"maxAge"`
	IdleTimeout string `yaml:"idleTimeout"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Port:        8080,
		DatabaseURL: "file:erpui.db?_pragma=busy_timeout(5000)",
		Actor:       "erpui",
		Seed:        true,
		Sessions: SessionConfig{
			MaxAge:      "24h",
			IdleTimeout: "30m",
		},
		Logging: LoggingConfig{Level: "info"},
		Collections: []string{
			"/api/hr/payroll-variables",
		},
		Dashboards: []dashboard.Definition{{
			Name:  "hr",
			Title: "HR overview",
			Cards: []dashboard.Card{
				{ID: "headcount", Title: "Employees", Endpoint: "/api/hr/employees", Aggregation: "count", Format: "integer"},
				{ID: "active", Title: "Active employees", Endpoint: "/api/hr/employees", Filter: map[string]string{"active": "true"}, Aggregation: "count", Format: "integer"},
				{ID: "payroll", Title: "Gross payroll", Endpoint: "/api/hr/payslips", Field: "grossAmount", Aggregation: "sum", Format: "currency"},
				{ID: "salary", Title: "Average base salary", Endpoint: "/api/hr/employees", Field: "baseSalary", Aggregation: "mean", Format: "currency"},
			},
		}},
		Permissions: []permission.Module{{
			Name:    "payroll",
			FourEye: true,
			Roles: map[string]permission.Grant{
				"admin":      {View: true, Edit: true, Delete: true, Approve: true},
				"hr_manager": {View: true, Edit: true, Approve: true},
				"clerk":      {View: true, Edit: true},
				"auditor":    {View: true},
			},
		}},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error when path is empty.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.DatabaseURL = dsn
	}
	if p := os.Getenv("PORT"); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Port = port
	}
	if u := os.Getenv("ERPUI_API_BASE_URL"); u != "" {
		c.APIBaseURL = u
	}
	if lvl := os.Getenv("ERPUI_LOG_LEVEL"); lvl != "" {
		c.Logging.Level = lvl
	}
	return nil
}

// Validate checks values the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("databaseURL is empty"))
	}
	for name, d := range map[string]string{
		"requestTimeout":       c.RequestTimeout,
		"sessions.maxAge":      c.Sessions.MaxAge,
		"sessions.idleTimeout": c.Sessions.IdleTimeout,
	} {
		if _, err := parseDuration(d); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Logging.Level))
	}
	seen := map[string]bool{}
	for _, d := range c.Dashboards {
		if d.Name == "" || seen[d.Name] {
			errs = append(errs, fmt.Errorf("dashboard name %q is empty or repeated", d.Name))
		}
		seen[d.Name] = true
	}
	return errors.Join(errs...)
}

// MemoryStore reports whether the development API keeps documents in
// process.
func (c *Config) MemoryStore() bool {
	return c.DatabaseURL == "memory"
}

// BaseURL returns the REST base URL the engine talks to.
func (c *Config) BaseURL() string {
	if c.APIBaseURL != "" {
		return c.APIBaseURL
	}
	return fmt.Sprintf("http://127.0.0.1:%d", c.Port)
}

// GetRequestTimeout returns the REST timeout; zero means none.
func (c *Config) GetRequestTimeout() time.Duration {
	d, _ := parseDuration(c.RequestTimeout)
	return d
}

// GetSessionMaxAge returns how long a form session may live.
func (c *Config) GetSessionMaxAge() time.Duration {
	if d, _ := parseDuration(c.Sessions.MaxAge); d > 0 {
		return d
	}
	return 24 * time.Hour
}

// GetSessionIdleTimeout returns how long a form session may sit unused.
func (c *Config) GetSessionIdleTimeout() time.Duration {
	if d, _ := parseDuration(c.Sessions.IdleTimeout); d > 0 {
		return d
	}
	return 30 * time.Minute
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
