package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment overrides. Nested keys use a double
// underscore, e.g. PORTAL_SESSION__COOKIE_DOMAIN=.example.org.
const EnvPrefix = "PORTAL_"

// Config holds the application configuration.
type Config struct {
	ServerPort   int    `koanf:"port"`
	DatabasePath string `koanf:"database_path"`
	AppEnv       string `koanf:"app_env"`

	Log         LogConfig         `koanf:"log"`
	Session     SessionConfig     `koanf:"session"`
	Password    PasswordConfig    `koanf:"password"`
	CORS        CORSConfig        `koanf:"cors"`
	Maintenance MaintenanceConfig `koanf:"maintenance"`
	Docker      DockerConfig      `koanf:"docker"`
	Links       []Link            `koanf:"links"`
}

// LogConfig controls the zerolog output.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // "console" or "json"
}

// SessionConfig controls session tokens and the cookie that carries them.
type SessionConfig struct {
	TTL          time.Duration `koanf:"ttl"`
	KeyFile      string        `koanf:"key_file"`
	Secret       string        `koanf:"secret"`
	PreviousKeys []string      `koanf:"previous_keys"` // verification-only secrets
	CookieName   string        `koanf:"cookie_name"`
	CookieDomain string        `koanf:"cookie_domain"`
	CookieSecure bool          `koanf:"cookie_secure"`
}

// PasswordConfig holds the bcrypt cost.
type PasswordConfig struct {
	Cost int `koanf:"cost"`
}

// CORSConfig lists sibling origins allowed to call the portal with credentials.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// MaintenanceConfig schedules database housekeeping.
type MaintenanceConfig struct {
	Schedule      string        `koanf:"schedule"`
	StatsInterval time.Duration `koanf:"stats_interval"`
}

// DockerConfig names the container the console operates on.
type DockerConfig struct {
	Container string `koanf:"container"`
}

// Link is one entry of the dashboard link directory.
type Link struct {
	Name        string `koanf:"name" json:"name"`
	URL         string `koanf:"url" json:"url"`
	Icon        string `koanf:"icon" json:"icon"`
	Description string `koanf:"description" json:"description"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() *Config {
	return &Config{
		ServerPort:   8080,
		DatabasePath: "./data/users.db",
		AppEnv:       "production",
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Session: SessionConfig{
			TTL:          24 * time.Hour,
			KeyFile:      "./data/session.key",
			CookieName:   "portal_session",
			CookieSecure: true,
		},
		Password: PasswordConfig{
			Cost: 10,
		},
		Maintenance: MaintenanceConfig{
			Schedule:      "@every 6h",
			StatsInterval: 15 * time.Second,
		},
		Docker: DockerConfig{
			Container: "lab-portal",
		},
	}
}

// Load loads configuration from defaults, an optional YAML file and
// PORTAL_-prefixed environment variables, in that order.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Defaults()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.ServerPort))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database_path is required"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session.ttl must be positive"))
	}
	if c.Session.KeyFile == "" && c.Session.Secret == "" {
		errs = append(errs, errors.New("one of session.key_file or session.secret is required"))
	}
	if c.Session.CookieName == "" {
		errs = append(errs, errors.New("session.cookie_name is required"))
	}
	if c.Password.Cost < 4 || c.Password.Cost > 31 {
		errs = append(errs, fmt.Errorf("password.cost %d out of bcrypt range", c.Password.Cost))
	}
	for i, l := range c.Links {
		if l.Name == "" || l.URL == "" {
			errs = append(errs, fmt.Errorf("links[%d]: name and url are required", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// IsProduction reports whether the portal runs with production defaults.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// envKey maps PORTAL_SESSION__COOKIE_DOMAIN to session.cookie_domain.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}
