// Package config gathers the server settings from defaults, a YAML file,
// .env and the environment
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all settings of the server
type Config struct {
	Debug bool   `yaml:"debug"`
	Port  string `yaml:"port"`

	Game     GameConfig     `yaml:"game"`
	Janitor  JanitorConfig  `yaml:"janitor"`
	Reporter ReporterConfig `yaml:"reporter"`
	Server   ServerConfig   `yaml:"server"`
}

// GameConfig shapes every new board
type GameConfig struct {
	Size                 int           `yaml:"size"`
	Mines                int           `yaml:"mines"`
	LevelDelay           time.Duration `yaml:"level_delay"`
	TrustChordCandidates bool          `yaml:"trust_chord_candidates"`
}

// JanitorConfig controls session eviction
type JanitorConfig struct {
	DisconnectGrace    time.Duration `yaml:"disconnect_grace"`
	SweepInterval      time.Duration `yaml:"sweep_interval"`
	IdleThreshold      time.Duration `yaml:"idle_threshold"`
	SweepDelay         time.Duration `yaml:"sweep_delay"`
	ForceIdleThreshold time.Duration `yaml:"force_idle_threshold"`
}

// ReporterConfig controls where and how outcomes are reported
type ReporterConfig struct {
	APIURL      string        `yaml:"api_url"`
	LedgerPath  string        `yaml:"ledger_path"`
	Timeout     time.Duration `yaml:"timeout"`
	Fallback    time.Duration `yaml:"fallback"`
	MaxInFlight int           `yaml:"max_in_flight"`
}

// ServerConfig holds the transport and admin settings
type ServerConfig struct {
	AdminSecret   string  `yaml:"admin_secret"`
	AllowedOrigin string  `yaml:"allowed_origin"`
	RateLimit     float64 `yaml:"rate_limit"`
	RateBurst     int     `yaml:"rate_burst"`
}

// Default returns the built-in settings
func Default() *Config {
	return &Config{
		Port: "3001",
		Game: GameConfig{
			Size:       20,
			Mines:      70,
			LevelDelay: 50 * time.Millisecond,
		},
		Janitor: JanitorConfig{
			DisconnectGrace:    30 * time.Second,
			SweepInterval:      time.Hour,
			IdleThreshold:      2 * time.Hour,
			SweepDelay:         5 * time.Minute,
			ForceIdleThreshold: time.Hour,
		},
		Reporter: ReporterConfig{
			Timeout:     3 * time.Second,
			Fallback:    time.Second,
			MaxInFlight: 64,
		},
		Server: ServerConfig{
			AdminSecret:   "minesweeper-admin",
			AllowedOrigin: "http://localhost:3000",
			RateLimit:     20,
			RateBurst:     40,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path if
// any, then .env, then the process environment. The result is not
// validated so that callers can apply flags first.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

// LoadFile overlays the YAML file at path. Keys missing from the file keep
// their current value.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays the environment variables the deployment sets
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	set("PORT", &c.Port)
	set("API_URL", &c.Reporter.APIURL)
	set("LEDGER_PATH", &c.Reporter.LedgerPath)
	set("ADMIN_SECRET", &c.Server.AdminSecret)
	set("FRONTEND_URL", &c.Server.AllowedOrigin)
}

// Validate reports every setting that cannot work
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...)))
		}
	}

	check(c.Port != "", "port is empty")
	check(c.Game.Size > 0, "game.size must be positive, got %d", c.Game.Size)
	check(c.Game.Mines >= 0, "game.mines must not be negative, got %d", c.Game.Mines)
	check(c.Game.LevelDelay > 0, "game.level_delay must be positive")

	check(c.Janitor.DisconnectGrace > 0, "janitor.disconnect_grace must be positive")
	check(c.Janitor.SweepInterval > 0, "janitor.sweep_interval must be positive")
	check(c.Janitor.IdleThreshold > 0, "janitor.idle_threshold must be positive")
	check(c.Janitor.SweepDelay > 0, "janitor.sweep_delay must be positive")
	check(c.Janitor.ForceIdleThreshold > 0, "janitor.force_idle_threshold must be positive")

	check(c.Reporter.Timeout > 0, "reporter.timeout must be positive")
	check(c.Reporter.Fallback > 0, "reporter.fallback must be positive")
	check(c.Reporter.MaxInFlight > 0, "reporter.max_in_flight must be positive")

	check(c.Server.AdminSecret != "", "server.admin_secret is empty")
	check(c.Server.RateLimit >= 0, "server.rate_limit must not be negative")
	check(c.Server.RateBurst >= 0, "server.rate_burst must not be negative")

	return errors.Join(errs...)
}
