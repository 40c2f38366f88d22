// Package config handles TOML (or YAML) configuration loading with sensible defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// DefaultDateFormat matches the asctime layout of the log files we tail.
const DefaultDateFormat = "2006-01-02 15:04:05"

// TokenEnv overrides an empty token in the config file.
const TokenEnv = "LOGRELAY_TOKEN"

// Config is the top-level configuration for logrelay.
type Config struct {
	Token      string                `toml:"token" yaml:"token"`
	DateFormat string                `toml:"date_format" yaml:"date_format"`
	BufferSize int                   `toml:"buffer_size" yaml:"buffer_size"`
	Files      map[string]FileConfig `toml:"files" yaml:"files"`

	Status   *Route `toml:"status" yaml:"status"`
	Debug    *Route `toml:"DEBUG" yaml:"DEBUG"`
	Info     *Route `toml:"INFO" yaml:"INFO"`
	Warning  *Route `toml:"WARNING" yaml:"WARNING"`
	Error    *Route `toml:"ERROR" yaml:"ERROR"`
	Critical *Route `toml:"CRITICAL" yaml:"CRITICAL"`

	Staleness StalenessConfig `toml:"staleness" yaml:"staleness"`
	Notify    NotifyConfig    `toml:"notify" yaml:"notify"`
	DB        DBConfig        `toml:"db" yaml:"db"`
	Log       LogConfig       `toml:"log" yaml:"log"`
}

// FileConfig describes one tracked log file.
type FileConfig struct {
	// Period is the expected update interval in hours. Nil disables
	// staleness checks for the file.
	Period  *float64 `toml:"period" yaml:"period"`
	Channel string   `toml:"channel" yaml:"channel"`
	Tags    []string `toml:"tags" yaml:"tags"`
}

// Route is a destination for one category of messages.
type Route struct {
	Channel string   `toml:"channel" yaml:"channel"`
	Tags    []string `toml:"tags" yaml:"tags"`
}

// StalenessConfig controls the staleness monitor.
type StalenessConfig struct {
	ResendPeriod Duration `toml:"resend_period" yaml:"resend_period"`
	Tick         Duration `toml:"tick" yaml:"tick"`
}

// NotifyConfig selects the notification backend.
type NotifyConfig struct {
	Backend string `toml:"backend" yaml:"backend"`
	URL     string `toml:"url" yaml:"url"`
}

// DBConfig controls the delivery history database.
type DBConfig struct {
	Path      string   `toml:"path" yaml:"path"`
	Retention Duration `toml:"retention" yaml:"retention"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// Duration wraps time.Duration for string parsing (e.g. "5m", "1h").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		DateFormat: DefaultDateFormat,
		BufferSize: 8192,
		Files:      map[string]FileConfig{},
		Staleness: StalenessConfig{
			ResendPeriod: Duration{time.Hour},
			Tick:         Duration{time.Second},
		},
		Notify: NotifyConfig{
			Backend: "slack",
		},
		DB: DBConfig{
			Retention: Duration{30 * 24 * time.Hour},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(configDir, "logrelay", "config.toml")
}

// Load reads configuration from the given path, falling back to defaults
// for any unset fields. If the file does not exist, returns defaults.
// Files ending in .yaml or .yml are decoded as YAML, everything else as TOML.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if c.Token == "" {
		c.Token = os.Getenv(TokenEnv)
	}
}

// maxPeriodHours is the longest period representable as a time.Duration.
var maxPeriodHours = math.Floor(float64(math.MaxInt64) / float64(time.Hour))

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Files) == 0 {
		errs = append(errs, errors.New("no files configured"))
	}
	for _, path := range sortedKeys(c.Files) {
		fc := c.Files[path]
		if fc.Period != nil {
			switch p := *fc.Period; {
			case math.IsNaN(p) || p <= 0:
				errs = append(errs, fmt.Errorf("files.%q: period must be positive, got %v", path, p))
			case p > maxPeriodHours:
				errs = append(errs, fmt.Errorf("files.%q: period must be at most %.0f hours, got %v", path, maxPeriodHours, p))
			}
			if fc.Channel == "" {
				errs = append(errs, fmt.Errorf("files.%q: channel is required when period is set", path))
			}
		}
	}
	for _, cat := range sortedKeys(c.Routes()) {
		if c.Routes()[cat].Channel == "" {
			errs = append(errs, fmt.Errorf("%s: channel is required", cat))
		}
	}

	switch c.Notify.Backend {
	case "slack":
		if c.Token == "" {
			errs = append(errs, fmt.Errorf("token is required for the slack backend (or set %s)", TokenEnv))
		}
	case "ntfy":
		if c.Notify.URL == "" {
			errs = append(errs, errors.New("notify.url is required for the ntfy backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("notify.backend: unknown backend %q", c.Notify.Backend))
	}

	if c.BufferSize <= 0 {
		errs = append(errs, fmt.Errorf("buffer_size must be positive, got %d", c.BufferSize))
	}
	if c.Staleness.Tick.Duration <= 0 {
		errs = append(errs, errors.New("staleness.tick must be positive"))
	}
	if c.Staleness.ResendPeriod.Duration < 0 {
		errs = append(errs, errors.New("staleness.resend_period must not be negative"))
	}
	if err := checkLayout(c.DateFormat); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// checkLayout rejects layouts that cannot round-trip a timestamp, which
// catches strftime-style patterns like "%Y-%m-%d".
func checkLayout(layout string) error {
	if layout == "" {
		return errors.New("date_format must not be empty")
	}
	ref := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	if _, err := time.Parse(layout, ref.Format(layout)); err != nil {
		return fmt.Errorf("date_format %q: %w", layout, err)
	}
	if ref.Format(layout) == layout {
		return fmt.Errorf("date_format %q contains no time fields", layout)
	}
	return nil
}

// Routes returns the configured category destinations, keyed by category.
// The status route is included under "status".
func (c *Config) Routes() map[string]Route {
	routes := make(map[string]Route)
	for name, r := range map[string]*Route{
		"status":   c.Status,
		"DEBUG":    c.Debug,
		"INFO":     c.Info,
		"WARNING":  c.Warning,
		"ERROR":    c.Error,
		"CRITICAL": c.Critical,
	} {
		if r != nil {
			routes[name] = *r
		}
	}
	return routes
}

// DBPath returns the delivery history database path.
func (c *Config) DBPath() string {
	if c.DB.Path != "" {
		return c.DB.Path
	}
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "logrelay", "history.db")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
