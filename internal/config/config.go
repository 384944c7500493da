package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Mode selects how the frontend is served. It is decided once at startup.
type Mode string

const (
	Development Mode = "development"
	Production  Mode = "production"
)

// ParseMode maps a NODE_ENV value to a Mode. Only "production" selects
// production serving; anything else, including an empty value, is development.
func ParseMode(env string) Mode {
	if env == string(Production) {
		return Production
	}
	return Development
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	Listen          string        `toml:"listen"`
	Port            int           `toml:"port"`
	BodyLimit       int64         `toml:"body_limit"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

// StaticConfig holds settings for production static serving.
type StaticConfig struct {
	Dir             string   `toml:"dir"`
	Index           string   `toml:"index"`
	FallbackExclude []string `toml:"fallback_exclude"`
	Watch           bool     `toml:"watch"`
}

// BundlerConfig holds settings for the development bundler.
type BundlerConfig struct {
	URL          string        `toml:"url"`
	Spawn        bool          `toml:"spawn"`
	Command      []string      `toml:"command"`
	Dir          string        `toml:"dir"`
	HMRPath      string        `toml:"hmr_path"`
	ReadyTimeout time.Duration `toml:"ready_timeout"`
	StopTimeout  time.Duration `toml:"stop_timeout"`
}

// LoggingConfig holds settings for structured logging.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

// Config is the top-level configuration for webstart.
type Config struct {
	Env     string        `toml:"env"`
	Server  ServerConfig  `toml:"server"`
	Static  StaticConfig  `toml:"static"`
	Bundler BundlerConfig `toml:"bundler"`
	Logging LoggingConfig `toml:"logging"`
}

func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Listen:          "0.0.0.0",
			Port:            5000,
			BodyLimit:       100 << 10,
			ShutdownTimeout: 10 * time.Second,
		},
		Static: StaticConfig{
			Dir:   "client/dist",
			Index: "index.html",
		},
		Bundler: BundlerConfig{
			URL:          "http://localhost:3000",
			Spawn:        true,
			Command:      []string{"npx", "vite", "--port", "3000", "--strictPort"},
			Dir:          "",
			HMRPath:      "/",
			ReadyTimeout: 30 * time.Second,
			StopTimeout:  5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds the configuration from defaults, an optional TOML file, optional
// .env files and the process environment, in that order of precedence.
// Variables already present in the environment are never overridden by .env files.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Defaults()

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return cfg, fmt.Errorf("load env file %s: %w", f, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func findConfigFile() string {
	for _, p := range []string{"webstart.toml", "/etc/webstart/config.toml"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("NODE_ENV"); ok {
		cfg.Env = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("WEBSTART_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}
	if v := os.Getenv("WEBSTART_STATIC_DIR"); v != "" {
		cfg.Static.Dir = v
	}
	if v := os.Getenv("WEBSTART_BUNDLER_URL"); v != "" {
		cfg.Bundler.URL = v
	}
	if v := os.Getenv("WEBSTART_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("WEBSTART_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	return nil
}

// Mode reports the serving mode selected by Env.
func (c *Config) Mode() Mode {
	return ParseMode(c.Env)
}

// EnvName is the environment name reported at startup.
func (c *Config) EnvName() string {
	if c.Env == "" {
		return string(Development)
	}
	return c.Env
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Listen, c.Server.Port)
}

// Validate checks that the values needed by the selected mode are present and sane.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Server.Port))
	}
	if c.Server.BodyLimit <= 0 {
		errs = append(errs, errors.New("body limit must be positive"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	switch c.Mode() {
	case Production:
		if c.Static.Dir == "" {
			errs = append(errs, errors.New("static dir is required in production"))
		}
		if c.Static.Index == "" {
			errs = append(errs, errors.New("static index document is required in production"))
		}
	case Development:
		if c.Bundler.URL == "" {
			errs = append(errs, errors.New("bundler url is required in development"))
		} else if u, err := url.Parse(c.Bundler.URL); err != nil || u.Host == "" {
			errs = append(errs, fmt.Errorf("invalid bundler url %q", c.Bundler.URL))
		}
		if c.Bundler.Spawn && len(c.Bundler.Command) == 0 {
			errs = append(errs, errors.New("bundler command is required when spawn is enabled"))
		}
		if c.Bundler.HMRPath == "" {
			c.Bundler.HMRPath = "/"
		}
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q (expected console or json)", c.Logging.Format))
	}

	return errors.Join(errs...)
}
