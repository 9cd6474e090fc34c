package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds server-related settings.
type ServerConfig struct {
	Addr      string
	AuthToken string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// TimerConfig holds countdown driver settings.
type TimerConfig struct {
	TickInterval time.Duration
}

// JournalConfig holds cycle journal settings.
type JournalConfig struct {
	Retention int
}

// BarkConfig holds Bark notification settings.
type BarkConfig struct {
	URL     string
	Enabled bool
}

// NotificationConfig holds all notification settings.
type NotificationConfig struct {
	Bark BarkConfig
}

// Config holds all runtime configuration options for the daemon.
type Config struct {
	Server       ServerConfig
	Log          LogConfig
	Timer        TimerConfig
	Journal      JournalConfig
	Notification NotificationConfig

	Mode          string
	StateDir      string
	ConfigFile    string
	ShutdownGrace time.Duration
	UseUTC        bool
}

const (
	defaultAddr             = "127.0.0.1:7171"
	defaultLogLevel         = "info"
	defaultLogFormat        = "text"
	defaultMode             = "http"
	defaultJournalRetention = 500
	defaultTickInterval     = time.Second
	defaultShutdownGrace    = 5 * time.Second

	appDirName = "focuscycle"
)

// fileConfig mirrors the optional config.yaml.
type fileConfig struct {
	Addr             string `yaml:"addr"`
	AuthToken        string `yaml:"auth_token"`
	LogLevel         string `yaml:"log_level"`
	LogFormat        string `yaml:"log_format"`
	Mode             string `yaml:"mode"`
	StateDir         string `yaml:"state_dir"`
	TickInterval     string `yaml:"tick_interval"`
	JournalRetention int    `yaml:"journal_retention"`
	ShutdownGrace    string `yaml:"shutdown_grace"`
	UseUTC           *bool  `yaml:"use_utc"`
	Bark             struct {
		URL     string `yaml:"url"`
		Enabled *bool  `yaml:"enabled"`
	} `yaml:"bark"`
}

// getEnvString returns the environment variable value or default
func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt returns the environment variable as int or default
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvBool returns the environment variable as bool or default
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		lower := strings.ToLower(val)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultVal
}

// getEnvDuration returns the environment variable as duration or default
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// Default returns a Config populated with built-in defaults.
func Default() *Config {
	return &Config{
		Server:        ServerConfig{Addr: defaultAddr},
		Log:           LogConfig{Level: defaultLogLevel, Format: defaultLogFormat},
		Timer:         TimerConfig{TickInterval: defaultTickInterval},
		Journal:       JournalConfig{Retention: defaultJournalRetention},
		Mode:          defaultMode,
		ShutdownGrace: defaultShutdownGrace,
	}
}

// Parse resolves configuration from args, the environment and files.
// Priority: CLI flags > environment variables > .env file > config.yaml > defaults
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet(appDirName, flag.ContinueOnError)
	var (
		addr, logLevel, logFormat, mode, stateDir, configFile string
		retention                                              int
		tick, shutdownGrace                                    time.Duration
		useUTC                                                 bool
	)
	fs.StringVar(&addr, "addr", "", "HTTP listen address (overrides env)")
	fs.StringVar(&stateDir, "state-dir", "", "Directory holding the cycle journal")
	fs.StringVar(&configFile, "config", "", "Path to a YAML config file")
	fs.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&logFormat, "log-format", "", "Log format (text, json)")
	fs.StringVar(&mode, "mode", "", "Serving mode (http, mcp, both)")
	fs.IntVar(&retention, "journal-retention", 0, "Number of journaled cycles to keep")
	fs.DurationVar(&tick, "tick", 0, "Countdown sampling interval")
	fs.DurationVar(&shutdownGrace, "shutdown-grace", 0, "Grace period when shutting down")
	fs.BoolVar(&useUTC, "utc", false, "Display times in UTC instead of local time")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// .env is optional; check the working directory, then the config directory.
	envFiles := []string{".env"}
	if configDir, err := os.UserConfigDir(); err == nil {
		envFiles = append(envFiles, filepath.Join(configDir, appDirName, ".env"))
	}
	for _, file := range envFiles {
		_ = godotenv.Load(file)
	}

	cfg := Default()
	cfg.ConfigFile = configFile
	if cfg.ConfigFile == "" {
		cfg.ConfigFile = getEnvString("FOCUSCYCLE_CONFIG", "")
	}
	if err := cfg.applyFile(); err != nil {
		return nil, err
	}

	cfg.Server.Addr = getEnvString("FOCUSCYCLE_ADDR", cfg.Server.Addr)
	cfg.Server.AuthToken = getEnvString("FOCUSCYCLE_AUTH_TOKEN", cfg.Server.AuthToken)
	cfg.Log.Level = getEnvString("FOCUSCYCLE_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnvString("FOCUSCYCLE_LOG_FORMAT", cfg.Log.Format)
	cfg.Mode = getEnvString("FOCUSCYCLE_MODE", cfg.Mode)
	cfg.StateDir = getEnvString("FOCUSCYCLE_STATE_DIR", cfg.StateDir)
	cfg.Timer.TickInterval = getEnvDuration("FOCUSCYCLE_TICK_INTERVAL", cfg.Timer.TickInterval)
	cfg.Journal.Retention = getEnvInt("FOCUSCYCLE_JOURNAL_RETENTION", cfg.Journal.Retention)
	cfg.ShutdownGrace = getEnvDuration("FOCUSCYCLE_SHUTDOWN_GRACE", cfg.ShutdownGrace)
	cfg.Notification.Bark.URL = getEnvString("FOCUSCYCLE_BARK_URL", cfg.Notification.Bark.URL)
	cfg.Notification.Bark.Enabled = getEnvBool("FOCUSCYCLE_BARK_ENABLED", cfg.Notification.Bark.Enabled)
	cfg.UseUTC = getEnvBool("FOCUSCYCLE_USE_UTC", cfg.UseUTC)

	// Apply CLI flags if set (they take precedence)
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Server.Addr = addr
		case "state-dir":
			cfg.StateDir = stateDir
		case "log-level":
			cfg.Log.Level = logLevel
		case "log-format":
			cfg.Log.Format = logFormat
		case "mode":
			cfg.Mode = mode
		case "journal-retention":
			cfg.Journal.Retention = retention
		case "tick":
			cfg.Timer.TickInterval = tick
		case "shutdown-grace":
			cfg.ShutdownGrace = shutdownGrace
		case "utc":
			cfg.UseUTC = useUTC
		}
	})

	if cfg.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return nil, fmt.Errorf("resolve default state dir: %w", err)
		}
		cfg.StateDir = dir
	}
	if cfg.Journal.Retention < 1 {
		cfg.Journal.Retention = defaultJournalRetention
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	switch c.Mode {
	case "http", "mcp", "both":
	default:
		return fmt.Errorf("invalid mode %q: must be http, mcp or both", c.Mode)
	}
	if c.Timer.TickInterval < time.Second {
		return fmt.Errorf("tick interval (%v) cannot be less than 1s", c.Timer.TickInterval)
	}
	if c.ShutdownGrace <= 0 {
		return fmt.Errorf("shutdown grace must be positive")
	}
	if c.Notification.Bark.Enabled && c.Notification.Bark.URL == "" {
		return fmt.Errorf("bark notifications enabled without a url")
	}
	return nil
}

// applyFile merges config.yaml over the defaults. An explicit file must
// exist; the implicit one under the user config directory is optional.
func (c *Config) applyFile() error {
	path := c.ConfigFile
	explicit := path != ""
	if !explicit {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return nil
		}
		path = filepath.Join(configDir, appDirName, "config.yaml")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.ConfigFile = path

	if fc.Addr != "" {
		c.Server.Addr = fc.Addr
	}
	if fc.AuthToken != "" {
		c.Server.AuthToken = fc.AuthToken
	}
	if fc.LogLevel != "" {
		c.Log.Level = fc.LogLevel
	}
	if fc.LogFormat != "" {
		c.Log.Format = fc.LogFormat
	}
	if fc.Mode != "" {
		c.Mode = fc.Mode
	}
	if fc.StateDir != "" {
		c.StateDir = fc.StateDir
	}
	if fc.JournalRetention > 0 {
		c.Journal.Retention = fc.JournalRetention
	}
	if fc.TickInterval != "" {
		d, err := time.ParseDuration(fc.TickInterval)
		if err != nil {
			return fmt.Errorf("parse tick_interval: %w", err)
		}
		c.Timer.TickInterval = d
	}
	if fc.ShutdownGrace != "" {
		d, err := time.ParseDuration(fc.ShutdownGrace)
		if err != nil {
			return fmt.Errorf("parse shutdown_grace: %w", err)
		}
		c.ShutdownGrace = d
	}
	if fc.UseUTC != nil {
		c.UseUTC = *fc.UseUTC
	}
	if fc.Bark.URL != "" {
		c.Notification.Bark.URL = fc.Bark.URL
	}
	if fc.Bark.Enabled != nil {
		c.Notification.Bark.Enabled = *fc.Bark.Enabled
	}
	return nil
}

// Location returns the zone used when presenting timestamps.
func (c *Config) Location() *time.Location {
	if c.UseUTC {
		return time.UTC
	}
	return time.Local
}

func defaultStateDir() (string, error) {
	baseDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(baseDir, appDirName)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}
