package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Settings Types
// =============================================================================

// Settings holds the tool's own configuration, as opposed to the topology
// described by config.yml. Everything here has a working default and can be
// overridden through STACKCTL_ environment variables or an optional
// stackctl.yml next to the topology config.
type Settings struct {
	// BaseDir is the control repository directory holding config.yml.
	BaseDir string `mapstructure:"base_dir"`

	// ComposeBinary is the composition command to invoke. Multi-word values
	// such as "docker compose" are supported.
	ComposeBinary string `mapstructure:"compose_binary"`

	// PollInterval is the delay between readiness probes during staged
	// startup.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	Docker DockerSettings `mapstructure:"docker"`
	Log    LogSettings    `mapstructure:"log"`
}

// DockerSettings holds docker client configuration.
type DockerSettings struct {
	Host string `mapstructure:"host"`
}

// LogSettings holds logging configuration.
type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ComposeCommand returns the composition command split into argv form.
func (s *Settings) ComposeCommand() []string {
	return strings.Fields(s.ComposeBinary)
}

// =============================================================================
// Settings Loading
// =============================================================================

// LoadSettings loads tool settings from environment and the optional
// stackctl.yml in the base directory.
func LoadSettings() (*Settings, error) {
	v := viper.New()

	v.SetDefault("base_dir", ".")
	v.SetDefault("compose_binary", "docker-compose")
	v.SetDefault("poll_interval", "100ms")
	v.SetDefault("docker.host", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetEnvPrefix("STACKCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The settings file is optional and lives next to the topology config,
	// so the base dir has to be resolved before reading it.
	v.SetConfigFile(filepath.Join(v.GetString("base_dir"), "stackctl.yml"))
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigParseError); ok {
			return nil, fmt.Errorf("failed to parse settings file: %w", err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	return &settings, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format. Logs go
// to stderr so the composition tool's own output stays clean on stdout.
func SetupLogger(settings *Settings, debug bool) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(settings.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(settings.Log.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
