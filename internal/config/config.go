// Package config provides configuration management for the overlay agent.
// Values come from built-in defaults, then an optional YAML file, then
// environment variables, each layer overriding the one before.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// Default values
	DefaultPort                 = 8787
	DefaultLogLevel             = "info"
	DefaultDataDir              = ".heimdex-overlay"
	DefaultExportTimeout        = 30 * time.Minute
	DefaultMaxConcurrentRenders = 2
	DefaultRenderWorkers        = 4
	DefaultSessionTTL           = 2 * time.Hour
	DefaultMaxSessions          = 64

	// Environment variable names
	EnvConfigFile           = "HEIMDEX_OVERLAY_CONFIG"
	EnvPort                 = "HEIMDEX_OVERLAY_PORT"
	EnvLogLevel             = "HEIMDEX_OVERLAY_LOG_LEVEL"
	EnvDataDir              = "HEIMDEX_OVERLAY_DATA_DIR"
	EnvUploadsDir           = "HEIMDEX_OVERLAY_UPLOADS_DIR"
	EnvRenderer             = "HEIMDEX_OVERLAY_RENDERER"
	EnvFontPath             = "HEIMDEX_OVERLAY_FONT"
	EnvExportTimeout        = "HEIMDEX_OVERLAY_EXPORT_TIMEOUT"
	EnvMaxConcurrentRenders = "HEIMDEX_OVERLAY_MAX_CONCURRENT_RENDERS"
	EnvRenderWorkers        = "HEIMDEX_OVERLAY_RENDER_WORKERS"
	EnvSessionTTL           = "HEIMDEX_OVERLAY_SESSION_TTL"
	EnvMaxSessions          = "HEIMDEX_OVERLAY_MAX_SESSIONS"

	// Database filename
	DBFilename = "overlay.db"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	UploadsDir() string
	ExportsDir() string
	RendererPath() string
	FontPath() string
	ExportTimeout() time.Duration
	MaxConcurrentRenders() int
	RenderWorkers() int
	SessionTTL() time.Duration
	MaxSessions() int
}

// fileConfig is the YAML layout. Durations are Go duration strings.
type fileConfig struct {
	Port                 int    `yaml:"port"`
	LogLevel             string `yaml:"log_level"`
	DataDir              string `yaml:"data_dir"`
	UploadsDir           string `yaml:"uploads_dir"`
	Renderer             string `yaml:"renderer"`
	FontPath             string `yaml:"font"`
	ExportTimeout        string `yaml:"export_timeout"`
	MaxConcurrentRenders int    `yaml:"max_concurrent_renders"`
	RenderWorkers        int    `yaml:"render_workers"`
	SessionTTL           string `yaml:"session_ttl"`
	MaxSessions          int    `yaml:"max_sessions"`
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port                 int
	logLevel             string
	dataDir              string
	uploadsDir           string
	rendererPath         string
	fontPath             string
	exportTimeout        time.Duration
	maxConcurrentRenders int
	renderWorkers        int
	sessionTTL           time.Duration
	maxSessions          int
}

// LoadDotEnv loads KEY=value files into the environment without overriding
// variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// New creates a new EnvConfig with defaults, the optional YAML file and
// environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:                 DefaultPort,
		logLevel:             DefaultLogLevel,
		dataDir:              defaultDataDir(),
		exportTimeout:        DefaultExportTimeout,
		maxConcurrentRenders: DefaultMaxConcurrentRenders,
		renderWorkers:        DefaultRenderWorkers,
		sessionTTL:           DefaultSessionTTL,
		maxSessions:          DefaultMaxSessions,
	}

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *EnvConfig) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if f.Port != 0 {
		if err := c.setPort(f.Port, "port"); err != nil {
			return err
		}
	}
	setString(&c.logLevel, f.LogLevel)
	setString(&c.dataDir, f.DataDir)
	setString(&c.uploadsDir, f.UploadsDir)
	setString(&c.rendererPath, f.Renderer)
	setString(&c.fontPath, f.FontPath)
	if err := setDuration(&c.exportTimeout, f.ExportTimeout, "export_timeout"); err != nil {
		return err
	}
	if err := setDuration(&c.sessionTTL, f.SessionTTL, "session_ttl"); err != nil {
		return err
	}
	if err := setPositive(&c.maxConcurrentRenders, f.MaxConcurrentRenders, "max_concurrent_renders"); err != nil {
		return err
	}
	if err := setPositive(&c.renderWorkers, f.RenderWorkers, "render_workers"); err != nil {
		return err
	}
	return setPositive(&c.maxSessions, f.MaxSessions, "max_sessions")
}

func (c *EnvConfig) applyEnv() error {
	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if err := c.setPort(port, EnvPort); err != nil {
			return err
		}
	}

	setString(&c.logLevel, os.Getenv(EnvLogLevel))
	setString(&c.dataDir, os.Getenv(EnvDataDir))
	setString(&c.uploadsDir, os.Getenv(EnvUploadsDir))
	setString(&c.rendererPath, os.Getenv(EnvRenderer))
	setString(&c.fontPath, os.Getenv(EnvFontPath))

	if err := setDuration(&c.exportTimeout, os.Getenv(EnvExportTimeout), EnvExportTimeout); err != nil {
		return err
	}
	if err := setDuration(&c.sessionTTL, os.Getenv(EnvSessionTTL), EnvSessionTTL); err != nil {
		return err
	}

	ints := []struct {
		dst *int
		env string
	}{
		{&c.maxConcurrentRenders, EnvMaxConcurrentRenders},
		{&c.renderWorkers, EnvRenderWorkers},
		{&c.maxSessions, EnvMaxSessions},
	}
	for _, v := range ints {
		s := os.Getenv(v.env)
		if s == "" {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", v.env, err)
		}
		if err := setPositive(v.dst, n, v.env); err != nil {
			return err
		}
	}
	return nil
}

func (c *EnvConfig) setPort(port int, name string) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid %s: port must be between 1 and 65535", name)
	}
	c.port = port
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v, name string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if d <= 0 {
		return fmt.Errorf("invalid %s: must be positive", name)
	}
	*dst = d
	return nil
}

func setPositive(dst *int, v int, name string) error {
	if v == 0 {
		return nil
	}
	if v < 0 {
		return fmt.Errorf("invalid %s: must be positive", name)
	}
	*dst = v
	return nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// UploadsDir is where uploaded videos are stored and served from.
func (c *EnvConfig) UploadsDir() string {
	if c.uploadsDir != "" {
		return c.uploadsDir
	}
	return filepath.Join(c.dataDir, "uploads")
}

// ExportsDir holds transient props files and renderer output.
func (c *EnvConfig) ExportsDir() string {
	return filepath.Join(c.dataDir, "exports")
}

// RendererPath is empty when the renderer should be looked up.
func (c *EnvConfig) RendererPath() string {
	return c.rendererPath
}

func (c *EnvConfig) FontPath() string {
	return c.fontPath
}

func (c *EnvConfig) ExportTimeout() time.Duration {
	return c.exportTimeout
}

func (c *EnvConfig) MaxConcurrentRenders() int {
	return c.maxConcurrentRenders
}

func (c *EnvConfig) RenderWorkers() int {
	return c.renderWorkers
}

func (c *EnvConfig) SessionTTL() time.Duration {
	return c.sessionTTL
}

func (c *EnvConfig) MaxSessions() int {
	return c.maxSessions
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}
