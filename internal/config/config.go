package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/crimson-sun/waflog/internal/sink"
	"github.com/crimson-sun/waflog/internal/store"
)

// Version is the release version, overridden at build time with -ldflags.
var Version = "0.1.0-dev"

// Config holds all waflog configuration.
type Config struct {
	Store           StoreConfig     `yaml:"store"`
	Server          ServerConfig    `yaml:"server"`
	Generator       GeneratorConfig `yaml:"generator"`
	Log             LogConfig       `yaml:"log"`
	Sinks           []sink.Config   `yaml:"sinks"`
	SinkBuffer      int             `yaml:"sink_buffer"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`
}

// StoreConfig locates the log file.
type StoreConfig struct {
	Path   string `yaml:"path"`
	Format string `yaml:"format"` // "json" or "ndjson"
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// GeneratorConfig controls the background simulator.
type GeneratorConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Seed     uint64        `yaml:"seed"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Store:           StoreConfig{Path: "waf_logs.json", Format: string(store.FormatJSON)},
		Server:          ServerConfig{Port: 5000, CORSOrigins: []string{"*"}},
		Generator:       GeneratorConfig{Enabled: true, Interval: 5 * time.Second},
		Log:             LogConfig{Level: "info", Format: "text"},
		SinkBuffer:      1024,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (or $WAFLOG_CONFIG when path is empty), then environment variables. A
// missing explicit file is an error; no file at all is fine.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path == "" {
		path = os.Getenv("WAFLOG_CONFIG")
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Store.Path = getenv("WAFLOG_STORE_PATH", cfg.Store.Path)
	cfg.Store.Format = getenv("WAFLOG_STORE_FORMAT", cfg.Store.Format)

	cfg.Server.Port = getenvInt("WAFLOG_PORT", cfg.Server.Port)
	if v := os.Getenv("WAFLOG_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = splitList(v)
	}

	cfg.Generator.Enabled = getenvBool("WAFLOG_GENERATOR_ENABLED", cfg.Generator.Enabled)
	cfg.Generator.Interval = getenvDuration("WAFLOG_GENERATOR_INTERVAL", cfg.Generator.Interval)
	cfg.Generator.Seed = getenvUint64("WAFLOG_GENERATOR_SEED", cfg.Generator.Seed)

	cfg.Log.Level = getenv("WAFLOG_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getenv("WAFLOG_LOG_FORMAT", cfg.Log.Format)

	cfg.SinkBuffer = getenvInt("WAFLOG_SINK_BUFFER", cfg.SinkBuffer)
	cfg.ShutdownTimeout = getenvDuration("WAFLOG_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)

	if v := os.Getenv("WAFLOG_SINKS"); v != "" {
		cfg.Sinks = loadSinks(splitList(v))
	}
}

// loadSinks reads per-sink settings for each name in WAFLOG_SINKS:
// WAFLOG_SINK_<NAME>_ENDPOINT, _TOKEN, and _EXTRA as comma-separated k=v pairs.
func loadSinks(names []string) []sink.Config {
	cfgs := make([]sink.Config, 0, len(names))
	for _, name := range names {
		prefix := "WAFLOG_SINK_" + strings.ToUpper(name) + "_"
		cfgs = append(cfgs, sink.Config{
			Name:     name,
			Endpoint: os.Getenv(prefix + "ENDPOINT"),
			Token:    os.Getenv(prefix + "TOKEN"),
			Extra:    parseExtra(os.Getenv(prefix + "EXTRA")),
		})
	}
	return cfgs
}

func parseExtra(s string) map[string]string {
	var m map[string]string
	for _, pair := range splitList(s) {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			continue
		}
		if m == nil {
			m = make(map[string]string)
		}
		m[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return m
}

// Validate checks the configuration and returns every problem found.
func (c Config) Validate() error {
	var errs []error

	if c.Store.Path == "" {
		errs = append(errs, errors.New("store path must not be empty (WAFLOG_STORE_PATH)"))
	}
	if _, err := store.ParseFormat(c.Store.Format); err != nil {
		errs = append(errs, err)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Generator.Enabled && c.Generator.Interval <= 0 {
		errs = append(errs, fmt.Errorf("generator interval must be positive, got %s", c.Generator.Interval))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log level must be debug, info, warn or error, got %q", c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log format must be text or json, got %q", c.Log.Format))
	}
	if c.SinkBuffer < 1 {
		errs = append(errs, fmt.Errorf("sink buffer must be positive, got %d", c.SinkBuffer))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown timeout must be positive, got %s", c.ShutdownTimeout))
	}

	seen := make(map[string]bool, len(c.Sinks))
	for i, s := range c.Sinks {
		switch {
		case s.Name == "":
			errs = append(errs, fmt.Errorf("sinks[%d]: name is required", i))
		case seen[s.Name]:
			errs = append(errs, fmt.Errorf("sinks[%d]: duplicate sink %q", i, s.Name))
		}
		seen[s.Name] = true
		if _, err := sink.FilterFromConfig(s); err != nil {
			errs = append(errs, fmt.Errorf("sinks[%d]: %w", i, err))
		}
	}

	return errors.Join(errs...)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvUint64(key string, fallback uint64) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
