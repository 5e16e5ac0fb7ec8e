// Package config holds the settings of the cachesim tools.
//
// Settings start from DefaultConfig, may be read from a JSON or YAML file,
// and may then be overridden by CACHESIM_* environment variables, which in
// turn may come from a .env file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Output formats.
const (
	OutputText = "text"
	OutputJSON = "json"
)

// Config holds the settings shared by the cachesim commands.
type Config struct {
	// Output selects how results and logs are printed: "text" or "json".
	// Default: text.
	Output string `json:"output" yaml:"output"`

	// LogLevel is one of debug, info, warn, error. Default: info.
	LogLevel string `json:"log_level" yaml:"log_level"`

	// Verify replays LRU traces through the Akita directory and fails the
	// run if the counts disagree. Default: false.
	Verify bool `json:"verify" yaml:"verify"`

	Record  RecordConfig  `json:"record" yaml:"record"`
	Monitor MonitorConfig `json:"monitor" yaml:"monitor"`
	S3      S3Config      `json:"s3" yaml:"s3"`
}

// RecordConfig controls the SQLite recorder.
type RecordConfig struct {
	// Path is the database file. Recording is disabled when empty.
	Path string `json:"path" yaml:"path"`
	// Accesses also records one row per replayed address.
	Accesses bool `json:"accesses" yaml:"accesses"`
}

// MonitorConfig controls the HTTP monitor started by "cachesim serve".
type MonitorConfig struct {
	// Port to listen on. 0 picks a free port. Default: 0.
	Port int `json:"port" yaml:"port"`
	// OpenBrowser opens the status page once the server is up.
	OpenBrowser bool `json:"open_browser" yaml:"open_browser"`
}

// S3Config controls access to s3:// trace locations.
type S3Config struct {
	Region          string `json:"region" yaml:"region"`
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
	ForcePathStyle  bool   `json:"force_path_style" yaml:"force_path_style"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Output:   OutputText,
		LogLevel: "info",
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadConfig loads a Config from a file. Files ending in .yaml or .yml are
// read as YAML, everything else as JSON. Missing fields keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// SaveConfig writes the Config to a file, choosing the format from the
// extension like LoadConfig.
func (c *Config) SaveConfig(path string) error {
	var (
		data []byte
		err  error
	)

	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadEnv loads environment files into the process environment without
// overriding variables that are already set. Missing files are ignored.
// With no arguments it loads ".env".
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, f := range files {
		err := godotenv.Load(f)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			continue
		}

		return fmt.Errorf("failed to load %s: %w", f, err)
	}

	return nil
}

// ApplyEnv overrides fields from CACHESIM_* environment variables.
func (c *Config) ApplyEnv() error {
	if val := os.Getenv("CACHESIM_OUTPUT"); val != "" {
		c.Output = val
	}
	if val := os.Getenv("CACHESIM_LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}
	if val := os.Getenv("CACHESIM_RECORD"); val != "" {
		c.Record.Path = val
	}
	if val := os.Getenv("CACHESIM_VERIFY"); val != "" {
		c.Verify = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("CACHESIM_MONITOR_PORT"); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid CACHESIM_MONITOR_PORT: %w", err)
		}
		c.Monitor.Port = port
	}
	if val := os.Getenv("CACHESIM_S3_REGION"); val != "" {
		c.S3.Region = val
	}
	if val := os.Getenv("CACHESIM_S3_ENDPOINT"); val != "" {
		c.S3.Endpoint = val
	}
	if val := os.Getenv("CACHESIM_S3_PATH_STYLE"); val != "" {
		c.S3.ForcePathStyle = strings.ToLower(val) == "true"
	}

	return nil
}

// Validate checks that all values are usable.
func (c *Config) Validate() error {
	if c.Output != OutputText && c.Output != OutputJSON {
		return fmt.Errorf("output must be %q or %q, got %q",
			OutputText, OutputJSON, c.Output)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Monitor.Port < 0 || c.Monitor.Port > 65535 {
		return fmt.Errorf("monitor port %d out of range", c.Monitor.Port)
	}
	if (c.S3.AccessKeyID == "") != (c.S3.SecretAccessKey == "") {
		return fmt.Errorf("s3 access key id and secret must be set together")
	}
	return nil
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

func parseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", level)
	}

	return l, nil
}

// Logger builds the structured logger described by the Config. JSON output
// selects the JSON handler.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.Output == OutputJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}
