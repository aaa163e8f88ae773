// Package config loads yaml-bridge settings from a YAML file, a .env file
// and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sammcj/yaml-bridge/internal/clipboard"
	"gopkg.in/yaml.v3"
)

// Environment variables read by Load
const (
	ConfigPathEnvVar     = "YAML_BRIDGE_CONFIG"
	ClipboardEnvVar      = "YAML_BRIDGE_CLIPBOARD"
	YAMLIndentEnvVar     = "YAML_BRIDGE_YAML_INDENT"
	MaxInputBytesEnvVar  = "YAML_BRIDGE_MAX_INPUT_BYTES"
	AllowedOriginsEnvVar = "YAML_BRIDGE_ALLOWED_ORIGINS"
)

const (
	// DirName is the directory under the user's home holding config and logs
	DirName = ".yaml-bridge"
	// FileName is the default config file name
	FileName = "config.yaml"
	// DefaultPortsPath is the websocket path the port host listens on
	DefaultPortsPath = "/ports"
	// DefaultMaxInputBytes bounds conversion input size
	DefaultMaxInputBytes = 10 * 1024 * 1024
)

// Config holds all runtime settings
type Config struct {
	Clipboard     ClipboardConfig `yaml:"clipboard"`
	YAML          YAMLConfig      `yaml:"yaml"`
	MaxInputBytes int             `yaml:"max_input_bytes"`
	Ports         PortsConfig     `yaml:"ports"`
	AutoReload    bool            `yaml:"auto_reload"`
}

// ClipboardConfig selects the clipboard backend
type ClipboardConfig struct {
	Backend string `yaml:"backend"`
}

// YAMLConfig controls YAML output
type YAMLConfig struct {
	Indent int `yaml:"indent"`
}

// PortsConfig configures the websocket port host
type PortsConfig struct {
	Listen         string   `yaml:"listen"`
	Path           string   `yaml:"path"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Default returns the built-in settings
func Default() *Config {
	return &Config{
		Clipboard:     ClipboardConfig{Backend: clipboard.BackendSystem},
		YAML:          YAMLConfig{Indent: 2},
		MaxInputBytes: DefaultMaxInputBytes,
		Ports:         PortsConfig{Path: DefaultPortsPath},
	}
}

// Dir returns ~/.yaml-bridge
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DirName
	}
	return filepath.Join(home, DirName)
}

// LogDir returns the directory log files are written to
func LogDir() string {
	return filepath.Join(Dir(), "logs")
}

// Path returns the config file path, honouring YAML_BRIDGE_CONFIG
func Path() string {
	if p := strings.TrimSpace(os.Getenv(ConfigPathEnvVar)); p != "" {
		return p
	}
	return filepath.Join(Dir(), FileName)
}

// LoadDotEnv loads .env from the working directory without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// Load reads the config file at path, applies environment overrides and
// validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.Ports.Path == "" {
		cfg.Ports.Path = DefaultPortsPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv(ClipboardEnvVar)); v != "" {
		c.Clipboard.Backend = v
	}
	if v := strings.TrimSpace(os.Getenv(YAMLIndentEnvVar)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", YAMLIndentEnvVar, err)
		}
		c.YAML.Indent = n
	}
	if v := strings.TrimSpace(os.Getenv(MaxInputBytesEnvVar)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", MaxInputBytesEnvVar, err)
		}
		c.MaxInputBytes = n
	}
	if v := os.Getenv(AllowedOriginsEnvVar); v != "" {
		c.Ports.AllowedOrigins = nil
		for origin := range strings.SplitSeq(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				c.Ports.AllowedOrigins = append(c.Ports.AllowedOrigins, origin)
			}
		}
	}
	return nil
}

// Validate reports every invalid setting
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Clipboard.Backend) {
	case clipboard.BackendSystem, clipboard.BackendMemory, clipboard.BackendNone:
	default:
		errs = append(errs, fmt.Errorf("clipboard.backend must be one of %s, %s, %s; got %q",
			clipboard.BackendSystem, clipboard.BackendMemory, clipboard.BackendNone, c.Clipboard.Backend))
	}
	if c.YAML.Indent < 2 || c.YAML.Indent > 9 {
		errs = append(errs, fmt.Errorf("yaml.indent must be between 2 and 9, got %d", c.YAML.Indent))
	}
	if c.MaxInputBytes < 0 {
		errs = append(errs, fmt.Errorf("max_input_bytes must not be negative, got %d", c.MaxInputBytes))
	}
	if !strings.HasPrefix(c.Ports.Path, "/") {
		errs = append(errs, fmt.Errorf("ports.path must start with '/', got %q", c.Ports.Path))
	}
	return errors.Join(errs...)
}
