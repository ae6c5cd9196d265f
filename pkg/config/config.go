package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sameehj/scriptguard/pkg/validator"
	"gopkg.in/yaml.v3"
)

// Config defines runtime settings for scriptguard.
type Config struct {
	Sandbox     string   `yaml:"sandbox"`
	Dialect     string   `yaml:"dialect"`
	Containment string   `yaml:"containment"`
	Denylist    []string `yaml:"denylist"`
	LogLevel    string   `yaml:"logLevel"`
	LogFormat   string   `yaml:"logFormat"`

	Scan    ScanConfig    `yaml:"scan"`
	Gateway GatewayConfig `yaml:"gateway"`
}

// ScanConfig controls file discovery for the check and watch commands.
type ScanConfig struct {
	Extensions []string `yaml:"extensions"`
	Workers    int      `yaml:"workers"`
}

// GatewayConfig controls the HTTP validation service.
type GatewayConfig struct {
	Address      string   `yaml:"address"`
	AllowedAddrs []string `yaml:"allowedAddrs"`
	MaxBodyBytes int64    `yaml:"maxBodyBytes"`
	MaxSessions  int      `yaml:"maxSessions"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Dialect:     string(validator.DialectBash),
		Containment: string(validator.ContainmentSegment),
		LogLevel:    "info",
		LogFormat:   "text",
		Scan: ScanConfig{
			Extensions: []string{".sh", ".bash", ".py", ".bat", ".cmd"},
			Workers:    4,
		},
		Gateway: GatewayConfig{
			Address:      "127.0.0.1:8787",
			MaxBodyBytes: 1 << 20,
		},
	}
}

// LoadConfig loads configuration from a YAML file and environment overrides.
// An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if sandbox := os.Getenv("SCRIPTGUARD_SANDBOX"); sandbox != "" {
		cfg.Sandbox = sandbox
	}
	if dialect := os.Getenv("SCRIPTGUARD_DIALECT"); dialect != "" {
		cfg.Dialect = dialect
	}
	if logLevel := os.Getenv("SCRIPTGUARD_LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat := os.Getenv("SCRIPTGUARD_LOG_FORMAT"); logFormat != "" {
		cfg.LogFormat = logFormat
	}
	if addr := os.Getenv("SCRIPTGUARD_ADDR"); addr != "" {
		cfg.Gateway.Address = addr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the validator cannot honor.
func (c *Config) Validate() error {
	var d validator.Dialect
	if err := d.Set(c.Dialect); err != nil {
		return fmt.Errorf("config dialect: %w", err)
	}
	if _, err := validator.ParseContainment(c.Containment); err != nil {
		return fmt.Errorf("config containment: %w", err)
	}
	if c.Scan.Workers < 0 {
		return fmt.Errorf("config scan.workers must not be negative: %d", c.Scan.Workers)
	}
	for i, ext := range c.Scan.Extensions {
		if ext != "" && !strings.HasPrefix(ext, ".") {
			c.Scan.Extensions[i] = "." + ext
		}
	}
	return nil
}

// ParsedDialect returns the configured dialect.
func (c *Config) ParsedDialect() validator.Dialect {
	return validator.ParseDialect(c.Dialect)
}

// ValidatorOptions translates the config into validator options.
func (c *Config) ValidatorOptions() []validator.Option {
	containment, _ := validator.ParseContainment(c.Containment)
	opts := []validator.Option{validator.WithContainment(containment)}
	if len(c.Denylist) > 0 {
		opts = append(opts, validator.WithDenylist(c.Denylist...))
	}
	return opts
}

// DefaultConfigPath returns the default location for the CLI config file.
func DefaultConfigPath() string {
	if path := os.Getenv("SCRIPTGUARD_CONFIG"); path != "" {
		return path
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".scriptguard", "config.yaml")
}
