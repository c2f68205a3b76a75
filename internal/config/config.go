// Package config loads gsetool's configuration from built-in defaults, a
// YAML file, and GSE_-prefixed environment variables, in that order of
// increasing precedence (when no config file is found, the defaults are
// used as they are), following the same viper-backed layering as
// the wider Go ecosystem tooling this project borrows its CLI idiom
// from.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is gsetool's static configuration: logging, metrics, and the
// encapsulator/de-encapsulator defaults applied when a command doesn't
// override them with flags.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Encap   EncapConfig   `mapstructure:"encap" yaml:"encap"`
}

// LoggingConfig controls internal/obslog.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// MetricsConfig configures the Prometheus metrics HTTP endpoint exposed
// by `gsetool serve`.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// EncapConfig holds the encapsulator/de-encapsulator settings read by
// gsetool's encap, deencap and demo subcommands. encap's --packet-len
// flag does not fall back to PacketLength, and refrag reads none of them.
type EncapConfig struct {
	QoSCount       int  `mapstructure:"qos_count" validate:"required,min=1,max=256" yaml:"qos_count"`
	FIFOCapacity   int  `mapstructure:"fifo_capacity" validate:"required,min=1" yaml:"fifo_capacity"`
	PacketLength   int  `mapstructure:"packet_length" validate:"required,min=3,max=4097" yaml:"packet_length"`
	ExtensionsOn   bool `mapstructure:"extensions_enabled" yaml:"extensions_enabled"`
	BBFrameTimeout int  `mapstructure:"bbframe_timeout" validate:"omitempty,min=1,max=256" yaml:"bbframe_timeout"`
}

// Default returns the built-in configuration used when no config file is
// present.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "INFO", Format: "text", Output: "stdout"},
		Metrics: MetricsConfig{Enabled: false, Port: 9090},
		Encap: EncapConfig{
			QoSCount:       8,
			FIFOCapacity:   64,
			PacketLength:   1500,
			ExtensionsOn:   false,
			BBFrameTimeout: 256,
		},
	}
}

// Load reads configuration from configPath (or the default search path
// if empty), environment variables, and defaults, in viper's usual
// layered precedence, then validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(defaultConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		return Default(), nil
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return cfg, nil
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("config: read: %w", err)
	}
	return true, nil
}

var validate = validator.New()

// Validate runs the struct-tag validations declared on Config.
func Validate(cfg *Config) error {
	return validate.Struct(cfg)
}

// Save writes cfg as YAML to path, creating parent directories as
// needed.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write: %w", err)
	}
	return nil
}

func defaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "gsetool")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "gsetool")
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.yaml")
}
