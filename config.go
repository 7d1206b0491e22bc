package silo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config sizes and instruments a World. Zero limits mean unbounded.
type Config struct {
	InitialEntities int           `toml:"initial_entities" yaml:"initial_entities"`
	MaxEntities     int           `toml:"max_entities" yaml:"max_entities"`
	MaxRowsPerTable int           `toml:"max_rows_per_table" yaml:"max_rows_per_table"`
	Workers         int           `toml:"workers" yaml:"workers"` // ParallelForEach fan-out, 0 = unlimited
	Logging         LoggingConfig `toml:"logging" yaml:"logging"`

	// Logger overrides Logging when set. Worlds without either log nothing.
	Logger *zap.Logger `toml:"-" yaml:"-"`
	// Registry defaults to Components.
	Registry *Registry `toml:"-" yaml:"-"`
}

type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"` // "json" or "console"
}

func DefaultConfig() Config {
	return Config{
		InitialEntities: 0,
		MaxEntities:     1 << 24,
		MaxRowsPerTable: 1 << 24,
		Workers:         4,
	}
}

// LoadConfig reads a TOML or YAML file, chosen by extension, over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.InitialEntities < 0, c.MaxEntities < 0, c.MaxRowsPerTable < 0, c.Workers < 0:
		return fmt.Errorf("limits must not be negative")
	case c.MaxEntities > 0 && c.InitialEntities > c.MaxEntities:
		return fmt.Errorf("initial_entities %d exceeds max_entities %d", c.InitialEntities, c.MaxEntities)
	}
	return nil
}

func (c Config) logger() (*zap.Logger, error) {
	if c.Logger != nil {
		return c.Logger, nil
	}
	if c.Logging.Level == "" && c.Logging.Format == "" {
		return zap.NewNop(), nil
	}
	return NewLogger(c.Logging)
}

// NewLogger builds a zap logger. Unknown levels fall back to info.
func NewLogger(cfg LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
