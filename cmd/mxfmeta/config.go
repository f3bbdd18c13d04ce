package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	mxf "github.com/logicossoftware/go-mxf"
	"github.com/logicossoftware/go-mxf/schemafile"
	"github.com/logicossoftware/go-mxf/snapshot"
)

// Config is the mxfmeta configuration, read from mxfmeta.yaml, MXFMETA_*
// environment variables and flags, in increasing precedence.
type Config struct {
	Schema   SchemaConfig   `mapstructure:"schema"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Log      LogConfig      `mapstructure:"log"`
	Read     ReadConfig     `mapstructure:"read"`
}

type SchemaConfig struct {
	// Extensions are TOML schema files loaded after the built-in vocabularies.
	Extensions []string `mapstructure:"extensions"`
	Archive    bool     `mapstructure:"archive"`
}

type SnapshotConfig struct {
	Compression string `mapstructure:"compression"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type ReadConfig struct {
	StrictRefs bool `mapstructure:"strict_refs"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("schema.extensions", []string{})
	v.SetDefault("schema.archive", true)
	v.SetDefault("snapshot.compression", "zstd")
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.development", false)
	v.SetDefault("read.strict_refs", false)
}

// loadConfig reads configuration into v. An explicit file must exist; the
// default search (./mxfmeta.yaml, ~/.config/mxfmeta/mxfmeta.yaml) may find
// nothing.
func loadConfig(v *viper.Viper, file string) (*Config, error) {
	setDefaults(v)
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("mxfmeta")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "mxfmeta"))
		}
	}
	v.SetEnvPrefix("MXFMETA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	if _, err := snapshot.ParseCompression(cfg.Snapshot.Compression); err != nil {
		return fmt.Errorf("snapshot.compression: %w", err)
	}
	if _, err := zapcore.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	for _, path := range cfg.Schema.Extensions {
		if strings.TrimSpace(path) == "" {
			return errors.New("schema.extensions: empty path")
		}
	}
	return nil
}

func newLogger(c LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}

// schemaNames lists the vocabularies the configured model is built from, as
// recorded in snapshots.
func (c SchemaConfig) schemaNames() []string {
	names := []string{"baseline"}
	if c.Archive {
		names = append(names, "archive")
	}
	for _, path := range c.Extensions {
		names = append(names, filepath.Base(path))
	}
	return names
}

func buildModel(c SchemaConfig, logger *zap.Logger) (*mxf.DataModel, error) {
	return schemafile.NewModel(schemafile.Options{
		Archive:    c.Archive,
		Extensions: c.Extensions,
	}, mxf.WithLogger(logger))
}
