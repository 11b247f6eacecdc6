// Package config loads the settings of the viewer and the render service
// from an optional YAML file, a .env file and WORLDMAP_* variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "WORLDMAP"

type Config struct {
	Log     Log     `mapstructure:"log" yaml:"log"`
	Viewer  Viewer  `mapstructure:"viewer" yaml:"viewer"`
	Renderd Renderd `mapstructure:"renderd" yaml:"renderd"`
}

type Log struct {
	Level string `mapstructure:"level" yaml:"level"`
	// File enables rotated file output next to stderr.
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

type Viewer struct {
	Backend     string        `mapstructure:"backend" yaml:"backend"`
	Pack        string        `mapstructure:"pack" yaml:"pack"`
	Save        string        `mapstructure:"save" yaml:"save"`
	World       string        `mapstructure:"world" yaml:"world"`
	Force       bool          `mapstructure:"force" yaml:"force"`
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency"`
	CullMargin  float64       `mapstructure:"cull_margin" yaml:"cull_margin"`
	TileTimeout time.Duration `mapstructure:"tile_timeout" yaml:"tile_timeout"`
	// CacheMB bounds the downloaded tile cache.
	CacheMB int `mapstructure:"cache_mb" yaml:"cache_mb"`
}

type Renderd struct {
	Listen   string `mapstructure:"listen" yaml:"listen"`
	PacksDir string `mapstructure:"packs_dir" yaml:"packs_dir"`
	CacheDir string `mapstructure:"cache_dir" yaml:"cache_dir"`
	Workers  int    `mapstructure:"workers" yaml:"workers"`
	Labels   bool   `mapstructure:"labels" yaml:"labels"`
	Watch    bool   `mapstructure:"watch" yaml:"watch"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", false)

	v.SetDefault("viewer.backend", "http://127.0.0.1:8765")
	v.SetDefault("viewer.pack", "")
	v.SetDefault("viewer.save", "")
	v.SetDefault("viewer.world", "")
	v.SetDefault("viewer.force", false)
	v.SetDefault("viewer.concurrency", 6)
	v.SetDefault("viewer.cull_margin", 1000.0)
	v.SetDefault("viewer.tile_timeout", 30*time.Second)
	v.SetDefault("viewer.cache_mb", 256)

	v.SetDefault("renderd.listen", "127.0.0.1:8765")
	v.SetDefault("renderd.packs_dir", "packs")
	v.SetDefault("renderd.cache_dir", "cache")
	v.SetDefault("renderd.workers", 4)
	v.SetDefault("renderd.labels", true)
	v.SetDefault("renderd.watch", true)
}

// Load reads path (when not empty) over the defaults. Variables from the
// env files (".env" when none is given) are exported first; variables
// already set win. WORLDMAP_VIEWER_PACK overrides viewer.pack and so on.
func Load(path string, envFiles ...string) (*Config, error) {
	return load(path, nil, envFiles)
}

func load(path string, bind func(*viper.Viper) error, envFiles []string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if bind != nil {
		if err := bind(v); err != nil {
			return nil, err
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if u, err := url.Parse(c.Viewer.Backend); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("viewer.backend: %q is not an absolute URL", c.Viewer.Backend))
	}
	if c.Viewer.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("viewer.concurrency: must be at least 1, got %d", c.Viewer.Concurrency))
	}
	if c.Viewer.CullMargin < 0 {
		errs = append(errs, fmt.Errorf("viewer.cull_margin: must not be negative"))
	}
	if c.Viewer.TileTimeout < 0 {
		errs = append(errs, fmt.Errorf("viewer.tile_timeout: must not be negative"))
	}
	if c.Renderd.Workers < 1 {
		errs = append(errs, fmt.Errorf("renderd.workers: must be at least 1, got %d", c.Renderd.Workers))
	}
	return errors.Join(errs...)
}

// Dump writes the effective configuration as YAML.
func Dump(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}
