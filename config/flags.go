package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Flag names mapped to configuration keys.
var (
	ViewerFlags = map[string]string{
		"backend":   "viewer.backend",
		"pack":      "viewer.pack",
		"save":      "viewer.save",
		"world":     "viewer.world",
		"force":     "viewer.force",
		"log-level": "log.level",
	}
	RenderdFlags = map[string]string{
		"listen":    "renderd.listen",
		"cache-dir": "renderd.cache_dir",
		"packs-dir": "renderd.packs_dir",
		"log-level": "log.level",
	}
)

// NewViewerFlags declares the viewer command line.
func NewViewerFlags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "YAML configuration file")
	fs.String("backend", "", "render service base URL")
	fs.String("pack", "", "pack to open")
	fs.String("save", "", "save to open")
	fs.String("world", "", "world to open, the save default when empty")
	fs.Bool("force", false, "re-render tiles that are already cached")
	fs.String("log-level", "", "log level")
	return fs
}

// NewRenderdFlags declares the render service command line.
func NewRenderdFlags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "YAML configuration file")
	fs.String("listen", "", "listen address")
	fs.String("cache-dir", "", "rendered tile cache directory")
	fs.String("packs-dir", "", "packs directory holding the saves")
	fs.String("log-level", "", "log level")
	return fs
}

// LoadFlags is Load with the flags set on the command line taking
// precedence. The file is the value of the "config" flag.
func LoadFlags(fs *pflag.FlagSet, keys map[string]string, envFiles ...string) (*Config, error) {
	path, err := fs.GetString("config")
	if err != nil {
		return nil, err
	}
	return load(path, func(v *viper.Viper) error {
		for name, key := range keys {
			f := fs.Lookup(name)
			if f == nil {
				return fmt.Errorf("flag %q is not defined", name)
			}
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
		return nil
	}, envFiles)
}
