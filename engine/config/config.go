package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config holds the engine texture subsystem settings.
type Config struct {
	// Logging
	LogLevel string `toml:"log_level"`

	// Paths
	AssetsDir string `toml:"assets_dir"`
	FontsDir  string `toml:"fonts_dir"`

	// Texture cache
	Textures TexturesConfig `toml:"textures"`
}

type TexturesConfig struct {
	// VolatileTracking keeps reconstruction metadata for every live texture
	// so GPU context loss can be recovered with ReloadAllTextures. Platforms
	// that never lose the context can turn it off.
	VolatileTracking bool `toml:"volatile_tracking"`
	// HotReload re-decodes source files when they change on disk.
	HotReload bool `toml:"hot_reload"`
	// Filtering/wrap defaults applied to newly created textures.
	DefaultFilter string `toml:"default_filter"`
	DefaultRepeat string `toml:"default_repeat"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		AssetsDir: "assets",
		FontsDir:  "assets/fonts",
		Textures: TexturesConfig{
			VolatileTracking: true,
			HotReload:        false,
			DefaultFilter:    "linear",
			DefaultRepeat:    "clamp_to_edge",
		},
	}
}

// Load reads a TOML config file. Fields not set in the file keep the
// defaults from Default().
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
