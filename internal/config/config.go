package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the daemon configuration. Layering: defaults, then the TOML
// file, then ANCHORD_* environment variables.
type Config struct {
	Index struct {
		DBPath string `koanf:"db_path"`
	} `koanf:"index"`

	Serve struct {
		Listen string `koanf:"listen"`
	} `koanf:"serve"`

	Log struct {
		Level string `koanf:"level"`
	} `koanf:"log"`
}

// Load reads the configuration. An empty configPath falls back to the
// default locations; a missing file is not an error, the defaults stand.
func Load(configPath string) (*Config, error) {
	var k = koanf.New(".")

	k.Load(confmap.Provider(map[string]interface{}{
		"index.db_path": ".anchord.db",
		"serve.listen":  "127.0.0.1:8335",
		"log.level":     "info",
	}, "."), nil)

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	} else {
		defaultPaths := []string{"./anchord.toml", "$HOME/.anchord.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	k.Load(env.Provider("ANCHORD_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "ANCHORD_")), "_", ".", 1)
	}), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return &cfg, nil
}
