// Package configs loads the daemon's configuration from disk. It is
// the one layer allowed to know about TOML/YAML and file paths; the
// core packages only ever see the plain Config struct (spec §6.4).
package configs

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/laulauland/ragrep/internal/rerr"
)

// Config mirrors spec §6.4's recognized keys, all optional with the
// defaults below.
type Config struct {
	Watch     WatchConfig     `toml:"watch" yaml:"watch"`
	Retrieval RetrievalConfig `toml:"retrieval" yaml:"retrieval"`
	Store     StoreConfig     `toml:"store" yaml:"store"`
	Log       LogConfig       `toml:"log" yaml:"log"`
}

type WatchConfig struct {
	Enabled    bool `toml:"enabled" yaml:"enabled"`
	DebounceMs int  `toml:"debounce_ms" yaml:"debounce_ms"`
}

type RetrievalConfig struct {
	TopNDefault      int `toml:"top_n_default" yaml:"top_n_default"`
	OversampleFactor int `toml:"oversample_factor" yaml:"oversample_factor"`
	QueryTimeoutMs   int `toml:"query_timeout_ms" yaml:"query_timeout_ms"`
}

type StoreConfig struct {
	Path string `toml:"path" yaml:"path"`
}

// LogConfig is ambient: not named in spec §6.4, but every component
// that logs needs a level, the way the teacher's own config layers a
// [log] section under the domain keys.
type LogConfig struct {
	Level string `toml:"level" yaml:"level"`
}

// Default returns the configuration spec §6.4 describes when no
// config.toml is present.
func Default() Config {
	return Config{
		Watch:     WatchConfig{Enabled: true, DebounceMs: 1000},
		Retrieval: RetrievalConfig{TopNDefault: 10, OversampleFactor: 5, QueryTimeoutMs: 30000},
		Store:     StoreConfig{Path: ".data/index.db"},
		Log:       LogConfig{Level: "info"},
	}
}

// Load reads <projectRoot>/.data/config.toml if present, starting from
// Default and overlaying a user-level YAML config first (mirroring the
// teacher's layered precedent: user config < project config), so a
// project's config.toml always wins over ~/.config/ragrep/config.yaml.
// Unknown keys in either file are rejected with a KindParseError error.
func Load(projectRoot string) (Config, error) {
	cfg := Default()

	if userPath, err := userConfigPath(); err == nil {
		if err := decodeFileInto(userPath, &cfg, decodeYAMLStrict); err != nil {
			return Config{}, err
		}
	}

	projectPath := filepath.Join(projectRoot, ".data", "config.toml")
	if err := decodeFileInto(projectPath, &cfg, decodeTOMLStrict); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func decodeFileInto(path string, cfg *Config, decode func([]byte, *Config) error) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return rerr.IoErr(fmt.Sprintf("read config %s", path), err)
	}
	if err := decode(data, cfg); err != nil {
		return rerr.New(rerr.KindParseError, fmt.Sprintf("invalid config %s: %v", path, err))
	}
	return nil
}

func decodeTOMLStrict(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}

func decodeYAMLStrict(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(cfg)
}

func userConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ragrep", "config.yaml"), nil
}
