// Package config loads vocabkeeper settings from YAML with environment
// overrides.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DatabaseConfig locates and tunes the SQLite store.
type DatabaseConfig struct {
	Path          string `yaml:"path"`
	Driver        string `yaml:"driver"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms"`
	WAL           bool   `yaml:"wal"`
}

// SearchConfig holds listing caps and the related-words toggle.
type SearchConfig struct {
	RelatedWords   bool `yaml:"related_words"`
	ShortTermLimit int  `yaml:"short_term_limit"`
	TermLimit      int  `yaml:"term_limit"`
	ListingLimit   int  `yaml:"listing_limit"`
}

type LemmaConfig struct {
	Irregulars string `yaml:"irregulars"`
	Japanese   bool   `yaml:"japanese"`
}

type WorkersConfig struct {
	StemMatch int `yaml:"stem_match"`
}

type LogConfig struct {
	Mode string `yaml:"mode"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Database DatabaseConfig `yaml:"database"`
	Search   SearchConfig   `yaml:"search"`
	Lemma    LemmaConfig    `yaml:"lemma"`
	Workers  WorkersConfig  `yaml:"workers"`
	Log      LogConfig      `yaml:"log"`
}

// Environment variables that override the file.
const (
	EnvDB     = "VOCABKEEPER_DB"
	EnvDriver = "VOCABKEEPER_DRIVER"
	EnvLog    = "VOCABKEEPER_LOG"
)

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(cfg)
	applyEnv(cfg)
	return cfg, nil
}

// LoadDefault tries ./vocabkeeper.yaml first, then
// ~/.config/vocabkeeper/config.yaml. If neither exists, it writes defaults to
// the user path and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "vocabkeeper.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	applyEnv(cfg)
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "vocabkeeper", "config.yaml"), nil
}

// DefaultDBPath is where the store lives unless configured otherwise.
func DefaultDBPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "vocabkeeper", "vocab.db")
	}
	return "vocab.db"
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Database: DatabaseConfig{Path: DefaultDBPath(), Driver: "sqlite3", BusyTimeoutMS: 5000},
		Search:   SearchConfig{RelatedWords: true, ShortTermLimit: 100, TermLimit: 500, ListingLimit: 1000},
		Workers:  WorkersConfig{StemMatch: 2},
		Log:      LogConfig{Mode: "dev"},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	def := defaultConfig()
	if cfg.Database.Path == "" {
		cfg.Database.Path = def.Database.Path
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = def.Database.Driver
	}
	if cfg.Database.BusyTimeoutMS <= 0 {
		cfg.Database.BusyTimeoutMS = def.Database.BusyTimeoutMS
	}
	if cfg.Search.ShortTermLimit <= 0 {
		cfg.Search.ShortTermLimit = def.Search.ShortTermLimit
	}
	if cfg.Search.TermLimit <= 0 {
		cfg.Search.TermLimit = def.Search.TermLimit
	}
	if cfg.Search.ListingLimit <= 0 {
		cfg.Search.ListingLimit = def.Search.ListingLimit
	}
	if cfg.Workers.StemMatch <= 0 {
		cfg.Workers.StemMatch = def.Workers.StemMatch
	}
	if cfg.Log.Mode == "" {
		cfg.Log.Mode = def.Log.Mode
	}
}

func applyEnv(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvDB)); v != "" {
		cfg.Database.Path = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDriver)); v != "" {
		cfg.Database.Driver = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLog)); v != "" {
		cfg.Log.Mode = v
	}
}
