package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go-asset-sync/internal/models"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
)

// DefaultConfigFile is used when no config path is given.
const DefaultConfigFile = "config.toml"

// LoadConfig reads the TOML configuration from the given path and fills
// in defaults for everything the file leaves out. A missing file is not
// an error; the defaults alone are a workable configuration once a
// library path is set.
func LoadConfig(configFilePath string) (models.Config, error) {
	if configFilePath == "" {
		configFilePath = DefaultConfigFile
	}

	var cfg models.Config
	if _, err := os.Stat(configFilePath); err == nil {
		if _, err := toml.DecodeFile(configFilePath, &cfg); err != nil {
			return models.Config{}, fmt.Errorf("error loading config file %s: %w", configFilePath, err)
		}
		log.Debugf("Configuration loaded from %s", configFilePath)
	} else {
		log.Debugf("No config file at %s, using defaults", configFilePath)
	}

	applyDefaults(&cfg)

	if len(cfg.LibraryPaths) == 0 {
		log.Warn("No library path configured, downloads will fail until one is set")
	}
	return cfg, nil
}

func applyDefaults(cfg *models.Config) {
	dataDir := defaultDataDir()

	if cfg.CachePath == "" {
		cfg.CachePath = filepath.Join(dataDir, "asset_index.json.gz")
	}
	if cfg.JournalPath == "" {
		cfg.JournalPath = filepath.Join(dataDir, "journal")
	}
	if cfg.BleveIndexPath == "" {
		cfg.BleveIndexPath = filepath.Join(dataDir, "search.bleve")
	}
	if cfg.DefaultSize == "" {
		cfg.DefaultSize = "2K"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.ApiClientTimeoutSec <= 0 {
		cfg.ApiClientTimeoutSec = 30
	}
}

// SaveToken rewrites the config file with a new access token, keeping
// every other setting the file already had.
func SaveToken(configFilePath, token string) error {
	if configFilePath == "" {
		configFilePath = DefaultConfigFile
	}

	var cfg models.Config
	if _, err := os.Stat(configFilePath); err == nil {
		if _, err := toml.DecodeFile(configFilePath, &cfg); err != nil {
			return fmt.Errorf("error loading config file %s: %w", configFilePath, err)
		}
	}
	cfg.AccessToken = token

	f, err := os.Create(configFilePath)
	if err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFilePath, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("error encoding config: %w", err)
	}
	return nil
}

func defaultDataDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "asset-sync")
}
