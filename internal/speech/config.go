package speech

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/hearsay-app/hearsay/internal/providers/cloud"
	"github.com/hearsay-app/hearsay/internal/providers/device"
)

// CacheConfig tunes the synthesized-audio cache.
type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl" env:"HEARSAY_CACHE_TTL" envDefault:"24h"`
	MaxEntries int           `yaml:"max_entries" env:"HEARSAY_CACHE_MAX_ENTRIES" envDefault:"50"`
}

// Config gathers every tunable of the speech engine. Values load from the
// config file first, then the environment overrides them.
type Config struct {
	Device device.Config `yaml:"device" envPrefix:""`
	Cloud  cloud.Config  `yaml:"cloud" envPrefix:""`
	Cache  CacheConfig   `yaml:"cache" envPrefix:""`

	// PreferCloud routes synthesis through the cloud provider first when a
	// cloud voice covers the language.
	PreferCloud bool `yaml:"prefer_cloud" env:"HEARSAY_PREFER_CLOUD" envDefault:"true"`
}

// LoadConfig builds the configuration from environment variables layered
// over defaults.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse speech configuration: %w", err)
	}
	return cfg, nil
}
