// Package config holds the agent's runtime settings. Values are
// layered: built-in defaults, then an optional JSON file, then
// command-line flags, with later sources winning.
package config

import "time"

type Config struct {
	// ServerURL is the base URL of the sync API, e.g. http://host:8080.
	ServerURL string

	// DatabasePath is the SQLite file holding entries and the queue.
	DatabasePath string

	// MediaDir is where captured payload files are kept.
	MediaDir string

	// DeviceName identifies this device on registration.
	DeviceName string

	OnlineCheckInterval time.Duration
	DrainInterval       time.Duration

	ChunkSize    int64
	ChunkTimeout time.Duration

	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	MaxRetries     int
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.DatabasePath = "fieldreporter.db"
	c.MediaDir = "media"
	c.DeviceName = "field-device"
	c.OnlineCheckInterval = 15 * time.Second
	c.DrainInterval = time.Minute
	c.ChunkSize = 1 << 20
	c.ChunkTimeout = 30 * time.Second
	c.RetryBaseDelay = time.Second
	c.RetryMaxDelay = 15 * time.Minute
	c.MaxRetries = 8
}

// LoadConfig constructs a Config from defaults, JSON and flags, in that
// order of precedence.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
