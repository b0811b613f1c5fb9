package config

import "time"

// Config holds runtime settings for the sync client.
//
// Fields:
//   - EndpointURL: base URL of the hosted record store.
//   - DatabaseDSN: path/DSN of the local SQLite mirror.
//   - OwnerID: current user id handed over by the identity provider.
//   - OnlineCheckInterval: how often the client probes store reachability.
type Config struct {
	EndpointURL         string
	DatabaseDSN         string
	OwnerID             string
	OnlineCheckInterval time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.EndpointURL = "http://127.0.0.1:8080"
	c.DatabaseDSN = "triplog.db"
	c.OnlineCheckInterval = 3 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
