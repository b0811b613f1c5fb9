package config

// Config holds runtime settings for the cache gateway.
//
// Fields:
//   - ListenAddr: host:port the gateway serves on.
//   - Origin: base URL of the application's own origin.
//   - Version: release identifier; cache partition names derive from it, and
//     bumping it is the sole mechanism that invalidates a whole generation.
//   - PrecacheRoutes: essential routes pre-populated during install.
type Config struct {
	ListenAddr     string
	Origin         string
	Version        string
	PrecacheRoutes []string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ListenAddr = "127.0.0.1:8090"
	c.Origin = "http://127.0.0.1:3000"
	c.Version = "dev"
	c.PrecacheRoutes = []string{
		"/",
		"/index.html",
		"/app.js",
		"/styles.css",
		"/offline.html",
	}
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
