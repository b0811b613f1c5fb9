package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/tightlines/internal/flagx"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
type JsonConfig struct {
	ListenAddr     string   `json:"listen_addr"`
	Origin         string   `json:"origin"`
	Version        string   `json:"version"`
	PrecacheRoutes []string `json:"precache_routes"`
}

// parseJson overlays Config with values loaded from a JSON file. The file
// path comes from the -c/-config flags; when absent, nothing is loaded.
// Read or unmarshal errors panic (caller should recover if desired).
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ListenAddr != "" {
		cfg.ListenAddr = jc.ListenAddr
	}
	if jc.Origin != "" {
		cfg.Origin = jc.Origin
	}
	if jc.Version != "" {
		cfg.Version = jc.Version
	}
	if len(jc.PrecacheRoutes) > 0 {
		cfg.PrecacheRoutes = jc.PrecacheRoutes
	}
}
