package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/tightlines/internal/flagx"
	"github.com/dmitrijs2005/tightlines/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so intervals can be given either as strings like "3s" or as
// integer nanoseconds.
type JsonConfig struct {
	EndpointURL         string         `json:"endpoint_url"`
	DatabaseDSN         string         `json:"database_dsn"`
	OwnerID             string         `json:"owner_id"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
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

	if jc.EndpointURL != "" {
		cfg.EndpointURL = jc.EndpointURL
	}
	if jc.DatabaseDSN != "" {
		cfg.DatabaseDSN = jc.DatabaseDSN
	}
	if jc.OwnerID != "" {
		cfg.OwnerID = jc.OwnerID
	}
	if jc.OnlineCheckInterval.Duration != 0 {
		cfg.OnlineCheckInterval = time.Duration(jc.OnlineCheckInterval.Duration)
	}
}
