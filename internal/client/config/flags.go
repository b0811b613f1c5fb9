package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/tightlines/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   base URL of the record store (default from Config)
//	-d string   local database DSN (default from Config)
//	-u string   owner (user) id
//	-i int      online check interval in seconds (default from Config)
//
// Args are filtered through flagx.FilterArgs so flags owned by other
// components do not interfere.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-u", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.EndpointURL, "a", cfg.EndpointURL, "base URL of the record store")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "local database DSN")
	fs.StringVar(&cfg.OwnerID, "u", cfg.OwnerID, "owner (user) id")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
}
