package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/tightlines/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-l string   listen address (default from Config)
//	-o string   application origin base URL (default from Config)
//	-v string   release version for partition naming (default from Config)
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-l", "-o", "-v"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ListenAddr, "l", cfg.ListenAddr, "address and port to listen on")
	fs.StringVar(&cfg.Origin, "o", cfg.Origin, "application origin base URL")
	fs.StringVar(&cfg.Version, "v", cfg.Version, "release version used for cache partition names")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
