package config

import (
	"flag"
	"os"

	"github.com/ksolodov/fieldreporter/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
//	-a string   bind address for the HTTP endpoint
//	-d string   PostgreSQL DSN
//	-k string   JWT signing secret
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-k"})

	fs := flag.NewFlagSet("server", flag.ContinueOnError)

	fs.StringVar(&cfg.EndpointAddr, "a", cfg.EndpointAddr, "address and port to bind")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "database DSN")
	fs.StringVar(&cfg.SecretKey, "k", cfg.SecretKey, "JWT signing secret")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
