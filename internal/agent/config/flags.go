package config

import (
	"flag"
	"os"
	"time"

	"github.com/ksolodov/fieldreporter/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
//	-a string   base URL of the sync server
//	-d string   path to the local database file
//	-m string   directory for captured media files
//	-n string   device name used at registration
//	-i int      online check interval in seconds
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-m", "-n", "-i"})

	fs := flag.NewFlagSet("agent", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "base URL of the sync server")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "path to the local database file")
	fs.StringVar(&cfg.MediaDir, "m", cfg.MediaDir, "directory for captured media files")
	fs.StringVar(&cfg.DeviceName, "n", cfg.DeviceName, "device name used at registration")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
}
