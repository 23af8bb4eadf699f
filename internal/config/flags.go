package config

import (
	"flag"
	"os"
	"time"

	"github.com/binlift/binlift/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-o string   owner (household) identifier to sync
//	-d string   local SQLite DSN for the draft cache
//	-r string   PostgreSQL DSN of the remote document store
//	-p string   reachability probe URL
//	-i int      probe interval, seconds
//	-u string   S3 access key
//	-s string   S3 secret key
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-k int      retention window for synced drafts, hours
//	-w          watch mode: stay running and sync on reachability events
//	-j          emit JSON log lines
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes
//     using flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers and converted to
//     time.Duration values.
func parseFlags(cfg *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-o", "-d", "-r", "-p", "-i", "-u", "-s", "-b", "-g", "-e", "-k", "-w", "-j"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.OwnerID, "o", cfg.OwnerID, "owner identifier to sync")
	fs.StringVar(&cfg.LocalDatabaseDSN, "d", cfg.LocalDatabaseDSN, "local SQLite DSN")
	fs.StringVar(&cfg.RemoteDatabaseDSN, "r", cfg.RemoteDatabaseDSN, "remote PostgreSQL DSN")
	fs.StringVar(&cfg.ProbeURL, "p", cfg.ProbeURL, "reachability probe URL")

	probeInterval := fs.Int("i", int(cfg.ProbeInterval.Seconds()), "probe interval (in seconds)")

	fs.StringVar(&cfg.S3AccessKey, "u", cfg.S3AccessKey, "S3 access key")
	fs.StringVar(&cfg.S3SecretKey, "s", cfg.S3SecretKey, "S3 secret key")
	fs.StringVar(&cfg.S3Bucket, "b", cfg.S3Bucket, "S3 bucket")
	fs.StringVar(&cfg.S3Region, "g", cfg.S3Region, "S3 region")
	fs.StringVar(&cfg.S3BaseEndpoint, "e", cfg.S3BaseEndpoint, "S3 base endpoint")

	retentionHours := fs.Int("k", int(cfg.RetentionWindow.Hours()), "synced draft retention (in hours)")

	fs.BoolVar(&cfg.Watch, "w", cfg.Watch, "watch mode")
	fs.BoolVar(&cfg.LogJSON, "j", cfg.LogJSON, "JSON log output")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.ProbeInterval = time.Duration(*probeInterval) * time.Second
	cfg.RetentionWindow = time.Duration(*retentionHours) * time.Hour
}
