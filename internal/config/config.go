// Package config assembles runtime configuration from defaults, an
// optional .env file, environment variables, and command-line flags,
// in that precedence order (later sources win).
package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"vectorindex/internal/persistence"
)

// Config is every recognized setting from the wire/configuration
// surface.
type Config struct {
	Host                string
	Port                int
	SnapshotPath        string
	WALPath             string
	SnapshotIntervalSec int
	WALFsyncMode        string
	DefaultDimension    int
}

func defaults() Config {
	return Config{
		Host:                "0.0.0.0",
		Port:                8080,
		SnapshotPath:        "data/snapshot.bin",
		WALPath:             "data/wal.log",
		SnapshotIntervalSec: 300,
		WALFsyncMode:        "per_op",
		DefaultDimension:    128,
	}
}

// Load builds a Config from envFile (loaded if it exists; a missing
// file is not an error), then process environment, then args (the
// command-line, normally os.Args[1:]).
func Load(envFile string, args []string) Config {
	if envFile != "" {
		_ = godotenv.Load(envFile)
	}
	cfg := defaults()
	applyEnv(&cfg)
	applyFlags(&cfg, args)
	return cfg
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("VECTORINDEX_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("VECTORINDEX_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("VECTORINDEX_SNAPSHOT_PATH"); v != "" {
		cfg.SnapshotPath = v
	}
	if v := os.Getenv("VECTORINDEX_WAL_PATH"); v != "" {
		cfg.WALPath = v
	}
	if v := os.Getenv("VECTORINDEX_SNAPSHOT_INTERVAL_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SnapshotIntervalSec = n
		}
	}
	if v := os.Getenv("VECTORINDEX_WAL_FSYNC_MODE"); v != "" {
		cfg.WALFsyncMode = v
	}
	if v := os.Getenv("VECTORINDEX_DEFAULT_DIMENSION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DefaultDimension = n
		}
	}
}

func applyFlags(cfg *Config, args []string) {
	fs := flag.NewFlagSet("vectorindexd", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	host := fs.String("host", cfg.Host, "network bind host")
	port := fs.Int("port", cfg.Port, "network bind port")
	snapshotPath := fs.String("snapshot-path", cfg.SnapshotPath, "snapshot file path")
	walPath := fs.String("wal-path", cfg.WALPath, "WAL file path")
	snapshotInterval := fs.Int("snapshot-interval-sec", cfg.SnapshotIntervalSec, "background snapshot cadence; 0 disables")
	fsyncMode := fs.String("wal-fsync-mode", cfg.WALFsyncMode, "per_op or interval:<ms>")
	defaultDim := fs.Int("default-dimension", cfg.DefaultDimension, "dimension of the reserved default collection")

	if err := fs.Parse(args); err != nil {
		return
	}
	cfg.Host = *host
	cfg.Port = *port
	cfg.SnapshotPath = *snapshotPath
	cfg.WALPath = *walPath
	cfg.SnapshotIntervalSec = *snapshotInterval
	cfg.WALFsyncMode = *fsyncMode
	cfg.DefaultDimension = *defaultDim
}

// ParseFsyncMode converts the wal_fsync_mode config string
// ("per_op" or "interval:<ms>") into a persistence.FsyncMode.
func ParseFsyncMode(s string) persistence.FsyncMode {
	if strings.HasPrefix(s, "interval:") {
		msStr := strings.TrimPrefix(s, "interval:")
		if ms, err := strconv.Atoi(msStr); err == nil && ms > 0 {
			return persistence.IntervalFsync(time.Duration(ms) * time.Millisecond)
		}
	}
	return persistence.PerOpFsync
}
