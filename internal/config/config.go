// Package config loads WHD core runtime configuration from command-line
// flags with environment-variable defaults, flags taking precedence.
package config

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds the runtime configuration for the driver core and its
// surrounding CLI/status-surface.
type Config struct {
	Interface        string
	ChipIDOverride   uint32
	JoinTimeout      time.Duration
	Debug            bool
	StatusAddr       string
	PmkidCachePath   string
	IoctlBusTimeout  time.Duration
}

// Load parses command-line flags and environment variables into a
// Config. Flags take precedence over environment variables, which take
// precedence over the documented defaults.
func Load() *Config {
	cfg := &Config{}

	iface := getEnv("WHD_INTERFACE", "wlan0")
	cfg.ChipIDOverride = uint32(getEnvInt("WHD_CHIP_ID", 0))
	cfg.JoinTimeout = getEnvDuration("WHD_JOIN_TIMEOUT", 9000*time.Millisecond)
	cfg.StatusAddr = getEnv("WHD_STATUS_ADDR", ":8722")
	cfg.PmkidCachePath = getEnv("WHD_PMKID_DB", getDefaultPmkidPath())
	cfg.IoctlBusTimeout = getEnvDuration("WHD_IOCTL_TIMEOUT", 2*time.Second)

	flag.StringVar(&iface, "i", iface, "Station interface name")
	flag.DurationVar(&cfg.JoinTimeout, "join-timeout", cfg.JoinTimeout, "Total join-attempt timeout budget")
	flag.StringVar(&cfg.StatusAddr, "status-addr", cfg.StatusAddr, "HTTP status surface listen address")
	flag.StringVar(&cfg.PmkidCachePath, "pmkid-db", cfg.PmkidCachePath, "Path to the PMKID cache SQLite database")
	flag.DurationVar(&cfg.IoctlBusTimeout, "ioctl-timeout", cfg.IoctlBusTimeout, "Per-IOCTL/IOVAR bus timeout")
	flag.BoolVar(&cfg.Debug, "debug", false, "Enable verbose debug logging")

	flag.Parse()
	cfg.Interface = iface
	return cfg
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// getDefaultPmkidPath returns the default PMKID cache location under the
// user's home directory, creating the containing directory if needed.
func getDefaultPmkidPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		log.Printf("whd: could not resolve home directory, using current dir: %v", err)
		return "whd-pmkid.db"
	}
	dir := filepath.Join(home, ".whd")
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Printf("whd: could not create %s, using current dir: %v", dir, err)
		return "whd-pmkid.db"
	}
	return filepath.Join(dir, "pmkid.db")
}
