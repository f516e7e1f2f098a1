// Package config loads the ingestor's environment-variable configuration,
// mirroring the table in the daemon's external interface contract.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
)

const (
	DefaultSnapshotSecs          = 60 * time.Second
	DefaultChannelIndex          = 0
	DefaultReconnectInitialDelay = 5 * time.Second
	DefaultReconnectMaxDelay     = 60 * time.Second
	DefaultCloseTimeout          = 5 * time.Second
	DefaultInactivityReconnect   = 60 * time.Minute
	DefaultEnergyOnlineDuration  = 300 * time.Second
	DefaultEnergySleep           = 6 * time.Hour
	DefaultIngestorHeartbeat     = time.Hour
)

// Config holds every tunable named in the external interfaces table. It is
// loaded once at process start and then treated as immutable.
type Config struct {
	Connection   string
	ChannelIndex int
	Debug        bool
	Instance     string
	APIToken     string
	EnergySaving bool
	ChannelName  string

	SnapshotInterval    time.Duration
	ReconnectInitial    time.Duration
	ReconnectMax        time.Duration
	CloseTimeout        time.Duration
	InactivityReconnect time.Duration
	EnergyOnlineFor     time.Duration
	EnergySleepFor      time.Duration
	IngestorHeartbeat   time.Duration
}

// Load reads a .env file if present (ignored when absent, as the process may
// be run purely from its ambient environment) and populates a Config from
// os.Getenv, applying the documented defaults.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Debug("no .env file loaded", "err", err)
	}

	cfg := &Config{
		Connection:          firstEnv("CONNECTION", "MESH_SERIAL"),
		ChannelIndex:        envInt("CHANNEL_INDEX", DefaultChannelIndex),
		Debug:               os.Getenv("DEBUG") == "1",
		Instance:            strings.TrimRight(os.Getenv("POTATOMESH_INSTANCE"), "/"),
		APIToken:            os.Getenv("API_TOKEN"),
		EnergySaving:        os.Getenv("ENERGY_SAVING") == "1",
		ChannelName:         os.Getenv("CHANNEL"),
		SnapshotInterval:    envSeconds("MESH_SNAPSHOT_SECS", DefaultSnapshotSecs),
		ReconnectInitial:    envSeconds("MESH_RECONNECT_INITIAL", DefaultReconnectInitialDelay),
		ReconnectMax:        envSeconds("MESH_RECONNECT_MAX", DefaultReconnectMaxDelay),
		CloseTimeout:        envSeconds("MESH_CLOSE_TIMEOUT", DefaultCloseTimeout),
		InactivityReconnect: DefaultInactivityReconnect,
		EnergyOnlineFor:     DefaultEnergyOnlineDuration,
		EnergySleepFor:      DefaultEnergySleep,
		IngestorHeartbeat:   DefaultIngestorHeartbeat,
	}
	return cfg
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn("invalid integer env var, using default", "name", name, "value", v, "default", def)
		return def
	}
	return n
}

func envSeconds(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Warn("invalid duration env var, using default", "name", name, "value", v, "default", def)
		return def
	}
	return time.Duration(f * float64(time.Second))
}
