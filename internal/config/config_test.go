package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearMeshEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CONNECTION", "MESH_SERIAL", "CHANNEL_INDEX", "DEBUG", "POTATOMESH_INSTANCE",
		"API_TOKEN", "ENERGY_SAVING", "CHANNEL", "MESH_SNAPSHOT_SECS",
		"MESH_RECONNECT_INITIAL", "MESH_RECONNECT_MAX", "MESH_CLOSE_TIMEOUT",
	} {
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearMeshEnv(t)
	cfg := Load()
	require.Equal(t, "", cfg.Connection)
	require.Equal(t, DefaultChannelIndex, cfg.ChannelIndex)
	require.False(t, cfg.Debug)
	require.Equal(t, "", cfg.Instance)
	require.Equal(t, DefaultSnapshotSecs, cfg.SnapshotInterval)
	require.Equal(t, DefaultReconnectInitialDelay, cfg.ReconnectInitial)
	require.Equal(t, DefaultReconnectMaxDelay, cfg.ReconnectMax)
}

func TestLoadTrimsInstanceTrailingSlash(t *testing.T) {
	clearMeshEnv(t)
	os.Setenv("POTATOMESH_INSTANCE", "https://api.example///")
	defer os.Unsetenv("POTATOMESH_INSTANCE")

	cfg := Load()
	require.Equal(t, "https://api.example", cfg.Instance)
}

func TestLoadMeshSerialFallsBackWhenConnectionUnset(t *testing.T) {
	clearMeshEnv(t)
	os.Setenv("MESH_SERIAL", "/dev/ttyUSB0")
	defer os.Unsetenv("MESH_SERIAL")

	cfg := Load()
	require.Equal(t, "/dev/ttyUSB0", cfg.Connection)
}

func TestLoadInvalidDurationFallsBackToDefault(t *testing.T) {
	clearMeshEnv(t)
	os.Setenv("MESH_SNAPSHOT_SECS", "not-a-number")
	defer os.Unsetenv("MESH_SNAPSHOT_SECS")

	cfg := Load()
	require.Equal(t, DefaultSnapshotSecs, cfg.SnapshotInterval)
}

func TestLoadFractionalSeconds(t *testing.T) {
	clearMeshEnv(t)
	os.Setenv("MESH_CLOSE_TIMEOUT", "1.5")
	defer os.Unsetenv("MESH_CLOSE_TIMEOUT")

	cfg := Load()
	require.Equal(t, 1500*time.Millisecond, cfg.CloseTimeout)
}
