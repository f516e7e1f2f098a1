package iface

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTargetMock(t *testing.T) {
	for _, in := range []string{"", "mock", "NONE", "null", "Disabled"} {
		target, err := ParseTarget(in)
		require.NoError(t, err)
		require.Equal(t, KindMock, target.Kind)
	}
}

func TestParseTargetBLE(t *testing.T) {
	target, err := ParseTarget("aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)
	require.Equal(t, KindBLE, target.Kind)
	require.Equal(t, "AA:BB:CC:DD:EE:FF", target.BLEAddress)
}

func TestParseTargetTCPWithDefaultPort(t *testing.T) {
	target, err := ParseTarget("192.168.1.50")
	require.NoError(t, err)
	require.Equal(t, KindTCP, target.Kind)
	require.Equal(t, "192.168.1.50", target.TCPHost)
	require.Equal(t, defaultTCPPort, target.TCPPort)
}

func TestParseTargetTCPWithSchemeAndPort(t *testing.T) {
	target, err := ParseTarget("tcp://10.0.0.5:4403")
	require.NoError(t, err)
	require.Equal(t, KindTCP, target.Kind)
	require.Equal(t, "10.0.0.5", target.TCPHost)
	require.Equal(t, 4403, target.TCPPort)
}

func TestParseTargetSerialFallback(t *testing.T) {
	target, err := ParseTarget("/dev/ttyACM0")
	require.NoError(t, err)
	require.Equal(t, KindSerial, target.Kind)
	require.Equal(t, "/dev/ttyACM0", target.SerialPath)
}

func TestParseTargetRejectsHostnames(t *testing.T) {
	// Hostnames are not numeric literals, so they fall through to serial,
	// matching the "numeric addresses only" constraint.
	target, err := ParseTarget("meshtastic.local")
	require.NoError(t, err)
	require.Equal(t, KindSerial, target.Kind)
}

func TestAutoDiscoverCandidatesAlwaysIncludesFallbacks(t *testing.T) {
	orig := candidatePorts
	candidatePorts = func() ([]string, error) { return nil, nil }
	defer func() { candidatePorts = orig }()

	candidates, err := AutoDiscoverCandidates()
	require.NoError(t, err)
	require.Contains(t, candidates, fallbackSerialDevice)
	require.Contains(t, candidates, fallbackTCPURL)
	require.Equal(t, fallbackTCPURL, candidates[len(candidates)-1])
}

func TestAutoDiscoverCandidatesDedupesGlobMatches(t *testing.T) {
	orig := candidatePorts
	candidatePorts = func() ([]string, error) {
		return []string{"/dev/ttyACM0", "/dev/ttyACM1", "/dev/ttyUSB0"}, nil
	}
	defer func() { candidatePorts = orig }()

	candidates, err := AutoDiscoverCandidates()
	require.NoError(t, err)
	seen := map[string]int{}
	for _, c := range candidates {
		seen[c]++
	}
	require.Equal(t, 1, seen["/dev/ttyACM0"])
}
