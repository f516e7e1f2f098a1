package ingestor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHostIDIsWriteOnce(t *testing.T) {
	s := New(time.Unix(1_700_000_000, 0))
	s.SetHostID("!00000001")
	s.SetHostID("!00000002")
	require.Equal(t, "!00000001", s.HostID())
}

func TestShouldHeartbeatRateLimited(t *testing.T) {
	s := New(time.Now())
	now := time.Unix(1_700_000_000, 0)

	require.True(t, s.ShouldHeartbeat(now, time.Hour))
	require.False(t, s.ShouldHeartbeat(now.Add(30*time.Minute), time.Hour))
	require.True(t, s.ShouldHeartbeat(now.Add(time.Hour), time.Hour))
}

func TestAcceptHostTelemetryMonotonicSpacing(t *testing.T) {
	s := New(time.Now())

	accept, _ := s.AcceptHostTelemetry(1000)
	require.True(t, accept)

	accept, remaining := s.AcceptHostTelemetry(1500)
	require.False(t, accept)
	require.Greater(t, remaining, int64(0))

	accept, _ = s.AcceptHostTelemetry(1000 + int64(time.Hour.Seconds()))
	require.True(t, accept)
}

func TestStartTimeStamped(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := New(now)
	require.Equal(t, int64(1_700_000_000), s.StartTime())
}
