package supervisor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rabarar/potatomesh-ingestd/internal/config"
	"github.com/rabarar/potatomesh-ingestd/internal/iface"
	"github.com/rabarar/potatomesh-ingestd/internal/ingestor"
	"github.com/rabarar/potatomesh-ingestd/internal/meshmeta"
	"github.com/rabarar/potatomesh-ingestd/internal/normalize"
	"github.com/rabarar/potatomesh-ingestd/internal/queue"
)

type recordingPoster struct {
	mu    sync.Mutex
	paths []string
}

func (p *recordingPoster) Post(_ context.Context, path string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths = append(p.paths, path)
	return nil
}

func (p *recordingPoster) Paths() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.paths...)
}

func testConfig() *config.Config {
	return &config.Config{
		SnapshotInterval:    20 * time.Millisecond,
		ReconnectInitial:    5 * time.Millisecond,
		ReconnectMax:        10 * time.Millisecond,
		CloseTimeout:        50 * time.Millisecond,
		InactivityReconnect: 0, // disabled for most tests
		IngestorHeartbeat:   time.Hour,
	}
}

func TestRunTerminatesOnStop(t *testing.T) {
	cfg := testConfig()
	deps := normalize.Dependencies{
		Channels: meshmeta.NewTable(""),
		Radio:    meshmeta.NewRadioMetadata(),
		Ingestor: ingestor.New(time.Now()),
	}
	poster := &recordingPoster{}
	q := queue.New(poster)
	sup, err := New(cfg, iface.Target{Kind: iface.KindMock}, deps, q, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- sup.Run(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	sup.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not terminate after Stop")
	}
}

func TestHeartbeatRequiresHostID(t *testing.T) {
	cfg := testConfig()
	deps := normalize.Dependencies{
		Channels: meshmeta.NewTable(""),
		Radio:    meshmeta.NewRadioMetadata(),
		Ingestor: ingestor.New(time.Now()),
	}
	poster := &recordingPoster{}
	q := queue.New(poster)
	sup, err := New(cfg, iface.Target{Kind: iface.KindMock}, deps, q, nil)
	require.NoError(t, err)

	sup.heartbeat(context.Background())
	require.Empty(t, poster.Paths(), "heartbeat before a host id is known must not enqueue")

	deps.Ingestor.SetHostID("!00000001")
	sup.heartbeat(context.Background())
	require.Equal(t, []string{"/api/ingestors"}, poster.Paths())
}

func TestInactivityElapsedRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.InactivityReconnect = 30 * time.Millisecond
	deps := normalize.Dependencies{
		Channels: meshmeta.NewTable(""),
		Radio:    meshmeta.NewRadioMetadata(),
		Ingestor: ingestor.New(time.Now()),
	}
	q := queue.New(&recordingPoster{})
	sup, err := New(cfg, iface.Target{Kind: iface.KindMock}, deps, q, nil)
	require.NoError(t, err)

	sup.connectedAt = time.Now().Add(-time.Hour)
	require.True(t, sup.inactivityElapsed())

	sup.lastReconnectAt = time.Now()
	require.False(t, sup.inactivityElapsed(), "a second reconnect within the window must be rate-limited")
}
