// Package ingestor tracks this process's own identity and duty cycle: the
// canonical host node id, process start time, heartbeat cadence, and the
// host-telemetry suppression window.
package ingestor

import (
	"sync"
	"time"
)

const hostTelemetryMinSpacing = time.Hour

// State is the small set of process-lifetime facts the supervisor and
// normalisers both need: who we are (host id) and when we last spoke.
type State struct {
	mu sync.RWMutex

	startTime     int64
	hostID        string
	lastHeartbeat int64

	lastHostTelemetryRx int64
}

// New returns a State stamped with the current process start time.
func New(now time.Time) *State {
	return &State{startTime: now.Unix()}
}

// StartTime returns the unix-seconds process start time.
func (s *State) StartTime() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startTime
}

// SetHostID records the canonical id of the radio physically attached to
// this process, extracted once from myInfo/myNodeInfo/localNode. Later
// calls are no-ops once a host id is set, matching the write-once-per-
// session semantics of the other session metadata.
func (s *State) SetHostID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hostID == "" {
		s.hostID = id
	}
}

// HostID returns the captured host id, or "" if none has been captured yet.
func (s *State) HostID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hostID
}

// ShouldHeartbeat reports whether at least interval has elapsed since the
// last heartbeat enqueue (or none has happened yet), and if so stamps "now"
// as the new last-heartbeat time.
func (s *State) ShouldHeartbeat(now time.Time, interval time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	nowUnix := now.Unix()
	if s.lastHeartbeat != 0 && nowUnix-s.lastHeartbeat < int64(interval.Seconds()) {
		return false
	}
	s.lastHeartbeat = nowUnix
	return true
}

// AcceptHostTelemetry reports whether a host-telemetry packet received at
// rxTime should be accepted, enforcing a monotonically increasing,
// hour-spaced acceptance window. Suppressed packets never update the
// tracked time.
func (s *State) AcceptHostTelemetry(rxTime int64) (accept bool, secondsUntilNext int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastHostTelemetryRx != 0 {
		elapsed := rxTime - s.lastHostTelemetryRx
		if elapsed < int64(hostTelemetryMinSpacing.Seconds()) {
			return false, int64(hostTelemetryMinSpacing.Seconds()) - elapsed
		}
	}
	s.lastHostTelemetryRx = rxTime
	return true, 0
}
