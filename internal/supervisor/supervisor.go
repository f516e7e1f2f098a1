// Package supervisor implements the daemon's top-level state machine:
// connect, seed the initial snapshot, poll liveness, schedule reconnects,
// duty-cycle energy-saving sleep, and send the ingestor heartbeat.
package supervisor

import (
	"context"
	"fmt"
	"time"

	"buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"github.com/charmbracelet/log"
	"github.com/go-co-op/gocron/v2"

	"github.com/rabarar/potatomesh-ingestd/internal/config"
	"github.com/rabarar/potatomesh-ingestd/internal/iface"
	"github.com/rabarar/potatomesh-ingestd/internal/ids"
	"github.com/rabarar/potatomesh-ingestd/internal/ingestor"
	"github.com/rabarar/potatomesh-ingestd/internal/meshmeta"
	"github.com/rabarar/potatomesh-ingestd/internal/normalize"
	"github.com/rabarar/potatomesh-ingestd/internal/queue"
	"github.com/rabarar/potatomesh-ingestd/internal/receiver"
	"github.com/rabarar/potatomesh-ingestd/public/transport"
)

type state int

const (
	stateUnconnected state = iota
	stateConnected
	stateSnapshotting
	stateIdle
	stateEnergySleeping
	stateTerminating
)

// version is stamped into the ingestor heartbeat body.
const version = "0.1.0"

// Supervisor is the single long-lived actor owning the radio handle and
// the stop signal. It is not safe for concurrent use by more than one
// goroutine — only the packet-receiver callbacks and the queue worker run
// concurrently with it.
type Supervisor struct {
	cfg       *config.Config
	deps      normalize.Dependencies
	queue     *queue.Queue
	stopCh    chan struct{}
	scheduler gocron.Scheduler

	target iface.Target
	radio  iface.Interface
	recv   *receiver.Receiver

	retryDelay        time.Duration
	connectedAt       time.Time
	lastReconnectAt   time.Time
	energyOnlineStart time.Time
	initialSnapshotOK bool
}

// New builds a Supervisor for target, posting normalised records through q
// and tracking session state in deps.
func New(cfg *config.Config, target iface.Target, deps normalize.Dependencies, q *queue.Queue, ignored *normalize.IgnoredLog) (*Supervisor, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}
	s := &Supervisor{
		cfg:        cfg,
		deps:       deps,
		queue:      q,
		stopCh:     make(chan struct{}),
		scheduler:  scheduler,
		target:     target,
		retryDelay: cfg.ReconnectInitial,
	}
	s.recv = receiver.New(deps, ignored, q)
	return s, nil
}

// Stop sets the process-wide stop event. Safe to call more than once.
func (s *Supervisor) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}

// Run drives the state machine until Stop is called. Open and connect
// failures are retried with exponential backoff and do not end Run.
func (s *Supervisor) Run(ctx context.Context) error {
	s.scheduleHeartbeat(ctx)
	defer func() { _ = s.scheduler.Shutdown() }()
	s.scheduler.Start()

	st := stateUnconnected
	for {
		select {
		case <-s.stopCh:
			return s.terminate()
		default:
		}

		switch st {
		case stateUnconnected:
			st = s.tryConnect(ctx)
		case stateConnected:
			st = stateSnapshotting
		case stateSnapshotting:
			st = s.snapshot(ctx)
		case stateIdle:
			st = s.tick(ctx)
		case stateEnergySleeping:
			st = s.sleep(ctx)
		case stateTerminating:
			return s.terminate()
		}
	}
}

func (s *Supervisor) tryConnect(ctx context.Context) state {
	radio, err := iface.Open(ctx, s.target)
	if err != nil {
		log.Error("opening interface failed", "target", s.target, "err", err)
		if s.waitStop(s.retryDelay) {
			return stateTerminating
		}
		s.retryDelay *= 2
		if s.retryDelay > s.cfg.ReconnectMax {
			s.retryDelay = s.cfg.ReconnectMax
		}
		return stateUnconnected
	}
	if err := radio.Connect(ctx); err != nil {
		log.Error("connecting client failed", "target", s.target, "err", err)
		_ = radio.Close(s.cfg.CloseTimeout)
		if s.waitStop(s.retryDelay) {
			return stateTerminating
		}
		s.retryDelay *= 2
		if s.retryDelay > s.cfg.ReconnectMax {
			s.retryDelay = s.cfg.ReconnectMax
		}
		return stateUnconnected
	}

	s.radio = radio
	s.connectedAt = time.Now()
	s.energyOnlineStart = s.connectedAt
	s.retryDelay = s.cfg.ReconnectInitial
	s.initialSnapshotOK = false
	if client := radio.Client(); client != nil {
		s.recv.Register(client)
		s.captureHostIdentity(client)
		s.captureSessionMetadata(client)
	}
	log.Info("interface connected", "target", s.target)
	return stateConnected
}

// captureHostIdentity extracts the canonical id of the radio physically
// attached to this process from myInfo (MyNodeInfo.MyNodeNum), matching the
// "Host identity" entity in section 3. Only the first connection of the
// process's lifetime actually sets it (State.SetHostID is write-once).
func (s *Supervisor) captureHostIdentity(client *transport.Client) {
	info := client.State.NodeInfo()
	if info == nil {
		return
	}
	id, ok := ids.CanonicalNodeID(info.GetMyNodeNum())
	if !ok {
		return
	}
	s.deps.Ingestor.SetHostID(id)
}

func (s *Supervisor) snapshot(ctx context.Context) state {
	client := s.radio.Client()
	if client == nil {
		s.initialSnapshotOK = true
		return stateIdle
	}

	// client.State.Nodes() copies under its own read lock, so unlike the
	// original's raw dict iteration there is no concurrent-mutation race
	// here to retry against.
	nodes := client.State.Nodes()

	for _, n := range nodes {
		id, ok := ids.CanonicalNodeID(n.GetNum())
		if !ok {
			continue
		}
		entry := normalize.NodeEntry(n)
		s.queue.Enqueue(ctx, "/api/nodes", map[string]any{id: entry}, queue.PriorityNodes)
	}

	s.initialSnapshotOK = true
	log.Info("initial snapshot sent", "nodes", len(nodes))
	return stateIdle
}

func (s *Supervisor) tick(ctx context.Context) state {
	if s.waitStop(s.cfg.SnapshotInterval) {
		return stateTerminating
	}

	if s.inactivityElapsed() {
		return s.reconnect(ctx)
	}

	if s.cfg.EnergySaving && time.Since(s.energyOnlineStart) >= s.cfg.EnergyOnlineFor {
		return stateEnergySleeping
	}

	return stateIdle
}

func (s *Supervisor) inactivityElapsed() bool {
	if s.cfg.InactivityReconnect <= 0 {
		return false
	}
	lastActivity := s.connectedAt
	if s.radio != nil {
		if t := s.recv.LastPacketTime(); t > lastActivity.Unix() {
			lastActivity = time.Unix(t, 0)
		}
	}
	idleFor := time.Since(lastActivity)
	connected := s.radio != nil && s.radio.IsConnected()
	if idleFor < s.cfg.InactivityReconnect && connected {
		return false
	}
	if time.Since(s.lastReconnectAt) < s.cfg.InactivityReconnect {
		return false // rate-limited to one reconnect per inactivity window
	}
	return true
}

func (s *Supervisor) reconnect(ctx context.Context) state {
	log.Warn("inactivity threshold reached, reconnecting")
	s.lastReconnectAt = time.Now()
	s.closeRadio()
	return stateUnconnected
}

func (s *Supervisor) sleep(ctx context.Context) state {
	log.Info("entering energy saving sleep", "duration", s.cfg.EnergySleepFor)
	s.closeRadio()
	if s.waitStop(s.cfg.EnergySleepFor) {
		return stateTerminating
	}
	return stateUnconnected
}

func (s *Supervisor) closeRadio() {
	if s.radio == nil {
		return
	}
	if err := s.radio.Close(s.cfg.CloseTimeout); err != nil {
		log.Warn("interface close reported error", "err", err)
	}
	s.radio = nil
}

func (s *Supervisor) terminate() error {
	log.Info("terminating supervisor")
	s.closeRadio()
	return nil
}

// waitStop blocks for d or until Stop is called, whichever comes first,
// reporting whether the stop event fired.
func (s *Supervisor) waitStop(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.stopCh:
		return true
	case <-timer.C:
		return false
	}
}

func (s *Supervisor) scheduleHeartbeat(ctx context.Context) {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.cfg.IngestorHeartbeat),
		gocron.NewTask(func() { s.heartbeat(ctx) }),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		log.Error("scheduling heartbeat failed", "err", err)
	}
}

func (s *Supervisor) heartbeat(ctx context.Context) {
	hostID := s.deps.Ingestor.HostID()
	if hostID == "" {
		return
	}
	if !s.deps.Ingestor.ShouldHeartbeat(time.Now(), s.cfg.IngestorHeartbeat) {
		return
	}
	s.queue.Enqueue(ctx, "/api/ingestors", map[string]any{
		"node_id":       hostID,
		"start_time":    s.deps.Ingestor.StartTime(),
		"last_seen_time": time.Now().Unix(),
		"version":       version,
	}, queue.PriorityDefault)
}

// captureSessionMetadata performs the best-effort, once-per-session channel
// table and radio metadata capture described in section 4.3. Radio metadata
// is captured first so the primary channel's name-fallback chain (settings
// name -> modem preset -> $CHANNEL env) has a preset available.
func (s *Supervisor) captureSessionMetadata(client *transport.Client) {
	if s.deps.Radio != nil {
		for _, cfg := range client.State.Configs() {
			lora := cfg.GetLora()
			if lora == nil {
				continue
			}
			s.deps.Radio.Capture(float64(lora.GetOverrideFrequency()), lora.GetRegion().String(), lora.GetModemPreset().String())
			break
		}
	}

	if s.deps.Channels == nil {
		return
	}
	for _, ch := range client.State.Channels() {
		var role meshmeta.ChannelRole
		switch ch.GetRole() {
		case meshtastic.Channel_PRIMARY:
			role = meshmeta.ChannelRolePrimary
		case meshtastic.Channel_SECONDARY:
			role = meshmeta.ChannelRoleSecondary
		default:
			continue // DISABLED slots carry no name
		}
		name := ""
		if ch.GetSettings() != nil {
			name = ch.GetSettings().GetName()
		}
		s.deps.Channels.Capture(role, int(ch.GetIndex()), name, s.deps.Radio.Preset())
	}
}
