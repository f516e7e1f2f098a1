// Package receiver wires a connected radio's decoded packet stream into the
// normalisation pipeline: dedup, inactivity-timestamp tracking, dispatch,
// and exception containment around a single packet's handling.
package receiver

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"github.com/charmbracelet/log"
	"google.golang.org/protobuf/proto"

	"github.com/rabarar/potatomesh-ingestd/internal/normalize"
	"github.com/rabarar/potatomesh-ingestd/public/transport"
)

// Receiver owns the dedup/timestamp bookkeeping shared by every callback
// invocation and enqueues normalised records onto a sink.
type Receiver struct {
	deps          normalize.Dependencies
	ignored       *normalize.IgnoredLog
	sink          Sink
	lastPacketRx  atomic.Int64 // unix seconds, monotonic
}

// Sink accepts a fully-normalised record for dispatch; in production this
// is the priority queue's Enqueue method.
type Sink interface {
	Enqueue(ctx context.Context, path string, body any, priority int)
}

// New constructs a Receiver over deps, logging drops to ignored when
// non-nil, and pushing accepted records into sink.
func New(deps normalize.Dependencies, ignored *normalize.IgnoredLog, sink Sink) *Receiver {
	return &Receiver{deps: deps, ignored: ignored, sink: sink}
}

// LastPacketTime returns the most recent stamped packet receive time (unix
// seconds), or 0 if none has arrived yet this connection.
func (r *Receiver) LastPacketTime() int64 {
	return r.lastPacketRx.Load()
}

// Register attaches this receiver's handler to client for every packet
// the radio forwards, matching the topic fan-out the original driver
// exposes as named pubsub topics: everything funnels through one decoded
// MeshPacket handler here since Go dispatches on type rather than string
// topics.
func (r *Receiver) Register(client *transport.Client) {
	client.Handle(&meshtastic.MeshPacket{}, r.handleMeshPacket)
	client.Handle(&meshtastic.NodeInfo{}, r.handleNodeInfoAdapter)
}

func (r *Receiver) handleMeshPacket(msg proto.Message) error {
	packet, ok := msg.(*meshtastic.MeshPacket)
	if !ok {
		return nil
	}
	r.stampActivity()

	defer func() {
		if p := recover(); p != nil {
			log.Error("panic handling packet, continuing", "panic", p, "packet_id", packet.GetId())
		}
	}()

	view := normalize.NewView(packet, time.Now())
	rec, reason, dispatched := normalize.Dispatch(view, r.deps)
	if !dispatched {
		return nil // already processed by another delivery of this view
	}
	if reason != normalize.DropNone {
		if r.ignored != nil {
			r.ignored.Record(reason, map[string]any{"id": packet.GetId(), "from": packet.GetFrom()})
		}
		return nil
	}
	r.sink.Enqueue(context.Background(), rec.Path, rec.Body, rec.Priority)
	return nil
}

// handleNodeInfoAdapter protects the driver's own NodeInfoHandler: if the
// incoming NodeInfo is missing a usable id, it is dropped here rather than
// allowed to panic downstream, replacing the original's id-synthesis
// monkey-patch with an adapter that owns decoding directly.
func (r *Receiver) handleNodeInfoAdapter(msg proto.Message) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("recovered panic in nodeinfo handler: %v", p)
			log.Error("nodeinfo handler panic swallowed", "panic", p)
		}
	}()

	info, ok := msg.(*meshtastic.NodeInfo)
	if !ok || info.GetNum() == 0 {
		return nil
	}
	r.stampActivity()
	return nil
}

func (r *Receiver) stampActivity() {
	r.lastPacketRx.Store(time.Now().Unix())
}
