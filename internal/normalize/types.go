// Package normalize turns decoded Meshtastic packets into the canonical,
// POST-ready records described for each of the six handled portnums.
package normalize

import (
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/rabarar/potatomesh-ingestd/internal/ids"
	"github.com/rabarar/potatomesh-ingestd/internal/meshmeta"
)

// Record is a fully-built, POST-ready payload paired with its destination
// path and dispatch priority.
type Record struct {
	Path     string
	Priority int
	Body     any
}

// DropReason enumerates the reasons a packet yields no Record. A non-empty
// value is always logged to the ignored-packet log in debug mode and never
// aborts the receiver.
type DropReason string

const (
	DropNone                    DropReason = ""
	DropMissingPacketID         DropReason = "missing-packet-id"
	DropNoMessagePayload        DropReason = "no-message-payload"
	DropUnsupportedPort         DropReason = "unsupported-port"
	DropSkippedDirectMessage    DropReason = "skipped-direct-message"
	DropUnresolvableNodeID      DropReason = "unresolvable-node-id"
	DropNothingUsable           DropReason = "nothing-usable"
	DropSuppressedHostTelemetry DropReason = "suppressed-host-telemetry"
)

// View is the single tagged representation every packet is normalised into
// before dispatch, bridging the loose protobuf-or-mapping duck typing the
// upstream driver exposes. decoded carries the portnum-specific mapping
// (position/telemetry/user/neighborinfo/traceroute) produced by re-decoding
// the Data payload through protojson, matching the original's reliance on
// MessageToDict.
type View struct {
	Packet  *meshtastic.MeshPacket
	Decoded map[string]any

	ID         int64
	HasID      bool
	RxTime     int64
	FromID     string
	ToID       string
	Channel    int
	SNR        *float64
	RSSI       *int
	HopLimit   *int
	Encrypted  bool
	PortNum    string
	PayloadB64 string

	dedupOnce sync.Once
	dedupHit  bool
}

var jsonMarshalOpts = protojson.MarshalOptions{UseProtoNames: true, EmitUnpopulated: false}

// NewView builds a View from a raw MeshPacket plus the wall-clock receive
// time, decoding the inner Data payload according to its portnum into a
// generic mapping the individual normalisers can probe with ids.First.
func NewView(packet *meshtastic.MeshPacket, rxTime time.Time) *View {
	v := &View{
		Packet:  packet,
		Decoded: map[string]any{},
		RxTime:  rxTime.Unix(),
		Channel: int(packet.GetChannel()),
	}

	if fromID, ok := ids.CanonicalNodeID(packet.GetFrom()); ok {
		v.FromID = fromID
	}
	if toID, ok := ids.CanonicalNodeID(packet.GetTo()); ok {
		v.ToID = toID
	}
	if snr := packet.GetRxSnr(); snr != 0 {
		f := float64(snr)
		v.SNR = &f
	}
	if rssi := packet.GetRxRssi(); rssi != 0 {
		i := int(rssi)
		v.RSSI = &i
	}
	if hopLimit := packet.GetHopLimit(); hopLimit != 0 {
		i := int(hopLimit)
		v.HopLimit = &i
	}

	data := packet.GetDecoded()
	if data == nil {
		v.Encrypted = len(packet.GetEncrypted()) > 0
		return v
	}

	v.ID = int64(packet.GetId())
	v.HasID = packet.GetId() != 0
	v.PortNum = data.GetPortnum().String()
	v.PayloadB64 = base64.StdEncoding.EncodeToString(data.GetPayload())
	v.Decoded["portnum"] = v.PortNum
	v.Decoded["payload"] = map[string]any{"encrypted": false}

	decodePayloadSubsection(v, data)
	return v
}

// decodePayloadSubsection parses Data.Payload into the portnum-appropriate
// protobuf message, then flattens it via protojson into v.Decoded under the
// conventional key ("position", "telemetry", "user", "neighborinfo",
// "traceroute") so normalisers can use ids.First against it uniformly.
func decodePayloadSubsection(v *View, data *meshtastic.Data) {
	var msg proto.Message
	var key string

	switch data.GetPortnum() {
	case meshtastic.PortNum_POSITION_APP:
		msg, key = &meshtastic.Position{}, "position"
	case meshtastic.PortNum_NODEINFO_APP:
		msg, key = &meshtastic.User{}, "user"
	case meshtastic.PortNum_TELEMETRY_APP:
		msg, key = &meshtastic.Telemetry{}, "telemetry"
	case meshtastic.PortNum_NEIGHBORINFO_APP:
		msg, key = &meshtastic.NeighborInfo{}, "neighborinfo"
	case meshtastic.PortNum_TRACEROUTE_APP:
		msg, key = &meshtastic.RouteDiscovery{}, "traceroute"
	case meshtastic.PortNum_TEXT_MESSAGE_APP:
		v.Decoded["text"] = string(data.GetPayload())
		return
	default:
		return
	}

	if err := proto.Unmarshal(data.GetPayload(), msg); err != nil {
		return
	}
	asMap, err := protojsonToMap(msg)
	if err != nil {
		return
	}
	v.Decoded[key] = asMap
}

func protojsonToMap(msg proto.Message) (map[string]any, error) {
	body, err := jsonMarshalOpts.Marshal(msg)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkProcessed sets the dedup sentinel and reports whether this call was
// the first to do so; subsequent deliveries of the same View (e.g. because
// more than one subscribed topic matched the same incoming packet) return
// false and must be dropped by the caller without dispatch.
func (v *View) MarkProcessed() bool {
	first := false
	v.dedupOnce.Do(func() {
		first = true
		v.dedupHit = true
	})
	return first
}
