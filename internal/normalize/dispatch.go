package normalize

import (
	"github.com/rabarar/potatomesh-ingestd/internal/ingestor"
	"github.com/rabarar/potatomesh-ingestd/internal/meshmeta"
)

// reactionPortNums holds the portnum names treated as reactions. It is a
// static set containing only "REACTION_APP"; no portnum integers are
// discovered or added at runtime.
var reactionPortNums = map[string]struct{}{
	"REACTION_APP": {},
}

// Dispatch routes v to the appropriate normaliser in the fixed order
// telemetry -> traceroute -> nodeinfo -> position -> neighborinfo ->
// text/reaction, merging in the session's radio metadata last. A View that
// has already been dispatched (MarkProcessed returns false) produces no
// record and no drop reason; the caller should not log it.
func Dispatch(v *View, deps Dependencies) (Record, DropReason, bool) {
	if !v.MarkProcessed() {
		return Record{}, DropNone, false
	}

	var rec Record
	var reason DropReason

	switch {
	case hasTelemetry(v):
		rec, reason = Telemetry(v, deps.Ingestor)
	case hasTraceroute(v):
		rec, reason = Traceroute(v)
	case v.PortNum == "NODEINFO_APP":
		rec, reason = NodeInfo(v)
	case v.PortNum == "POSITION_APP":
		rec, reason = Position(v)
	case hasNeighborInfo(v):
		rec, reason = NeighborInfo(v)
	case isTextOrReaction(v):
		rec, reason = Text(v, deps.Channels)
	default:
		reason = DropUnsupportedPort
	}

	if reason != DropNone {
		return Record{}, reason, true
	}
	mergeRadioMetadata(&rec, deps.Radio)
	return rec, DropNone, true
}

// Dependencies bundles the write-once session state every normaliser may
// need, threaded through from the supervisor.
type Dependencies struct {
	Channels *meshmeta.Table
	Radio    *meshmeta.RadioMetadata
	Ingestor *ingestor.State
}

func hasTelemetry(v *View) bool {
	_, ok := v.Decoded["telemetry"]
	return ok || v.PortNum == "TELEMETRY_APP"
}

func hasTraceroute(v *View) bool {
	if v.PortNum == "TRACEROUTE_APP" {
		return true
	}
	_, ok := v.Decoded["traceroute"].(map[string]any)
	return ok
}

func hasNeighborInfo(v *View) bool {
	if v.PortNum == "NEIGHBORINFO_APP" {
		return true
	}
	_, ok := v.Decoded["neighborinfo"].(map[string]any)
	return ok
}

func isTextOrReaction(v *View) bool {
	if v.PortNum == "TEXT_MESSAGE_APP" || v.PortNum == "REACTION_APP" {
		return true
	}
	if _, ok := reactionPortNums[v.PortNum]; ok {
		return true
	}
	return v.PortNum == ""
}

// mergeRadioMetadata attaches lora_freq/modem_preset to rec.Body. For
// /api/nodes the fields are merged into each inner node entry; everywhere
// else they are merged at the top level.
func mergeRadioMetadata(rec *Record, radio *meshmeta.RadioMetadata) {
	if rec.Body == nil || !radio.Captured() {
		return
	}
	freq := radio.Frequency()
	preset := radio.Preset()

	if rec.Path == "/api/nodes" {
		body, ok := rec.Body.(map[string]any)
		if !ok {
			return
		}
		for _, v := range body {
			if entry, ok := v.(map[string]any); ok {
				if freq != nil {
					entry["lora_freq"] = freq
				}
				if preset != "" {
					entry["modem_preset"] = preset
				}
			}
		}
		return
	}

	body, ok := rec.Body.(map[string]any)
	if !ok {
		return
	}
	if freq != nil {
		body["lora_freq"] = freq
	}
	if preset != "" {
		body["modem_preset"] = preset
	}
}
