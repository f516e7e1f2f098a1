package normalize

import (
	"github.com/rabarar/potatomesh-ingestd/internal/ids"
)

// NeighborInfo normalises NEIGHBORINFO_APP packets into /api/neighbors at
// priority 20.
func NeighborInfo(v *View) (Record, DropReason) {
	neighborinfo, ok := v.Decoded["neighborinfo"].(map[string]any)
	if !ok {
		return Record{}, DropNothingUsable
	}

	nodeID := ""
	if raw, ok := ids.First(neighborinfo, "nodeId", "node_id"); ok {
		if id, ok := ids.CanonicalNodeID(raw); ok {
			nodeID = id
		}
	}
	if nodeID == "" {
		nodeID = v.FromID
	}
	if nodeID == "" {
		return Record{}, DropUnresolvableNodeID
	}

	rawNeighbors, _ := neighborinfo["neighbors"].([]any)
	var neighbors []map[string]any
	for _, rn := range rawNeighbors {
		nm, ok := rn.(map[string]any)
		if !ok {
			continue
		}
		idRaw, hasID := ids.First(nm, "nodeId", "node_id")
		if !hasID {
			continue
		}
		neighborID, ok := ids.CanonicalNodeID(idRaw)
		if !ok {
			continue
		}
		neighborNum, _ := ids.NodeNumFromID(idRaw)
		entry := map[string]any{
			"neighbor_id":  neighborID,
			"neighbor_num": neighborNum,
			"rx_time":      v.RxTime,
			"rx_iso":       ids.ISO(v.RxTime),
		}
		if snr, ok := ids.First(nm, "snr"); ok {
			entry["snr"] = snr
		}
		neighbors = append(neighbors, entry)
	}

	body := map[string]any{
		"node_id":  nodeID,
		"rx_time":  v.RxTime,
		"rx_iso":   ids.ISO(v.RxTime),
		"neighbors": neighbors,
	}
	if numNode, ok := ids.NodeNumFromID(nodeID); ok {
		body["node_num"] = numNode
	}
	if interval, ok := ids.First(neighborinfo, "nodeBroadcastIntervalSecs", "node_broadcast_interval_secs"); ok {
		body["node_broadcast_interval_secs"] = interval
	}
	if lastSentBy, ok := ids.First(neighborinfo, "lastSentById", "last_sent_by_id"); ok {
		if id, ok := ids.CanonicalNodeID(lastSentBy); ok {
			body["last_sent_by_id"] = id
		}
	}

	return Record{Path: "/api/neighbors", Priority: 20, Body: body}, DropNone
}
