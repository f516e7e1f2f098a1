package normalize

import (
	"github.com/rabarar/potatomesh-ingestd/internal/ids"
)

// Traceroute normalises TRACEROUTE_APP packets into /api/traces at priority
// 25. Hop lists found at any of several aliases are merged into a
// deduplicated, order-preserving union of node numbers.
func Traceroute(v *View) (Record, DropReason) {
	traceroute, _ := v.Decoded["traceroute"].(map[string]any)
	hasRequestID := false
	var requestID any
	if traceroute != nil {
		if rid, ok := ids.First(traceroute, "requestId", "request_id"); ok {
			requestID, hasRequestID = rid, true
		}
	}

	hops := collectHops(traceroute, v.Decoded)

	if !v.HasID && !hasRequestID && len(hops) == 0 {
		return Record{}, DropNothingUsable
	}

	body := map[string]any{
		"from_id": v.FromID,
		"to_id":   v.ToID,
		"rx_time": v.RxTime,
		"rx_iso":  ids.ISO(v.RxTime),
		"hops":    hops,
	}
	if v.HasID {
		body["id"] = v.ID
	}
	if hasRequestID {
		body["request_id"] = requestID
	}
	if v.FromID != "" {
		body["src"] = v.FromID
	}
	if v.ToID != "" {
		body["dest"] = v.ToID
	}
	if v.RSSI != nil {
		body["rssi"] = *v.RSSI
	}
	if v.SNR != nil {
		body["snr"] = *v.SNR
	}

	return Record{Path: "/api/traces", Priority: 25, Body: body}, DropNone
}

func collectHops(traceroute map[string]any, decoded map[string]any) []int64 {
	seen := map[int64]struct{}{}
	var out []int64

	add := func(raw any) {
		var num int64
		var ok bool
		if id, idOK := ids.CanonicalNodeID(raw); idOK {
			num, ok = ids.NodeNumFromID(id)
		}
		if !ok {
			num, ok = ids.CoerceInt(raw)
		}
		if !ok {
			return
		}
		if _, dup := seen[num]; dup {
			return
		}
		seen[num] = struct{}{}
		out = append(out, num)
	}

	for _, src := range []struct {
		container map[string]any
		key       string
	}{
		{traceroute, "hops"},
		{traceroute, "path"},
		{traceroute, "route"},
		{decoded, "hops"},
		{decoded, "path"},
	} {
		if src.container == nil {
			continue
		}
		list, _ := src.container[src.key].([]any)
		for _, h := range list {
			add(h)
		}
	}
	return out
}
