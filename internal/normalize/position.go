package normalize

import (
	"github.com/rabarar/potatomesh-ingestd/internal/ids"
)

// Position normalises POSITION_APP packets into /api/positions at priority
// 30. Integer lat/long fields are scaled by 1e-7; decimal fields win when
// present.
func Position(v *View) (Record, DropReason) {
	if !v.HasID {
		return Record{}, DropMissingPacketID
	}

	lat, latOK := resolveCoordinate(v, "latitude", "latitudeI", "latitude_i")
	lon, lonOK := resolveCoordinate(v, "longitude", "longitudeI", "longitude_i")

	body := map[string]any{
		"id":      v.ID,
		"node_id": v.FromID,
		"from_id": v.FromID,
		"to_id":   v.ToID,
		"rx_time": v.RxTime,
		"rx_iso":  ids.ISO(v.RxTime),
	}
	if numNode, ok := ids.NodeNumFromID(v.FromID); ok {
		body["node_num"] = numNode
	}
	if latOK {
		body["latitude"] = lat
	}
	if lonOK {
		body["longitude"] = lon
	}

	for bodyKey, paths := range map[string][]string{
		"altitude":        {"position.altitude"},
		"position_time":   {"position.time"},
		"location_source": {"position.locationSource", "position.location_source"},
		"precision_bits":  {"position.precisionBits", "position.precision_bits"},
		"sats_in_view":    {"position.satsInView", "position.sats_in_view"},
		"pdop":            {"position.PDOP", "position.pdop"},
		"ground_speed":    {"position.groundSpeed", "position.ground_speed"},
		"ground_track":    {"position.groundTrack", "position.ground_track"},
		"bitfield":        {"position.bitfield"},
	} {
		if val, ok := ids.First(v.Decoded, paths...); ok {
			body[bodyKey] = val
		}
	}

	if v.SNR != nil {
		body["snr"] = *v.SNR
	}
	if v.RSSI != nil {
		body["rssi"] = *v.RSSI
	}
	if v.HopLimit != nil {
		body["hop_limit"] = *v.HopLimit
	}
	if v.PayloadB64 != "" {
		body["payload_b64"] = v.PayloadB64
	}
	if raw, ok := v.Decoded["position"]; ok {
		body["raw"] = raw
	}

	return Record{Path: "/api/positions", Priority: 30, Body: body}, DropNone
}

func resolveCoordinate(v *View, decimalPath, intPathCamel, intPathSnake string) (float64, bool) {
	if val, ok := ids.First(v.Decoded, "position."+decimalPath); ok {
		if f, ok := toFloat(val); ok {
			return f, true
		}
	}
	if val, ok := ids.First(v.Decoded, "position."+intPathCamel, "position."+intPathSnake); ok {
		if f, ok := toFloat(val); ok {
			return f / 1e7, true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}
