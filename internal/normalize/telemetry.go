package normalize

import (
	"github.com/charmbracelet/log"

	"github.com/rabarar/potatomesh-ingestd/internal/ids"
	"github.com/rabarar/potatomesh-ingestd/internal/ingestor"
)

// protojson (UseProtoNames: true, see types.go) renders Telemetry's
// sub-messages with snake_case keys, not the camelCase field names on the
// generated Go struct — every path below must match the wire JSON, not the
// struct tag.
var telemetryDeviceFields = map[string][]string{
	"battery_level":       {"telemetry.device_metrics.battery_level"},
	"voltage":             {"telemetry.device_metrics.voltage"},
	"channel_utilization": {"telemetry.device_metrics.channel_utilization"},
	"air_util_tx":         {"telemetry.device_metrics.air_util_tx"},
	"uptime_seconds":      {"telemetry.device_metrics.uptime_seconds"},
}

var telemetryEnvironmentFields = map[string][]string{
	"temperature":    {"telemetry.environment_metrics.temperature"},
	"humidity":       {"telemetry.environment_metrics.relative_humidity"},
	"pressure":       {"telemetry.environment_metrics.barometric_pressure"},
	"lux":            {"telemetry.environment_metrics.lux"},
	"wind_speed":     {"telemetry.environment_metrics.wind_speed"},
	"wind_direction": {"telemetry.environment_metrics.wind_direction"},
	"rainfall":       {"telemetry.environment_metrics.rainfall_1h", "telemetry.environment_metrics.rainfall"},
	"soil_moisture":  {"telemetry.environment_metrics.soil_moisture"},
}

// telemetryEitherSectionFields may appear nested under either device_metrics
// or environment_metrics depending on firmware version.
var telemetryEitherSectionFields = map[string][]string{
	"current":        {"telemetry.device_metrics.current", "telemetry.environment_metrics.current", "telemetry.power_metrics.ch1_current"},
	"gas_resistance": {"telemetry.device_metrics.gas_resistance", "telemetry.environment_metrics.gas_resistance"},
	"iaq":            {"telemetry.device_metrics.iaq", "telemetry.environment_metrics.iaq"},
	"distance":       {"telemetry.device_metrics.distance", "telemetry.environment_metrics.distance"},
	"radiation":      {"telemetry.device_metrics.radiation", "telemetry.environment_metrics.radiation"},
}

// Telemetry normalises TELEMETRY_APP packets into /api/telemetry at
// priority 40, suppressing repeated self-telemetry from the host radio more
// often than once per hour.
func Telemetry(v *View, state *ingestor.State) (Record, DropReason) {
	if !v.HasID {
		return Record{}, DropMissingPacketID
	}
	if _, ok := v.Decoded["telemetry"]; !ok {
		return Record{}, DropNothingUsable
	}

	if hostID := state.HostID(); hostID != "" && v.FromID == hostID {
		accept, remaining := state.AcceptHostTelemetry(v.RxTime)
		if !accept {
			log.Debug("suppressing host telemetry", "minutes_until_accept", remaining/60)
			return Record{}, DropSuppressedHostTelemetry
		}
	}

	body := map[string]any{
		"id":       v.ID,
		"node_id":  v.FromID,
		"from_id":  v.FromID,
		"to_id":    v.ToID,
		"rx_time":  v.RxTime,
		"rx_iso":   ids.ISO(v.RxTime),
		"channel":  v.Channel,
		"portnum":  v.PortNum,
	}
	if numNode, ok := ids.NodeNumFromID(v.FromID); ok {
		body["node_num"] = numNode
	}
	if t, ok := ids.First(v.Decoded, "telemetry.time"); ok {
		body["telemetry_time"] = t
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

	for _, fieldSet := range []map[string][]string{telemetryDeviceFields, telemetryEnvironmentFields, telemetryEitherSectionFields} {
		for bodyKey, paths := range fieldSet {
			if val, ok := ids.First(v.Decoded, paths...); ok {
				body[bodyKey] = val
			}
		}
	}

	return Record{Path: "/api/telemetry", Priority: 40, Body: body}, DropNone
}
