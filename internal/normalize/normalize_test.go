package normalize

import (
	"testing"
	"time"

	"buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"github.com/rabarar/potatomesh-ingestd/internal/ingestor"
	"github.com/rabarar/potatomesh-ingestd/internal/meshmeta"
)

func textPacket(id uint32, channel uint32, from, to uint32, text string) *meshtastic.MeshPacket {
	return &meshtastic.MeshPacket{
		Id:      id,
		From:    from,
		To:      to,
		Channel: channel,
		PayloadVariant: &meshtastic.MeshPacket_Decoded{
			Decoded: &meshtastic.Data{
				Portnum: meshtastic.PortNum_TEXT_MESSAGE_APP,
				Payload: []byte(text),
			},
		},
	}
}

func TestTextBroadcastScenario(t *testing.T) {
	pkt := textPacket(123, 2, 0xabc, 0xffffffff, "hi")
	view := NewView(pkt, time.Unix(1_700_000_000, 0))
	deps := Dependencies{Channels: meshmeta.NewTable(""), Radio: meshmeta.NewRadioMetadata(), Ingestor: ingestor.New(time.Now())}

	rec, reason, dispatched := Dispatch(view, deps)
	require.True(t, dispatched)
	require.Equal(t, DropNone, reason)
	require.Equal(t, "/api/messages", rec.Path)
	require.Equal(t, 10, rec.Priority)

	body := rec.Body.(map[string]any)
	require.Equal(t, "hi", body["text"])
	require.Equal(t, 2, body["channel"])
	require.Equal(t, "2023-11-14T22:13:20Z", body["rx_iso"])
}

func TestChannelZeroDirectMessageSuppressed(t *testing.T) {
	pkt := textPacket(124, 0, 0xabc, 0xdef, "hi")
	view := NewView(pkt, time.Unix(1_700_000_001, 0))
	deps := Dependencies{Channels: meshmeta.NewTable(""), Radio: meshmeta.NewRadioMetadata(), Ingestor: ingestor.New(time.Now())}

	rec, reason, dispatched := Dispatch(view, deps)
	require.True(t, dispatched)
	require.Equal(t, DropSkippedDirectMessage, reason)
	require.Nil(t, rec.Body)
}

func TestDispatchAtMostOncePerView(t *testing.T) {
	pkt := textPacket(125, 2, 0xabc, 0xffffffff, "hi")
	view := NewView(pkt, time.Unix(1_700_000_002, 0))
	deps := Dependencies{Channels: meshmeta.NewTable(""), Radio: meshmeta.NewRadioMetadata(), Ingestor: ingestor.New(time.Now())}

	_, _, first := Dispatch(view, deps)
	_, _, second := Dispatch(view, deps)
	require.True(t, first)
	require.False(t, second, "redelivery of the same view must not dispatch twice")
}

func TestPositionIntegerScaling(t *testing.T) {
	position := &meshtastic.Position{LatitudeI: 525598720, LongitudeI: 136577024, Altitude: 11}
	payload, err := proto.Marshal(position)
	require.NoError(t, err)
	pkt := &meshtastic.MeshPacket{
		Id:     200,
		From:   7,
		RxTime: 1_700_000_100,
		PayloadVariant: &meshtastic.MeshPacket_Decoded{
			Decoded: &meshtastic.Data{Portnum: meshtastic.PortNum_POSITION_APP, Payload: payload},
		},
	}
	view := NewView(pkt, time.Unix(1_700_000_100, 0))
	rec, reason := Position(view)
	require.Equal(t, DropNone, reason)
	body := rec.Body.(map[string]any)
	require.InDelta(t, 52.5598720, body["latitude"], 1e-6)
	require.InDelta(t, 13.6577024, body["longitude"], 1e-6)
}

func TestTelemetrySensorFieldsResolveSnakeCaseKeys(t *testing.T) {
	// v.Decoded is populated by protojson with UseProtoNames, so the
	// telemetry sub-message always arrives snake_case, never the generated
	// struct's camelCase field names.
	view := &View{
		HasID:   true,
		ID:      300,
		FromID:  "!00000007",
		RxTime:  1_700_000_200,
		PortNum: "TELEMETRY_APP",
		Decoded: map[string]any{
			"telemetry": map[string]any{
				"device_metrics": map[string]any{
					"battery_level":       float64(80),
					"voltage":             3.7,
					"channel_utilization": 12.5,
					"air_util_tx":         1.2,
					"uptime_seconds":      float64(3600),
				},
				"environment_metrics": map[string]any{
					"temperature":       21.5,
					"relative_humidity": 44.0,
				},
			},
		},
	}
	state := ingestor.New(time.Now())

	rec, reason := Telemetry(view, state)
	require.Equal(t, DropNone, reason)
	body := rec.Body.(map[string]any)
	require.Equal(t, float64(80), body["battery_level"])
	require.Equal(t, 3.7, body["voltage"])
	require.Equal(t, 12.5, body["channel_utilization"])
	require.Equal(t, 1.2, body["air_util_tx"])
	require.Equal(t, float64(3600), body["uptime_seconds"])
	require.Equal(t, 21.5, body["temperature"])
	require.Equal(t, 44.0, body["humidity"])
}

func TestNodeEntryCarriesBulkFields(t *testing.T) {
	node := &meshtastic.NodeInfo{
		Num:       7,
		Channel:   2,
		LastHeard: 1_700_000_300,
		Snr:       5.5,
		HopsAway:  3,
		User: &meshtastic.User{
			Id:        "!00000007",
			LongName:  "Node Seven",
			ShortName: "N7",
		},
		Position: &meshtastic.Position{LatitudeI: 1, LongitudeI: 2},
		DeviceMetrics: &meshtastic.DeviceMetrics{
			BatteryLevel: 90,
		},
	}

	entry := NodeEntry(node)
	require.Equal(t, uint32(7), entry["num"])
	require.Equal(t, uint32(1_700_000_300), entry["lastHeard"])
	require.Equal(t, 2, entry["channel"])
	require.Equal(t, float32(5.5), entry["snr"])
	require.Equal(t, uint32(3), entry["hopsAway"])
	require.NotNil(t, entry["position"])
	require.NotNil(t, entry["deviceMetrics"])
	userMap, ok := entry["user"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "Node Seven", userMap["longName"])
}

func TestHostTelemetrySuppression(t *testing.T) {
	state := ingestor.New(time.Now())
	state.SetHostID("!00000001")

	accept1, _ := state.AcceptHostTelemetry(100)
	require.True(t, accept1)
	accept2, _ := state.AcceptHostTelemetry(200)
	require.False(t, accept2)
	accept3, _ := state.AcceptHostTelemetry(3800)
	require.True(t, accept3)
}
