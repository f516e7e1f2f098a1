package receiver

import (
	"context"
	"testing"
	"time"

	"buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"github.com/stretchr/testify/require"

	"github.com/rabarar/potatomesh-ingestd/internal/ingestor"
	"github.com/rabarar/potatomesh-ingestd/internal/meshmeta"
	"github.com/rabarar/potatomesh-ingestd/internal/normalize"
)

type fakeSink struct {
	enqueued []string
}

func (f *fakeSink) Enqueue(_ context.Context, path string, _ any, _ int) {
	f.enqueued = append(f.enqueued, path)
}

func newTestReceiver(sink Sink) *Receiver {
	deps := normalize.Dependencies{
		Channels: meshmeta.NewTable(""),
		Radio:    meshmeta.NewRadioMetadata(),
		Ingestor: ingestor.New(time.Now()),
	}
	return New(deps, nil, sink)
}

func textPacket(id uint32) *meshtastic.MeshPacket {
	return &meshtastic.MeshPacket{
		Id:      id,
		From:    0xabc,
		To:      0xffffffff,
		Channel: 2,
		PayloadVariant: &meshtastic.MeshPacket_Decoded{
			Decoded: &meshtastic.Data{
				Portnum: meshtastic.PortNum_TEXT_MESSAGE_APP,
				Payload: []byte("hi"),
			},
		},
	}
}

func TestHandleMeshPacketEnqueuesAndStampsActivity(t *testing.T) {
	sink := &fakeSink{}
	r := newTestReceiver(sink)

	require.Equal(t, int64(0), r.LastPacketTime())
	err := r.handleMeshPacket(textPacket(1))
	require.NoError(t, err)
	require.Equal(t, []string{"/api/messages"}, sink.enqueued)
	require.Greater(t, r.LastPacketTime(), int64(0))
}

func TestHandleMeshPacketIgnoresWrongType(t *testing.T) {
	sink := &fakeSink{}
	r := newTestReceiver(sink)

	err := r.handleMeshPacket(&meshtastic.NodeInfo{Num: 7})
	require.NoError(t, err)
	require.Empty(t, sink.enqueued)
}

func TestHandleNodeInfoAdapterSwallowsMissingNum(t *testing.T) {
	r := newTestReceiver(&fakeSink{})
	err := r.handleNodeInfoAdapter(&meshtastic.NodeInfo{})
	require.NoError(t, err)
}
