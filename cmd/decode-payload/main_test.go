package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
)

func TestRunDecodesPosition(t *testing.T) {
	payload, err := proto.Marshal(&meshtastic.Position{LatitudeI: 525598720, LongitudeI: 136577024})
	require.NoError(t, err)

	in := strings.NewReader(`{"portnum":3,"payload_b64":"` + base64.StdEncoding.EncodeToString(payload) + `"}`)
	var out bytes.Buffer
	require.NoError(t, run(in, &out))

	var resp map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	require.Equal(t, "POSITION", resp["type"])
	require.Equal(t, float64(3), resp["portnum"])
}

func TestRunRejectsUnknownPortnum(t *testing.T) {
	in := strings.NewReader(`{"portnum":999,"payload_b64":"aGk="}`)
	var out bytes.Buffer
	err := run(in, &out)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown portnum")
}

func TestRunRejectsInvalidJSON(t *testing.T) {
	in := strings.NewReader(`not json`)
	var out bytes.Buffer
	err := run(in, &out)
	require.Error(t, err)
}

func TestRunRejectsBadBase64(t *testing.T) {
	in := strings.NewReader(`{"portnum":3,"payload_b64":"not-base64!!"}`)
	var out bytes.Buffer
	err := run(in, &out)
	require.Error(t, err)
}
