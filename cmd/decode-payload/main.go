// Command decode-payload is the auxiliary CLI described in section 6: it
// reads one JSON object {portnum, payload_b64} from stdin and writes one
// decoded JSON object to stdout, or {error} with a non-zero exit.
package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
)

type request struct {
	Portnum    int    `json:"portnum"`
	PayloadB64 string `json:"payload_b64"`
}

// supportedPortnums maps the auxiliary CLI's documented portnum set to the
// message type it decodes into and the label reported in the "type" field.
var supportedPortnums = map[int]struct {
	label string
	new   func() proto.Message
}{
	3:  {"POSITION", func() proto.Message { return &meshtastic.Position{} }},
	4:  {"NODEINFO", func() proto.Message { return &meshtastic.User{} }},
	5:  {"ROUTING", func() proto.Message { return &meshtastic.Routing{} }},
	67: {"TELEMETRY", func() proto.Message { return &meshtastic.Telemetry{} }},
	70: {"TRACEROUTE", func() proto.Message { return &meshtastic.RouteDiscovery{} }},
	71: {"NEIGHBORINFO", func() proto.Message { return &meshtastic.NeighborInfo{} }},
}

func main() {
	if err := run(os.Stdin, os.Stdout); err != nil {
		_ = json.NewEncoder(os.Stdout).Encode(map[string]string{"error": err.Error()})
		os.Exit(1)
	}
}

func run(in io.Reader, out io.Writer) error {
	raw, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}

	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if req.PayloadB64 == "" {
		return fmt.Errorf("missing payload_b64 field")
	}

	entry, ok := supportedPortnums[req.Portnum]
	if !ok {
		return fmt.Errorf("unknown portnum %d", req.Portnum)
	}

	payload, err := base64.StdEncoding.DecodeString(req.PayloadB64)
	if err != nil {
		return fmt.Errorf("invalid base64 payload: %w", err)
	}

	msg := entry.new()
	if err := proto.Unmarshal(payload, msg); err != nil {
		return fmt.Errorf("decoding %s payload: %w", entry.label, err)
	}

	jsonBytes, err := protojson.MarshalOptions{UseProtoNames: true}.Marshal(msg)
	if err != nil {
		return fmt.Errorf("rendering decoded payload: %w", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(jsonBytes, &decoded); err != nil {
		return fmt.Errorf("rendering decoded payload: %w", err)
	}

	return json.NewEncoder(out).Encode(map[string]any{
		"portnum": req.Portnum,
		"type":    entry.label,
		"payload": decoded,
	})
}
