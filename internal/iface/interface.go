package iface

import (
	"context"
	"fmt"
	"net"
	"time"

	"buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"github.com/charmbracelet/log"
	"tinygo.org/x/bluetooth"

	"github.com/rabarar/potatomesh-ingestd/public/transport"
	"github.com/rabarar/potatomesh-ingestd/public/transport/serial"
)

// Interface is what the supervisor needs from a connected radio: a client
// to subscribe handlers on, its reported identity, and a bounded close.
type Interface interface {
	Connect(ctx context.Context) error
	Client() *transport.Client
	Close(timeout time.Duration) error
	IsConnected() bool
}

// Open resolves target into a concrete Interface. Serial and TCP are real
// transports; BLE requires the tinygo.org/x/bluetooth central-role scan;
// mock returns an in-memory stub, used for tests and the "disabled"
// operator configuration, that reports connected between Connect and Close.
func Open(ctx context.Context, target Target) (Interface, error) {
	switch target.Kind {
	case KindMock:
		return newMockInterface(), nil
	case KindSerial:
		return newSerialInterface(target.SerialPath)
	case KindTCP:
		return newTCPInterface(ctx, target.TCPHost, target.TCPPort)
	case KindBLE:
		return newBLEInterface(ctx, target.BLEAddress)
	default:
		return nil, fmt.Errorf("unknown target kind %v", target.Kind)
	}
}

// baseInterface shares the client-wiring/close-timeout logic across the
// serial, TCP, and BLE transports, which differ only in how the underlying
// io.ReadWriter is obtained.
type baseInterface struct {
	client    *transport.Client
	sc        *transport.StreamConn
	connected bool
}

func (b *baseInterface) Connect(ctx context.Context) error {
	if err := b.client.Connect(ctx); err != nil {
		return fmt.Errorf("connecting client: %w", err)
	}
	b.connected = true
	return nil
}

func (b *baseInterface) Client() *transport.Client { return b.client }
func (b *baseInterface) IsConnected() bool          { return b.connected }

func (b *baseInterface) Close(timeout time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- b.sc.Close() }()
	select {
	case err := <-done:
		b.connected = false
		return err
	case <-time.After(timeout):
		log.Warn("interface close exceeded grace period, proceeding anyway", "timeout", timeout)
		return nil
	}
}

func newSerialInterface(path string) (Interface, error) {
	port, err := serial.Connect(path)
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", path, err)
	}
	sc, err := transport.NewClientStreamConn(port)
	if err != nil {
		return nil, fmt.Errorf("framing serial connection: %w", err)
	}
	return &baseInterface{client: transport.NewClient(sc, false), sc: sc}, nil
}

func newTCPInterface(ctx context.Context, host string, port int) (Interface, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		return nil, fmt.Errorf("dialing %s:%d: %w", host, port, err)
	}
	sc, err := transport.NewClientStreamConn(conn)
	if err != nil {
		return nil, fmt.Errorf("framing TCP connection: %w", err)
	}
	return &baseInterface{client: transport.NewClient(sc, false), sc: sc}, nil
}

// meshtasticServiceUUID and its characteristics are the published
// Meshtastic BLE GATT profile identifiers.
var (
	meshtasticServiceUUID, _  = bluetooth.ParseUUID("6ba1b218-15a8-461f-9fa8-5dcae273eafd")
	fromRadioCharUUID, _      = bluetooth.ParseUUID("2c55e69e-4993-11ed-b878-0242ac120002")
	toRadioCharUUID, _        = bluetooth.ParseUUID("f75c76d2-129e-4dad-a1dd-7866124401e7")
	fromNumCharUUID, _        = bluetooth.ParseUUID("ed9da18c-a800-4f66-a670-aa7547e34453")
)

func newBLEInterface(ctx context.Context, address string) (Interface, error) {
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("enabling BLE adapter: %w", err)
	}

	result := make(chan bluetooth.ScanResult, 1)
	scanErr := make(chan error, 1)
	go func() {
		scanErr <- adapter.Scan(func(a *bluetooth.Adapter, r bluetooth.ScanResult) {
			if r.Address.String() == address {
				_ = a.StopScan()
				result <- r
			}
		})
	}()

	var found bluetooth.ScanResult
	select {
	case found = <-result:
	case err := <-scanErr:
		return nil, fmt.Errorf("scanning for %s: %w", address, err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	device, err := adapter.Connect(found.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("connecting to BLE device %s: %w", address, err)
	}
	services, err := device.DiscoverServices([]bluetooth.UUID{meshtasticServiceUUID})
	if err != nil || len(services) == 0 {
		return nil, fmt.Errorf("discovering meshtastic GATT service on %s: %w", address, err)
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{fromRadioCharUUID, toRadioCharUUID, fromNumCharUUID})
	if err != nil {
		return nil, fmt.Errorf("discovering meshtastic GATT characteristics on %s: %w", address, err)
	}

	pipe := newBLECharacteristicPipe(chars)
	sc := transport.NewRadioStreamConn(pipe)
	return &baseInterface{client: transport.NewClient(sc, false), sc: sc}, nil
}

func newMockInterface() Interface {
	return &mockInterface{nodes: map[string]*meshtastic.NodeInfo{}}
}

// mockInterface is the "empty node map, no-op close" in-memory stub used
// when the target is empty/mock/none/null/disabled.
type mockInterface struct {
	nodes     map[string]*meshtastic.NodeInfo
	connected bool
}

func (m *mockInterface) Connect(ctx context.Context) error {
	m.connected = true
	return nil
}
func (m *mockInterface) Client() *transport.Client { return nil }
func (m *mockInterface) IsConnected() bool          { return m.connected }
func (m *mockInterface) Close(time.Duration) error  { m.connected = false; return nil }
