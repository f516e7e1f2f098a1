package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"google.golang.org/protobuf/proto"
)

// Start1 and Start2 are the two magic bytes Meshtastic's serial/TCP stream
// protocol prefixes every frame with, followed by a big-endian uint16
// length and the protobuf-encoded body.
const (
	Start1 byte = 0x94
	Start2 byte = 0xc3
)

// StreamConn frames protobuf messages over an underlying io.ReadWriter
// (a serial port, a TCP socket, or a BLE characteristic pipe), matching the
// wire format the Meshtastic firmware speaks on all three transports.
type StreamConn struct {
	rw     io.ReadWriter
	isClient bool

	writeMu sync.Mutex
	readMu  sync.Mutex
}

// NewClientStreamConn wraps rw as the client side of the stream (the side
// that initiates with a WantConfigId request).
func NewClientStreamConn(rw io.ReadWriter) (*StreamConn, error) {
	if rw == nil {
		return nil, fmt.Errorf("stream conn: nil read writer")
	}
	return &StreamConn{rw: rw, isClient: true}, nil
}

// NewRadioStreamConn wraps rw without the nil check NewClientStreamConn
// performs; the framing is the same on both sides. Tests use it to play the
// firmware's role, and the BLE interface uses it to wrap its GATT pipe.
func NewRadioStreamConn(rw io.ReadWriter) *StreamConn {
	return &StreamConn{rw: rw, isClient: false}
}

// Write frames and writes msg: [Start1, Start2, lenHi, lenLo, protobuf...].
func (s *StreamConn) Write(msg proto.Message) error {
	body, err := proto.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshalling stream frame: %w", err)
	}
	if len(body) > 0xffff {
		return fmt.Errorf("stream frame too large: %d bytes", len(body))
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := writeStreamHeader(s.rw, len(body)); err != nil {
		return fmt.Errorf("writing stream header: %w", err)
	}
	if _, err := s.rw.Write(body); err != nil {
		return fmt.Errorf("writing stream body: %w", err)
	}
	return nil
}

// writeStreamHeader writes the four-byte frame header for a body of the
// given length.
func writeStreamHeader(w io.Writer, length int) error {
	header := []byte{Start1, Start2, byte(length >> 8), byte(length & 0xff)}
	_, err := w.Write(header)
	return err
}

// Read blocks until a full frame has arrived and unmarshals its body into
// msg, resynchronising on the Start1/Start2 marker if the stream is noisy.
func (s *StreamConn) Read(msg proto.Message) error {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	if err := s.syncToHeader(); err != nil {
		return fmt.Errorf("syncing stream header: %w", err)
	}

	lenBuf := make([]byte, 2)
	if _, err := io.ReadFull(s.rw, lenBuf); err != nil {
		return fmt.Errorf("reading stream length: %w", err)
	}
	length := binary.BigEndian.Uint16(lenBuf)

	body := make([]byte, length)
	if _, err := io.ReadFull(s.rw, body); err != nil {
		return fmt.Errorf("reading stream body: %w", err)
	}
	if err := proto.Unmarshal(body, msg); err != nil {
		return fmt.Errorf("unmarshalling stream body: %w", err)
	}
	return nil
}

// syncToHeader consumes bytes from the stream until it observes Start1
// followed by Start2, discarding anything in between (debug log output on
// the serial console interleaves with the framed protocol).
func (s *StreamConn) syncToHeader() error {
	var b [1]byte
	for {
		if _, err := io.ReadFull(s.rw, b[:]); err != nil {
			return err
		}
		if b[0] != Start1 {
			continue
		}
		if _, err := io.ReadFull(s.rw, b[:]); err != nil {
			return err
		}
		if b[0] == Start2 {
			return nil
		}
	}
}

// Close closes the underlying connection if it implements io.Closer.
func (s *StreamConn) Close() error {
	if closer, ok := s.rw.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// MessageHandler receives one decoded protobuf message dispatched by a
// Client's read loop.
type MessageHandler func(msg proto.Message) error

// HandlerRegistry maps a proto.Message's concrete type to the handler(s)
// registered for it, mirroring the teacher's one-handler-per-kind client
// wiring but generalised to fan out to every registered handler for a type.
type HandlerRegistry struct {
	mu               sync.RWMutex
	handlers         map[string][]MessageHandler
	errorOnNoHandler bool
}

// NewHandlerRegistry constructs an empty registry. When errorOnNoHandler is
// true, HandleMessage returns an error for message types with no registered
// handler; otherwise such messages are silently dropped.
func NewHandlerRegistry(errorOnNoHandler bool) *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string][]MessageHandler), errorOnNoHandler: errorOnNoHandler}
}

// RegisterHandler registers handler for every message sharing kind's
// concrete type.
func (r *HandlerRegistry) RegisterHandler(kind proto.Message, handler MessageHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := messageTypeName(kind)
	r.handlers[name] = append(r.handlers[name], handler)
}

// HandleMessage dispatches msg to every handler registered for its type.
func (r *HandlerRegistry) HandleMessage(msg proto.Message) error {
	if msg == nil {
		return nil
	}
	name := messageTypeName(msg)
	r.mu.RLock()
	handlers := append([]MessageHandler(nil), r.handlers[name]...)
	r.mu.RUnlock()

	if len(handlers) == 0 {
		if r.errorOnNoHandler {
			return fmt.Errorf("no handler registered for %s", name)
		}
		return nil
	}
	for _, h := range handlers {
		if err := h(msg); err != nil {
			return err
		}
	}
	return nil
}

func messageTypeName(msg proto.Message) string {
	return string(msg.ProtoReflect().Descriptor().FullName())
}
