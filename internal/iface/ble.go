package iface

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
	"tinygo.org/x/bluetooth"
)

// blePipe adapts the Meshtastic BLE GATT characteristic triple (ToRadio,
// FromRadio, FromNum) into the io.ReadWriter StreamConn expects, so the
// rest of the pipeline stays transport-agnostic. Writes go to ToRadio;
// reads drain an internal buffer fed by FromRadio notifications.
//
// The original driver patches around a third-party BLE library bug where a
// mid-read disconnect raises an unhandled exception in its receive loop;
// here the read loop is owned from the start. Read returns io.EOF once the
// pipe has been closed via Close, and io.ErrNoProgress when no notification
// arrives within 30 seconds; a device-side disconnect is not detected
// separately.
type blePipe struct {
	toRadio   bluetooth.DeviceCharacteristic
	fromRadio bluetooth.DeviceCharacteristic

	incoming chan []byte
	pending  []byte
	closed   chan struct{}
}

func newBLECharacteristicPipe(chars []bluetooth.DeviceCharacteristic) *blePipe {
	p := &blePipe{incoming: make(chan []byte, 16), closed: make(chan struct{})}
	for _, c := range chars {
		switch c.UUID() {
		case toRadioCharUUID:
			p.toRadio = c
		case fromRadioCharUUID:
			p.fromRadio = c
		}
	}

	if err := p.fromRadio.EnableNotifications(func(buf []byte) {
		cp := append([]byte(nil), buf...)
		select {
		case p.incoming <- cp:
		case <-p.closed:
		}
	}); err != nil {
		log.Error("enabling BLE notifications failed", "err", err)
	}
	return p
}

func (p *blePipe) Write(b []byte) (int, error) {
	const mtuChunk = 180
	total := len(b)
	for len(b) > 0 {
		n := len(b)
		if n > mtuChunk {
			n = mtuChunk
		}
		if _, err := p.toRadio.WriteWithoutResponse(b[:n]); err != nil {
			return 0, err
		}
		b = b[n:]
	}
	return total, nil
}

func (p *blePipe) Read(b []byte) (int, error) {
	for len(p.pending) == 0 {
		select {
		case chunk, ok := <-p.incoming:
			if !ok {
				return 0, io.EOF
			}
			p.pending = chunk
		case <-p.closed:
			return 0, io.EOF
		case <-time.After(30 * time.Second):
			return 0, io.ErrNoProgress
		}
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *blePipe) Close() error {
	select {
	case <-p.closed:
	default:
		close(p.closed)
	}
	return nil
}
