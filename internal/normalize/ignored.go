package normalize

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// IgnoredLog is the append-only, line-delimited JSON debug log recording
// dropped packets, gated on debug mode. Writes are serialised by a
// dedicated mutex distinct from any queue or channel-table lock.
type IgnoredLog struct {
	mu      sync.Mutex
	path    string
	enabled bool
	file    *os.File
}

// NewIgnoredLog opens (creating if needed) path for appending when enabled
// is true; when false, Record is a no-op and no file is touched.
func NewIgnoredLog(path string, enabled bool) (*IgnoredLog, error) {
	l := &IgnoredLog{path: path, enabled: enabled}
	if !enabled {
		return l, nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening ignored-packet log %s: %w", path, err)
	}
	l.file = f
	return l, nil
}

// Record appends one JSON line {timestamp, reason, packet} when enabled.
func (l *IgnoredLog) Record(reason DropReason, packet map[string]any) {
	if !l.enabled || reason == DropNone {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	line, err := json.Marshal(map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"reason":    string(reason),
		"packet":    packet,
	})
	if err != nil {
		return
	}
	line = append(line, '\n')
	_, _ = l.file.Write(line)
}

// Close releases the underlying file handle, if one was opened.
func (l *IgnoredLog) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
