// Package meshmeta captures the channel-name table and LoRa radio metadata
// reported by a connected Meshtastic node, once per session.
package meshmeta

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// ChannelRole mirrors the two roles the device config reports for a channel
// slot; SECONDARY channels keep their reported index, PRIMARY is forced to 0.
type ChannelRole int

const (
	ChannelRoleSecondary ChannelRole = iota
	ChannelRolePrimary
)

// Table is the write-once channel-index-to-name map captured from the
// connected device. The first capture per session wins; later attempts are
// no-ops, matching the "write-once per session" invariant.
type Table struct {
	mu       sync.RWMutex
	captured bool
	names    map[int]string

	// envChannel is the $CHANNEL fallback name for the primary slot.
	envChannel string
}

// NewTable constructs an empty channel table, seeded with the $CHANNEL
// environment fallback used when the primary channel carries no name.
func NewTable(envChannel string) *Table {
	return &Table{names: make(map[int]string), envChannel: envChannel}
}

// Capture records one channel entry. role PRIMARY always lands at index 0;
// name falls back to modemPreset, then the $CHANNEL env var, then is
// skipped entirely (the slot is left unnamed). SECONDARY uses reportedIndex
// verbatim. Only the first capture of a given connection session persists;
// subsequent calls observe Captured()==true and should not call Capture
// again, but Capture itself is idempotent as a safety net.
func (t *Table) Capture(role ChannelRole, reportedIndex int, name string, modemPreset string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	index := reportedIndex
	if role == ChannelRolePrimary {
		index = 0
	}
	if _, exists := t.names[index]; exists {
		return
	}

	if role == ChannelRolePrimary && name == "" {
		switch {
		case modemPreset != "":
			name = modemPreset
		case t.envChannel != "":
			name = t.envChannel
		default:
			return
		}
	}
	if name == "" {
		return
	}
	t.names[index] = name
	t.captured = true
}

// Captured reports whether at least one channel has been recorded this
// session.
func (t *Table) Captured() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.captured
}

// Name returns the channel name at index, if known.
func (t *Table) Name(index int) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	name, ok := t.names[index]
	return name, ok
}

var hiddenChannelNames = map[string]struct{}{
	"admin": {},
}

// IsHiddenChannel reports whether name is on the hidden-channel policy list.
// Per the design notes this predicate exists for consumers to opt into; the
// core normalisation pipeline never calls it.
func IsHiddenChannel(name string) bool {
	_, hidden := hiddenChannelNames[strings.ToLower(name)]
	return hidden
}

// IsAllowedChannel is the complement of IsHiddenChannel, kept symmetric with
// the original helper pair.
func IsAllowedChannel(name string) bool {
	return !IsHiddenChannel(name)
}

// RadioMetadata is the write-once LoRa frequency/preset pair captured from
// the connected node's LoRa config.
type RadioMetadata struct {
	mu        sync.RWMutex
	captured  bool
	frequency any // int (MHz) or string (region label), or nil
	preset    string
}

// NewRadioMetadata returns an empty, uncaptured metadata holder.
func NewRadioMetadata() *RadioMetadata {
	return &RadioMetadata{}
}

// Capture records the LoRa frequency and modem preset. overrideFrequencyMHz,
// when > 0, wins outright (floored to an integer MHz value). Otherwise
// regionLabel is parsed for a numeric frequency (e.g. "REGION_915" -> 915),
// falling back to the raw label when no digits are present. presetRaw is
// converted from SCREAMING_SNAKE_CASE to CamelCase. First capture wins.
func (r *RadioMetadata) Capture(overrideFrequencyMHz float64, regionLabel string, presetRaw string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.captured {
		return
	}

	if overrideFrequencyMHz > 0 {
		r.frequency = int(math.Floor(overrideFrequencyMHz))
	} else if freq, ok := RegionFrequency(regionLabel); ok {
		r.frequency = freq
	} else if regionLabel != "" {
		r.frequency = regionLabel
	}

	r.preset = ModemPresetCamelCase(presetRaw)
	r.captured = true
}

// Captured reports whether radio metadata has been recorded this session.
func (r *RadioMetadata) Captured() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.captured
}

// Frequency returns the captured LoRa frequency (int MHz, string region
// label, or nil when nothing has been captured).
func (r *RadioMetadata) Frequency() any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frequency
}

// Preset returns the captured CamelCase modem preset name.
func (r *RadioMetadata) Preset() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.preset
}

var regionDigits = regexp.MustCompile(`\d+`)

// RegionFrequency extracts a bare integer MHz value from a region enum
// label such as "REGION_915" or "REGION_EU_868".
func RegionFrequency(label string) (int, bool) {
	m := regionDigits.FindString(label)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

var wordBoundary = regexp.MustCompile(`[^0-9A-Za-z]+`)

// ModemPresetCamelCase converts a SCREAMING_SNAKE_CASE modem preset name
// (e.g. "LONG_FAST") into the CamelCase label the dashboard API expects
// ("LongFast"). Unlike the legacy lora.py helper this never adds a "#"
// prefix, matching the field as documented for /api/nodes and friends.
func ModemPresetCamelCase(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	words := wordBoundary.Split(raw, -1)
	var b strings.Builder
	for _, w := range words {
		if w == "" {
			continue
		}
		w = strings.ToLower(w)
		b.WriteString(strings.ToUpper(w[:1]))
		b.WriteString(w[1:])
	}
	if b.Len() == 0 {
		log.Debug("modem preset produced empty camel case", "raw", raw)
	}
	return b.String()
}
