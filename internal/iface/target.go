// Package iface implements the interface factory: parsing a user-supplied
// target string into a concrete radio transport (serial, TCP, BLE, or an
// in-memory mock), with glob-based auto-discovery when no target is given.
package iface

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.bug.st/serial"
)

// Kind identifies which concrete transport a Target resolves to.
type Kind int

const (
	KindMock Kind = iota
	KindBLE
	KindTCP
	KindSerial
)

// Target is the immutable, per-connection-attempt descriptor produced by
// parsing a single user-supplied string.
type Target struct {
	Kind Kind
	// Serial device path, for KindSerial.
	SerialPath string
	// BLE MAC address, uppercased, for KindBLE.
	BLEAddress string
	// TCP host/port, for KindTCP.
	TCPHost string
	TCPPort int
}

const defaultTCPPort = 4403

var bleAddressPattern = regexp.MustCompile(`^(?i)([0-9a-f]{2}:){5}[0-9a-f]{2}$`)

var mockAliases = map[string]struct{}{
	"mock":     {},
	"none":     {},
	"null":     {},
	"disabled": {},
}

// ParseTarget implements the §4.5 dispatch order: mock aliases, BLE MAC,
// numeric IPv4/IPv6 literal (optionally scheme:// and :port qualified), then
// serial device path as the final fallback. An empty string is treated as
// "mock" here (useful for tests/library callers); the daemon entrypoint
// intercepts a truly unset CONNECTION/MESH_SERIAL before calling ParseTarget
// and runs AutoDiscoverCandidates instead, per the distinct "autodiscover"
// default in the configuration table.
func ParseTarget(raw string) (Target, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Target{Kind: KindMock}, nil
	}
	if _, ok := mockAliases[strings.ToLower(trimmed)]; ok {
		return Target{Kind: KindMock}, nil
	}

	if bleAddressPattern.MatchString(trimmed) {
		return Target{Kind: KindBLE, BLEAddress: strings.ToUpper(trimmed)}, nil
	}

	if host, port, ok := parseNumericTCP(trimmed); ok {
		return Target{Kind: KindTCP, TCPHost: host, TCPPort: port}, nil
	}

	return Target{Kind: KindSerial, SerialPath: trimmed}, nil
}

func parseNumericTCP(raw string) (host string, port int, ok bool) {
	candidate := raw
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" && u.Host != "" {
		candidate = u.Host
	}

	h, p, err := net.SplitHostPort(candidate)
	if err != nil {
		h = candidate
		p = ""
	}
	h = strings.Trim(h, "[]")

	if net.ParseIP(h) == nil {
		return "", 0, false
	}

	port = defaultTCPPort
	if p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return "", 0, false
		}
		port = n
	}
	return h, port, true
}

var autoDiscoverGlobs = []string{
	"/dev/ttyACM*",
	"/dev/ttyUSB*",
	"/dev/tty.usbmodem*",
	"/dev/tty.usbserial*",
	"/dev/cu.usbmodem*",
	"/dev/cu.usbserial*",
}

const fallbackSerialDevice = "/dev/ttyACM0"
const fallbackTCPURL = "http://127.0.0.1"

// candidatePorts lets tests substitute a fake serial.GetPortsList.
var candidatePorts = serial.GetPortsList

// AutoDiscoverCandidates returns the ordered, deduplicated list of serial
// device paths to try when no target was configured, always including the
// conventional /dev/ttyACM0 fallback, followed by a final TCP fallback to
// the loopback address for bridges that expose Meshtastic over local TCP.
func AutoDiscoverCandidates() ([]string, error) {
	seen := map[string]struct{}{}
	var candidates []string

	allPorts, err := candidatePorts()
	if err != nil {
		allPorts = nil
	}
	for _, glob := range autoDiscoverGlobs {
		for _, port := range allPorts {
			if matched, _ := filepath.Match(glob, port); matched {
				if _, dup := seen[port]; !dup {
					seen[port] = struct{}{}
					candidates = append(candidates, port)
				}
			}
		}
	}
	sort.Strings(candidates)

	if _, dup := seen[fallbackSerialDevice]; !dup {
		candidates = append(candidates, fallbackSerialDevice)
	}
	candidates = append(candidates, fallbackTCPURL)
	return candidates, nil
}

// AggregateDiscoveryError collects one failure per attempted candidate into
// a single error, surfaced only once every candidate has been exhausted.
type AggregateDiscoveryError struct {
	Failures map[string]error
}

func (e *AggregateDiscoveryError) Error() string {
	var b strings.Builder
	b.WriteString("no mesh interface available, tried:")
	for candidate, err := range e.Failures {
		fmt.Fprintf(&b, " %s(%v)", candidate, err)
	}
	return b.String()
}
