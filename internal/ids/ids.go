// Package ids implements value coercion and Meshtastic node identifier
// canonicalisation shared by every packet normaliser.
package ids

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CoerceInt converts v into an int64, accepting the same loose shapes the
// upstream driver hands us: ints, bools, finite floats, byte slices decoded
// as UTF-8, and strings (base-10, or 0x-prefixed hex).
func CoerceInt(v any) (int64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint32:
		return int64(t), true
	case uint64:
		return int64(t), true
	case float32:
		return coerceFloatToInt(float64(t))
	case float64:
		return coerceFloatToInt(t)
	case []byte:
		return CoerceInt(string(t))
	case string:
		return coerceIntString(t)
	default:
		return 0, false
	}
}

func coerceFloatToInt(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}

func coerceIntString(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	base := 10
	body := s
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "0x") {
		base = 16
		body = s[2:]
	}
	if n, err := strconv.ParseInt(body, base, 64); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return coerceFloatToInt(f)
	}
	return 0, false
}

// CoerceFloat converts v into a finite float64, rejecting NaN/±Inf.
func CoerceFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		f := float64(t)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return t, true
	case []byte:
		return CoerceFloat(string(t))
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func isAllDecimalDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// CanonicalNodeID reduces v to the canonical "!xxxxxxxx" form (eight
// lowercase hex digits), or passes a "^"-prefixed group alias through
// unchanged. Returns ok=false when no identifier can be derived.
func CanonicalNodeID(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case []byte:
		return CanonicalNodeID(string(t))
	case int, int32, int64, uint32, uint64:
		n, _ := CoerceInt(t)
		if n < 0 {
			return "", false
		}
		return fmt.Sprintf("!%08x", uint32(n)), true
	case float32, float64:
		n, ok := CoerceInt(t)
		if !ok || n < 0 {
			return "", false
		}
		return fmt.Sprintf("!%08x", uint32(n)), true
	case string:
		return canonicalFromString(t)
	default:
		return "", false
	}
}

func canonicalFromString(original string) (string, bool) {
	s := strings.TrimSpace(original)
	if s == "" {
		return "", false
	}
	if strings.HasPrefix(s, "^") {
		return s, true
	}

	stripped := s
	allDecimal := isAllDecimalDigits(stripped)

	body := stripped
	if strings.HasPrefix(body, "!") {
		body = body[1:]
	} else if strings.HasPrefix(body, "0x") || strings.HasPrefix(body, "0X") {
		body = body[2:]
	}
	if body == "" {
		return "", false
	}

	var n uint64
	var err error
	if allDecimal {
		n, err = strconv.ParseUint(stripped, 10, 64)
	} else {
		n, err = strconv.ParseUint(body, 16, 64)
	}
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("!%08x", uint32(n)), true
}

// NodeNumFromID returns the unmasked integer node number behind v, using
// the same accepted input shapes as CanonicalNodeID.
func NodeNumFromID(v any) (int64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case []byte:
		return NodeNumFromID(string(t))
	case string:
		s := strings.TrimSpace(t)
		if s == "" || strings.HasPrefix(s, "^") {
			return 0, false
		}
		allDecimal := isAllDecimalDigits(s)
		body := s
		if strings.HasPrefix(body, "!") {
			body = body[1:]
		} else if strings.HasPrefix(body, "0x") || strings.HasPrefix(body, "0X") {
			body = body[2:]
		}
		if body == "" {
			return 0, false
		}
		if allDecimal {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return 0, false
			}
			return n, true
		}
		n, err := strconv.ParseUint(body, 16, 64)
		if err != nil {
			return 0, false
		}
		return int64(n), true
	default:
		return CoerceInt(v)
	}
}

// HexDecodeOrEmpty hex-decodes s into raw bytes (case-insensitive, with an
// optional "0x" prefix), returning ok=false when s is not valid hex.
func HexDecodeOrEmpty(s string) ([]byte, bool) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(s), "0x"))
	if err != nil {
		return nil, false
	}
	return b, true
}
