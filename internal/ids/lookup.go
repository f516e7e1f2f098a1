package ids

import (
	"reflect"
	"strings"
	"time"
)

// First walks dotted paths against obj (a map[string]any or a struct reached
// via reflection) and returns the value at the first path whose terminal
// value is neither absent nor the empty string.
func First(obj any, paths ...string) (any, bool) {
	for _, path := range paths {
		if v, ok := lookupPath(obj, path); ok {
			if s, isStr := v.(string); isStr && s == "" {
				continue
			}
			return v, true
		}
	}
	return nil, false
}

func lookupPath(obj any, path string) (any, bool) {
	cur := obj
	for _, segment := range strings.Split(path, ".") {
		next, ok := lookupSegment(cur, segment)
		if !ok {
			return nil, false
		}
		cur = next
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

func lookupSegment(obj any, key string) (any, bool) {
	if obj == nil {
		return nil, false
	}
	switch m := obj.(type) {
	case map[string]any:
		v, ok := m[key]
		if !ok || v == nil {
			return nil, false
		}
		return v, true
	}

	rv := reflect.ValueOf(obj)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}
	field := rv.FieldByNameFunc(func(name string) bool {
		return strings.EqualFold(name, key)
	})
	if !field.IsValid() {
		return nil, false
	}
	return field.Interface(), true
}

// MergeMaps recursively overlays src onto a copy of dst, preferring src's
// values at every leaf while preserving keys only dst has.
func MergeMaps(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		if existing, ok := out[k]; ok {
			existingMap, existingIsMap := existing.(map[string]any)
			incomingMap, incomingIsMap := v.(map[string]any)
			if existingIsMap && incomingIsMap {
				out[k] = MergeMaps(existingMap, incomingMap)
				continue
			}
		}
		out[k] = v
	}
	return out
}

// ISO renders t (unix seconds) as a UTC ISO-8601 string with a literal "Z"
// suffix, matching the dashboard API's expected timestamp format.
func ISO(unixSeconds int64) string {
	return time.Unix(unixSeconds, 0).UTC().Format("2006-01-02T15:04:05Z")
}

// ISOFloat renders a fractional-second timestamp, keeping millisecond
// precision when the input carries a sub-second component.
func ISOFloat(unixSeconds float64) string {
	sec := int64(unixSeconds)
	frac := unixSeconds - float64(sec)
	t := time.Unix(sec, int64(frac*1e9)).UTC()
	if frac == 0 {
		return t.Format("2006-01-02T15:04:05Z")
	}
	return t.Format("2006-01-02T15:04:05.000Z")
}
