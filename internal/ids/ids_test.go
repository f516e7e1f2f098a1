package ids

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalNodeID(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
		ok   bool
	}{
		{"uint32", uint32(0x1234abcd), "!1234abcd", true},
		{"decimal string", "305441741", "!1234abcd", true},
		{"bang hex", "!1234abcd", "!1234abcd", true},
		{"0x hex", "0x1234ABCD", "!1234abcd", true},
		{"group alias", "^all", "^all", true},
		{"empty", "", "", false},
		{"nil", nil, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := CanonicalNodeID(tc.in)
			require.Equal(t, tc.ok, ok)
			if tc.ok {
				require.Equal(t, tc.want, got)
			}
		})
	}
}

func TestCanonicalNodeIDMatchesFormat(t *testing.T) {
	for _, n := range []uint32{0, 1, 0xffffffff, 0x00abcdef} {
		got, ok := CanonicalNodeID(n)
		require.True(t, ok)
		require.Len(t, got, 9)
		require.Equal(t, byte('!'), got[0])
	}
}

func TestCoerceInt(t *testing.T) {
	cases := []struct {
		in   any
		want int64
		ok   bool
	}{
		{true, 1, true},
		{false, 0, true},
		{3.9, 3, true},
		{"0x1A", 26, true},
		{"42", 42, true},
		{"  7 ", 7, true},
		{[]byte("9"), 9, true},
		{"not-a-number", 0, false},
	}
	for _, tc := range cases {
		got, ok := CoerceInt(tc.in)
		require.Equal(t, tc.ok, ok, "input %#v", tc.in)
		if tc.ok {
			require.Equal(t, tc.want, got, "input %#v", tc.in)
		}
	}
}

func TestCoerceFloatRejectsNonFinite(t *testing.T) {
	_, ok := CoerceFloat("NaN")
	require.False(t, ok)
	_, ok = CoerceFloat("Infinity")
	require.False(t, ok)
	f, ok := CoerceFloat("52.5598720")
	require.True(t, ok)
	require.InDelta(t, 52.5598720, f, 1e-9)
}

func TestFirstPrefersNonEmpty(t *testing.T) {
	obj := map[string]any{
		"raw": map[string]any{
			"latitude_i": "",
		},
		"latitudeI": 525598720,
	}
	v, ok := First(obj, "raw.latitude_i", "latitudeI")
	require.True(t, ok)
	require.Equal(t, 525598720, v)
}

func TestISORoundTrips(t *testing.T) {
	require.Equal(t, "2023-11-14T22:13:20Z", ISO(1_700_000_000))
}

func TestMergeMapsPrefersSrc(t *testing.T) {
	dst := map[string]any{"a": 1, "nested": map[string]any{"x": 1, "y": 2}}
	src := map[string]any{"a": 2, "nested": map[string]any{"y": 3, "z": 4}}
	merged := MergeMaps(dst, src)
	require.Equal(t, 2, merged["a"])
	nested := merged["nested"].(map[string]any)
	require.Equal(t, 1, nested["x"])
	require.Equal(t, 3, nested["y"])
	require.Equal(t, 4, nested["z"])
}
