package target

import (
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePortRange(t *testing.T) {
	tests := []struct {
		name string
		spec string
		want []int
	}{
		{
			name: "Single port",
			spec: "22",
			want: []int{22},
		},
		{
			name: "List keeps token order",
			spec: "443,80,22",
			want: []int{443, 80, 22},
		},
		{
			name: "Range",
			spec: "1-3",
			want: []int{1, 2, 3},
		},
		{
			name: "Mixed",
			spec: "80,443,8000-8002",
			want: []int{80, 443, 8000, 8001, 8002},
		},
		{
			name: "Whitespace around tokens",
			spec: " 80 , 8000 - 8001 ",
			want: []int{80, 8000, 8001},
		},
		{
			name: "Single element range",
			spec: "65535-65535",
			want: []int{65535},
		},
		{
			name: "Duplicates kept",
			spec: "80,79-81",
			want: []int{80, 79, 80, 81},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePortRange(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePortRange_Invalid(t *testing.T) {
	cases := []string{
		"",          // empty
		"0",         // below range
		"65536",     // above range
		"10-1",      // inverted range
		"abc",       // not a number
		"22,",       // empty token
		"1-70000",   // range bound out of range
		"-5",        // missing start
		"5-",        // missing end
		"1-2-3",     // too many bounds
		"80,http",   // one bad token poisons the spec
		"+80",       // signed
		"80-+90",    // signed range end
		"0x50",      // hex
		"8 0",       // inner space
		"1-65535,1", // more than MaxPorts
	}

	for _, spec := range cases {
		t.Run(spec, func(t *testing.T) {
			_, err := ParsePortRange(spec)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRange)
		})
	}
}

func TestPorts_Limit(t *testing.T) {
	// Every port once, plus the same list again: the count is checked before expanding
	_, n, err := Ports("1-65535")
	require.NoError(t, err)
	assert.Equal(t, MaxPorts, n)

	huge := strings.TrimSuffix(strings.Repeat("1-65535,", 511), ",")
	_, _, err = Ports(huge)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRange)

	// Duplicates count towards the limit
	_, _, err = Ports(strings.TrimSuffix(strings.Repeat("22,", MaxPorts+1), ","))
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestParsePortRange_Deterministic(t *testing.T) {
	spec := "1-100,443,8080-8090"
	first, err := ParsePortRange(spec)
	require.NoError(t, err)

	for range 5 {
		again, err := ParsePortRange(spec)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestPorts_CountMatchesSequence(t *testing.T) {
	seq, n, err := Ports("1-1000")
	require.NoError(t, err)
	assert.Equal(t, 1000, n)

	ports := slices.Collect(seq)
	assert.Len(t, ports, n)
	assert.Equal(t, 1, ports[0])
	assert.Equal(t, 1000, ports[len(ports)-1])
	assert.True(t, slices.IsSorted(ports))
}

func TestPorts_EarlyBreak(t *testing.T) {
	seq, _, err := Ports("1-65535")
	require.NoError(t, err)

	var seen []int
	for p := range seq {
		seen = append(seen, p)
		if len(seen) == 3 {
			break
		}
	}
	assert.Equal(t, []int{1, 2, 3}, seen)
}
