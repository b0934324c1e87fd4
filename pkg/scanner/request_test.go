package scanner

import (
	"errors"
	"runtime"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velemoonkon/sonar/pkg/target"
)

func TestNewPortSpec_Defaults(t *testing.T) {
	spec, err := NewPortSpec(Request{Target: " scanme.example.org "}, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, "scanme.example.org", spec.Host)
	assert.Equal(t, "1-1000", spec.PortRange)
	assert.Equal(t, 1000, spec.Count)
	assert.Len(t, slices.Collect(spec.Ports), 1000)
	assert.Equal(t, time.Second, spec.Timeout)
	assert.Equal(t, DefaultBatchSize, spec.BatchSize)
}

func TestNewPortSpec_Fields(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name        string
		req         Request
		wantPorts   []int
		wantTimeout time.Duration
		wantBatch   int
	}{
		{
			name:        "Explicit range and timeout",
			req:         Request{Target: "10.0.0.1", PortRange: "80,443,8000-8002", Timeout: 250, Concurrency: 10},
			wantPorts:   []int{80, 443, 8000, 8001, 8002},
			wantTimeout: 250 * time.Millisecond,
			wantBatch:   10,
		},
		{
			name:        "timeoutMs alias wins",
			req:         Request{Target: "10.0.0.1", PortRange: "22", Timeout: 250, TimeoutMs: 1500},
			wantPorts:   []int{22},
			wantTimeout: 1500 * time.Millisecond,
			wantBatch:   50,
		},
		{
			name:        "Concurrency clamped",
			req:         Request{Target: "::1", PortRange: "22", Concurrency: 10000},
			wantPorts:   []int{22},
			wantTimeout: time.Second,
			wantBatch:   500,
		},
		{
			name:        "Negative concurrency falls back",
			req:         Request{Target: "localhost", PortRange: "22", Concurrency: -3, ScanType: "tcp"},
			wantPorts:   []int{22},
			wantTimeout: time.Second,
			wantBatch:   50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := NewPortSpec(tt.req, cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPorts, slices.Collect(spec.Ports))
			assert.Equal(t, len(tt.wantPorts), spec.Count)
			assert.Equal(t, tt.wantTimeout, spec.Timeout)
			assert.Equal(t, tt.wantBatch, spec.BatchSize)
		})
	}
}

func TestNewPortSpec_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		req       Request
		wantField string
	}{
		{"Empty target", Request{}, "target"},
		{"Blank target", Request{Target: "   "}, "target"},
		{"URL target", Request{Target: "http://example.com"}, "target"},
		{"Inverted range", Request{Target: "example.com", PortRange: "100-1"}, "portRange"},
		{"Non-numeric range", Request{Target: "example.com", PortRange: "http"}, "portRange"},
		{"Unsupported scan type", Request{Target: "example.com", ScanType: "udp"}, "scanType"},
		{"Negative timeout", Request{Target: "example.com", Timeout: -1}, "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPortSpec(tt.req, DefaultConfig())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidSpec)

			var specErr *SpecError
			require.True(t, errors.As(err, &specErr))
			assert.Equal(t, tt.wantField, specErr.Field)
		})
	}
}

func TestNewPortSpec_TooManyPorts(t *testing.T) {
	// Fits the 4096 character limit but would expand to 33M ports
	huge := strings.TrimSuffix(strings.Repeat("1-65535,", 511), ",")
	require.LessOrEqual(t, len(huge), 4096)

	_, err := NewPortSpec(Request{Target: "127.0.0.1", PortRange: huge}, DefaultConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSpec)
	assert.ErrorIs(t, err, target.ErrInvalidRange)

	var specErr *SpecError
	require.True(t, errors.As(err, &specErr))
	assert.Equal(t, "portRange", specErr.Field)
}

func TestNewPortSpec_FullRangeStaysLazy(t *testing.T) {
	// Warm up the shared validator so it is not counted below
	_, err := NewPortSpec(Request{Target: "127.0.0.1", PortRange: "22"}, DefaultConfig())
	require.NoError(t, err)

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)

	spec, err := NewPortSpec(Request{Target: "127.0.0.1", PortRange: "1-65535"}, DefaultConfig())
	require.NoError(t, err)

	runtime.ReadMemStats(&after)
	assert.Equal(t, 65535, spec.Count)
	// An expanded []int would be 512 KiB
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(128<<10))

	first := make([]int, 0, 3)
	for p := range spec.Ports {
		first = append(first, p)
		if len(first) == 3 {
			break
		}
	}
	assert.Equal(t, []int{1, 2, 3}, first)
}

func TestNewPortSpec_RangeErrorUnwraps(t *testing.T) {
	_, err := NewPortSpec(Request{Target: "example.com", PortRange: "0-10"}, DefaultConfig())
	assert.ErrorIs(t, err, target.ErrInvalidRange)
	assert.ErrorIs(t, err, ErrInvalidSpec)
}

func TestNewDNSSpec(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DNSBatchSize = 100

	spec, err := NewDNSSpec(Request{Target: "Example.COM.", Wordlist: "medium"}, cfg)
	require.NoError(t, err)
	assert.Equal(t, "example.com", spec.Domain)
	assert.Equal(t, target.TierMedium, spec.Tier)
	assert.Equal(t, 3800, spec.Total())
	assert.Equal(t, 100, spec.BatchSize)

	// Unknown tier falls back to small
	spec, err = NewDNSSpec(Request{Target: "example.com", Wordlist: "gigantic"}, cfg)
	require.NoError(t, err)
	assert.Equal(t, target.TierSmall, spec.Tier)
	assert.Equal(t, 35, spec.Total())

	custom := spec.WithLabels([]string{"a", "b"})
	assert.Equal(t, 2, custom.Total())
	assert.Equal(t, 35, spec.Total(), "WithLabels must not modify the receiver")
}

func TestNewDNSSpec_Invalid(t *testing.T) {
	for _, domain := range []string{"", "  ", "bad domain.com", "under_score..com"} {
		t.Run(domain, func(t *testing.T) {
			_, err := NewDNSSpec(Request{Target: domain}, DefaultConfig())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidSpec)
		})
	}
}

func TestSpecErrorMessage(t *testing.T) {
	_, err := NewPortSpec(Request{}, DefaultConfig())
	require.Error(t, err)
	assert.Equal(t, "invalid target: is required", err.Error())

	_, err = NewPortSpec(Request{Target: "example.com", PortRange: "5-1"}, DefaultConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid portRange "5-1"`)
}

func TestBatchSize(t *testing.T) {
	assert.Equal(t, 50, batchSize(0, 50, 500))
	assert.Equal(t, 7, batchSize(7, 50, 500))
	assert.Equal(t, 500, batchSize(501, 50, 500))
	assert.Equal(t, 10000, batchSize(10000, 50, 0))
	assert.Equal(t, DefaultBatchSize, batchSize(0, 0, 0))
}
