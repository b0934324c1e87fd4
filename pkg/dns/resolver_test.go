package dns

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velemoonkon/sonar/pkg/dns/dnstest"
)

var testRecords = map[string][]string{
	"www.example.test":   {"192.0.2.10", "192.0.2.11"},
	"mail.example.test":  {"192.0.2.25"},
	"empty.example.test": {},
}

func testOptions() QueryOptions {
	opts := DefaultQueryOptions()
	opts.Timeout = 2 * time.Second
	return opts
}

func TestNewServerResolver_DefaultPort(t *testing.T) {
	tests := []struct {
		server string
		want   string
	}{
		{"8.8.8.8", "8.8.8.8:53"},
		{"8.8.8.8:5353", "8.8.8.8:5353"},
		{"2001:4860:4860::8888", "[2001:4860:4860::8888]:53"},
		{"[2001:4860:4860::8888]", "[2001:4860:4860::8888]:53"},
		{"ns1.example.test", "ns1.example.test:53"},
	}

	for _, tt := range tests {
		t.Run(tt.server, func(t *testing.T) {
			r := NewServerResolver(tt.server, DefaultQueryOptions())
			assert.Equal(t, tt.want, r.Name())
		})
	}
}

func TestServerResolver_LookupIPv4(t *testing.T) {
	srv := dnstest.NewServer(t, testRecords)
	r := NewServerResolver(srv.Addr, testOptions())
	ctx := context.Background()

	t.Run("Found", func(t *testing.T) {
		ips, err := r.LookupIPv4(ctx, "www.example.test")
		require.NoError(t, err)
		require.Len(t, ips, 2)
		assert.Equal(t, "192.0.2.10", ips[0].String())
		assert.Equal(t, "192.0.2.11", ips[1].String())
	})

	t.Run("Case insensitive", func(t *testing.T) {
		ips, err := r.LookupIPv4(ctx, "MAIL.example.test")
		require.NoError(t, err)
		assert.Equal(t, "192.0.2.25", ips[0].String())
	})

	t.Run("NXDOMAIN", func(t *testing.T) {
		_, err := r.LookupIPv4(ctx, "nope.example.test")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNXDomain)
	})

	t.Run("No answer", func(t *testing.T) {
		_, err := r.LookupIPv4(ctx, "empty.example.test")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNoAnswer)
	})

	t.Run("Server failure", func(t *testing.T) {
		_, err := r.LookupIPv4(ctx, "servfail.example.test")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNXDomain)
		assert.Contains(t, err.Error(), "SERVFAIL")
	})
}

func TestServerResolver_ContextCancelled(t *testing.T) {
	srv := dnstest.NewServer(t, testRecords)
	r := NewServerResolver(srv.Addr, testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.LookupIPv4(ctx, "www.example.test")
	assert.Error(t, err)
}

func TestSystemResolver_LookupIPv4(t *testing.T) {
	srv := dnstest.NewServer(t, testRecords)
	r := NewSystemResolverWith(srv.Resolver())
	assert.Equal(t, "system", r.Name())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ips, err := r.LookupIPv4(ctx, "www.example.test")
	require.NoError(t, err)
	require.NotEmpty(t, ips)
	assert.Equal(t, "192.0.2.10", ips[0].String())

	_, err = r.LookupIPv4(ctx, "nope.example.test")
	assert.Error(t, err)
}
