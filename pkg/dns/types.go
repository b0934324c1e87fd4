package dns

import (
	"context"
	"errors"
	"net"
	"time"
)

// Resolver looks up the IPv4 addresses of a hostname
type Resolver interface {
	// Name returns the resolver identifier ("system" or the nameserver address)
	Name() string

	// LookupIPv4 returns at least one address or an error
	LookupIPv4(ctx context.Context, host string) ([]net.IP, error)
}

// Lookup failures reported by ServerResolver
var (
	ErrNXDomain = errors.New("no such host")
	ErrNoAnswer = errors.New("no A records in answer")
)

// QueryOptions contains options for DNS queries
type QueryOptions struct {
	Timeout          time.Duration
	RecursionDesired bool
	UseEDNS          bool
	EDNSBufferSize   uint16
}

// DefaultQueryOptions returns default query options
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{
		Timeout:          3 * time.Second,
		RecursionDesired: true,
		UseEDNS:          true,
		EDNSBufferSize:   4096,
	}
}
