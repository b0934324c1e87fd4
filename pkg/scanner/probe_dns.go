package scanner

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/velemoonkon/sonar/pkg/dns"
)

// DefaultLookupTimeout caps a single subdomain lookup
const DefaultLookupTimeout = 10 * time.Second

// DNSProbe implements Prober[string]: the target is a candidate hostname
type DNSProbe struct {
	Resolver dns.Resolver
	Timeout  time.Duration // hard ceiling per lookup
}

// NewDNSProbe creates a DNS probe; a nil resolver means the system resolver
func NewDNSProbe(resolver dns.Resolver, timeout time.Duration) *DNSProbe {
	if resolver == nil {
		resolver = dns.NewSystemResolver()
	}
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	return &DNSProbe{Resolver: resolver, Timeout: timeout}
}

// Family returns the probe family
func (p *DNSProbe) Family() Family {
	return FamilyDNS
}

// Probe resolves hostname to IPv4. Any failure is reported as not_found.
func (p *DNSProbe) Probe(ctx context.Context, hostname string) Outcome {
	start := time.Now()
	outcome := Outcome{Subdomain: hostname, State: StateNotFound}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	lookupCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ips, err := p.lookup(lookupCtx, hostname)
	outcome.Duration = time.Since(start)
	if err != nil {
		slog.Debug("lookup failed", "host", hostname, "resolver", p.Resolver.Name(), "error", err)
		return outcome
	}
	if len(ips) == 0 {
		return outcome
	}

	outcome.State = StateFound
	outcome.IP = ips[0].String()
	return outcome
}

type lookupResult struct {
	ips []net.IP
	err error
}

// lookup returns when the resolver answers or ctx expires, whichever is first,
// even if the resolver itself ignores ctx
func (p *DNSProbe) lookup(ctx context.Context, hostname string) ([]net.IP, error) {
	ch := make(chan lookupResult, 1)
	go func() {
		ips, err := p.Resolver.LookupIPv4(ctx, hostname)
		ch <- lookupResult{ips: ips, err: err}
	}()

	select {
	case r := <-ch:
		return r.ips, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
