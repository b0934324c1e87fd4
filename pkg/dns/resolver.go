package dns

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/miekg/dns"
)

// SystemResolver resolves through the platform resolver
// Timeouts and retries are whatever the system configuration says.
type SystemResolver struct {
	resolver *net.Resolver
}

// NewSystemResolver creates a resolver backed by net.DefaultResolver
func NewSystemResolver() *SystemResolver {
	return &SystemResolver{resolver: net.DefaultResolver}
}

// NewSystemResolverWith wraps a caller-configured net.Resolver
func NewSystemResolverWith(r *net.Resolver) *SystemResolver {
	if r == nil {
		r = net.DefaultResolver
	}
	return &SystemResolver{resolver: r}
}

// Name returns the resolver identifier
func (r *SystemResolver) Name() string {
	return "system"
}

// LookupIPv4 resolves host to its IPv4 addresses
func (r *SystemResolver) LookupIPv4(ctx context.Context, host string) ([]net.IP, error) {
	ips, err := r.resolver.LookupIP(ctx, "ip4", host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, ErrNoAnswer
	}
	return ips, nil
}

// ServerResolver sends A queries straight to one nameserver
// Truncated UDP answers are retried over TCP.
type ServerResolver struct {
	server string
	opts   QueryOptions
}

// NewServerResolver creates a resolver for the given nameserver ("host" or "host:port")
func NewServerResolver(server string, opts QueryOptions) *ServerResolver {
	// Ensure server has port
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(strings.Trim(server, "[]"), "53")
	}
	return &ServerResolver{server: server, opts: opts}
}

// Name returns the nameserver address
func (r *ServerResolver) Name() string {
	return r.server
}

// LookupIPv4 resolves host to its IPv4 addresses
func (r *ServerResolver) LookupIPv4(ctx context.Context, host string) ([]net.IP, error) {
	resp, err := r.query(ctx, "udp", host)
	if err == nil && resp.Truncated {
		resp, err = r.query(ctx, "tcp", host)
	}
	if err != nil {
		return nil, err
	}

	switch resp.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, fmt.Errorf("%s: %w", host, ErrNXDomain)
	default:
		return nil, fmt.Errorf("%s: server returned %s", host, dns.RcodeToString[resp.Rcode])
	}

	var ips []net.IP
	for _, rr := range resp.Answer {
		if a, ok := rr.(*dns.A); ok {
			ips = append(ips, a.A)
		}
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("%s: %w", host, ErrNoAnswer)
	}
	return ips, nil
}

// query performs a single A query over the given transport
func (r *ServerResolver) query(ctx context.Context, network, host string) (*dns.Msg, error) {
	// Construct DNS message
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), dns.TypeA)
	msg.RecursionDesired = r.opts.RecursionDesired

	// Add EDNS if requested
	if r.opts.UseEDNS && network == "udp" {
		msg.SetEdns0(r.opts.EDNSBufferSize, false)
	}

	client := &dns.Client{
		Net:     network,
		Timeout: r.opts.Timeout,
	}

	resp, _, err := client.ExchangeContext(ctx, msg, r.server)
	if err != nil {
		return nil, fmt.Errorf("%s query failed: %w", strings.ToUpper(network), err)
	}
	if resp == nil {
		return nil, fmt.Errorf("empty response")
	}
	return resp, nil
}
