// Package dnstest runs small in-process authoritative DNS servers for tests.
package dnstest

import (
	"context"
	"net"
	"strings"
	"testing"

	"github.com/miekg/dns"
)

// Server answers A queries from a fixed record table
type Server struct {
	// Addr is the UDP address the server listens on
	Addr string

	records map[string][]string
	server  *dns.Server
}

// NewServer starts a UDP server on loopback that answers A queries for records
// (hostname -> addresses) and NXDOMAIN for everything else.
// Hostnames containing "servfail" get SERVFAIL. The server stops when the test ends.
func NewServer(tb testing.TB, records map[string][]string) *Server {
	tb.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("dnstest: listen: %v", err)
	}

	s := &Server{
		Addr:    pc.LocalAddr().String(),
		records: make(map[string][]string, len(records)),
	}
	for name, ips := range records {
		s.records[dns.Fqdn(strings.ToLower(name))] = ips
	}

	started := make(chan struct{})
	s.server = &dns.Server{
		PacketConn:        pc,
		Handler:           dns.HandlerFunc(s.handle),
		NotifyStartedFunc: func() { close(started) },
	}
	go func() {
		_ = s.server.ActivateAndServe()
	}()
	<-started

	tb.Cleanup(func() {
		_ = s.server.Shutdown()
	})
	return s
}

func (s *Server) handle(w dns.ResponseWriter, req *dns.Msg) {
	m := new(dns.Msg)
	m.SetReply(req)
	m.Authoritative = true

	if len(req.Question) == 0 {
		m.Rcode = dns.RcodeFormatError
		_ = w.WriteMsg(m)
		return
	}

	q := req.Question[0]
	name := strings.ToLower(q.Name)
	ips, ok := s.records[name]
	switch {
	case strings.Contains(name, "servfail"):
		m.Rcode = dns.RcodeServerFailure
	case !ok:
		m.Rcode = dns.RcodeNameError
	case q.Qtype == dns.TypeA:
		for _, ip := range ips {
			m.Answer = append(m.Answer, &dns.A{
				Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
				A:   net.ParseIP(ip).To4(),
			})
		}
	}
	_ = w.WriteMsg(m)
}

// Resolver returns a pure-Go net.Resolver that sends every query to the server
func (s *Server) Resolver() *net.Resolver {
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "udp", s.Addr)
		},
	}
}
