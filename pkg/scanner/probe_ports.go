package scanner

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"
)

// Port probe defaults
const (
	DefaultPortTimeout = time.Second
	DefaultBannerWait  = 200 * time.Millisecond
	DefaultBannerSize  = 1024
)

// Dialer opens TCP connections (satisfied by *net.Dialer)
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// PortProbe implements Prober[int] with a TCP connect and a short banner read
type PortProbe struct {
	Host       string
	Timeout    time.Duration // connect timeout
	BannerWait time.Duration // grace window for unsolicited data after connect
	BannerSize int           // max banner bytes read
	Dialer     Dialer
}

// NewPortProbe creates a port probe for host with default banner settings
func NewPortProbe(host string, timeout time.Duration) *PortProbe {
	if timeout <= 0 {
		timeout = DefaultPortTimeout
	}
	return &PortProbe{
		Host:       host,
		Timeout:    timeout,
		BannerWait: DefaultBannerWait,
		BannerSize: DefaultBannerSize,
		Dialer:     &net.Dialer{},
	}
}

// Family returns the probe family
func (p *PortProbe) Family() Family {
	return FamilyPorts
}

// Probe connects to Host:port and classifies the port as open, closed or filtered
func (p *PortProbe) Probe(ctx context.Context, port int) Outcome {
	start := time.Now()
	outcome := Outcome{Port: port}

	dialCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	conn, err := p.dialer().DialContext(dialCtx, "tcp", net.JoinHostPort(p.Host, strconv.Itoa(port)))
	if err != nil {
		outcome.State = classifyDialError(dialCtx, err)
		outcome.Duration = time.Since(start)
		return outcome
	}
	defer conn.Close()

	outcome.State = StateOpen
	outcome.Banner = p.readBanner(conn)
	outcome.Service = ServiceHint(port, outcome.Banner)
	outcome.Duration = time.Since(start)
	return outcome
}

func (p *PortProbe) dialer() Dialer {
	if p.Dialer == nil {
		return &net.Dialer{}
	}
	return p.Dialer
}

// readBanner waits up to BannerWait for the first chunk of unsolicited data
func (p *PortProbe) readBanner(conn net.Conn) string {
	wait := p.BannerWait
	if wait <= 0 {
		wait = DefaultBannerWait
	}
	size := p.BannerSize
	if size <= 0 {
		size = DefaultBannerSize
	}

	if err := conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
		return ""
	}
	buf := make([]byte, size)
	n, _ := conn.Read(buf)
	if n == 0 {
		return ""
	}
	return strings.TrimSpace(strings.ToValidUTF8(string(buf[:n]), ""))
}

// classifyDialError maps a failed connect to filtered (no answer in time) or closed (explicit error)
func classifyDialError(ctx context.Context, err error) State {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return StateFiltered
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return StateFiltered
	}
	return StateClosed
}
