package scanner

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strconv"
	"syscall"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blackholeDialer never connects: it waits for the dial context to expire
type blackholeDialer struct{}

func (blackholeDialer) DialContext(ctx context.Context, network, _ string) (net.Conn, error) {
	<-ctx.Done()
	return nil, &net.OpError{Op: "dial", Net: network, Err: ctx.Err()}
}

// refusingDialer fails every dial with ECONNREFUSED
type refusingDialer struct{}

func (refusingDialer) DialContext(_ context.Context, network, _ string) (net.Conn, error) {
	return nil, &net.OpError{Op: "dial", Net: network, Err: &os.SyscallError{Syscall: "connect", Err: syscall.ECONNREFUSED}}
}

// pipeDialer connects to an in-memory peer run by serve
type pipeDialer struct {
	serve func(conn net.Conn)
}

func (d pipeDialer) DialContext(context.Context, string, string) (net.Conn, error) {
	client, server := net.Pipe()
	go d.serve(server)
	return client, nil
}

func TestPortProbe_Timeout(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		probe := NewPortProbe("192.0.2.1", time.Second)
		probe.Dialer = blackholeDialer{}

		start := time.Now()
		outcome := probe.Probe(t.Context(), 80)
		elapsed := time.Since(start)

		assert.Equal(t, StateFiltered, outcome.State)
		assert.Equal(t, 80, outcome.Port)
		assert.Empty(t, outcome.Banner)
		// Bounded by the connect timeout
		assert.Equal(t, time.Second, elapsed)
	})
}

func TestPortProbe_Refused(t *testing.T) {
	probe := NewPortProbe("127.0.0.1", time.Second)
	probe.Dialer = refusingDialer{}

	outcome := probe.Probe(context.Background(), 81)
	assert.Equal(t, StateClosed, outcome.State)
	assert.False(t, outcome.Success())
	assert.Nil(t, outcome.Record())
}

func TestPortProbe_BannerPipe(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		probe := NewPortProbe("10.0.0.1", time.Second)
		probe.Dialer = pipeDialer{serve: func(conn net.Conn) {
			defer conn.Close()
			_, _ = conn.Write([]byte("SSH-2.0-OpenSSH_9.6\r\n"))
		}}

		outcome := probe.Probe(t.Context(), 2222)
		assert.Equal(t, StateOpen, outcome.State)
		assert.Equal(t, "SSH-2.0-OpenSSH_9.6", outcome.Banner)
		assert.Equal(t, "ssh", outcome.Service)
		// Data arrived immediately: no grace window wasted
		assert.Zero(t, outcome.Duration)
	})
}

func TestPortProbe_SilentService(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		probe := NewPortProbe("10.0.0.1", time.Second)
		probe.Dialer = pipeDialer{serve: func(conn net.Conn) {
			// Hold the connection until the probe closes it
			_, _ = io.Copy(io.Discard, conn)
			conn.Close()
		}}

		outcome := probe.Probe(t.Context(), 8080)
		assert.Equal(t, StateOpen, outcome.State)
		assert.Empty(t, outcome.Banner)
		assert.Equal(t, "http", outcome.Service)
		assert.Equal(t, DefaultBannerWait, outcome.Duration)
	})
}

func TestPortProbe_BannerTruncated(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		probe := NewPortProbe("10.0.0.1", time.Second)
		probe.BannerSize = 4
		probe.Dialer = pipeDialer{serve: func(conn net.Conn) {
			defer conn.Close()
			_, _ = conn.Write([]byte("abcdefgh"))
		}}

		outcome := probe.Probe(t.Context(), 9000)
		assert.Equal(t, "abcd", outcome.Banner)
	})
}

// =============================================================================
// Loopback Tests
// =============================================================================

func TestPortProbe_LoopbackBanner(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write([]byte("hello\n"))
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	outcome := NewPortProbe("127.0.0.1", 2*time.Second).Probe(context.Background(), port)

	assert.Equal(t, StateOpen, outcome.State)
	assert.Equal(t, "hello", outcome.Banner)
	assert.Equal(t, PortResult{Port: port, State: StateOpen, Banner: "hello"}, outcome.Record())
}

func TestPortProbe_LoopbackClosed(t *testing.T) {
	// Grab a free port and release it so nothing listens there
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	outcome := NewPortProbe("127.0.0.1", 2*time.Second).Probe(context.Background(), port)
	assert.Equal(t, StateClosed, outcome.State, "port %s", strconv.Itoa(port))
}

func TestClassifyDialError(t *testing.T) {
	expired, cancel := context.WithTimeout(context.Background(), -time.Second)
	defer cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want State
	}{
		{"Refused", context.Background(), &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, StateClosed},
		{"Unreachable", context.Background(), &net.OpError{Op: "dial", Err: syscall.EHOSTUNREACH}, StateClosed},
		{"Deadline", context.Background(), &net.OpError{Op: "dial", Err: context.DeadlineExceeded}, StateFiltered},
		{"Expired context", expired, errors.New("dial failed"), StateFiltered},
		{"Other", context.Background(), errors.New("boom"), StateClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyDialError(tt.ctx, tt.err))
		})
	}
}

func TestServiceHint(t *testing.T) {
	tests := []struct {
		port   int
		banner string
		want   string
	}{
		{22, "SSH-2.0-OpenSSH_9.6", "ssh"},
		{2222, "SSH-2.0-dropbear", "ssh"},
		{21, "220 ProFTPD Server ready", "ftp"},
		{25, "220 mail.example.com ESMTP Postfix", "smtp"},
		{2525, "220 mx ESMTP", "smtp"},
		{6379, "-ERR unknown command", "redis"},
		{110, "+OK POP3 ready", "pop3"},
		{143, "* OK IMAP4rev1", "imap"},
		{5900, "RFB 003.008", "vnc"},
		{443, "", "https"},
		{31337, "", ""},
		{31337, "welcome", ""},
	}

	for _, tt := range tests {
		t.Run(tt.banner, func(t *testing.T) {
			assert.Equal(t, tt.want, ServiceHint(tt.port, tt.banner))
		})
	}
}
