package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/velemoonkon/sonar/pkg/scanner"
)

const (
	// WebSocket configuration constants
	wsWriteWait    = 10 * time.Second // time allowed to write one message
	wsRequestWait  = 10 * time.Second // time allowed for the client to send its request
	wsCloseGrace   = time.Second      // time to wait for the client's close reply
	wsMaxRequest   = 64 * 1024        // maximum request message size
	wsMaxCloseText = 123              // close frame reason limit
)

// Scan kinds accepted on the websocket
const (
	KindPorts = "ports"
	KindDNS   = "dns"
)

// WSRequest is the single message a websocket client sends to start a scan
type WSRequest struct {
	Kind string `json:"kind"`
	scanner.Request
}

// WSError is sent before closing when the request is rejected
type WSError struct {
	Type    string `json:"type"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// handleScanWebSocket runs one scan per connection: the client sends a
// WSRequest, the server answers with every scan event as a text message and
// a normal close frame. Closing the connection early cancels the scan.
func (s *Server) handleScanWebSocket(w http.ResponseWriter, r *http.Request) {
	requestID := RequestID(r.Context())
	logger := s.logger.With("request_id", requestID, "handler", "websocket")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxRequest)

	var req WSRequest
	_ = conn.SetReadDeadline(time.Now().Add(wsRequestWait))
	if err := conn.ReadJSON(&req); err != nil {
		s.rejectWS(conn, "invalid_json", fmt.Errorf("malformed scan request: %w", err))
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	run, err := s.wsScan(req)
	if err != nil {
		s.rejectWS(conn, "invalid_request", err)
		return
	}

	// The reader only watches for the client leaving
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	summary, err := run(ctx, func(ev scanner.Event) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(ev)
	})
	logger.Log(ctx, logLevelFor(err), "websocket scan ended",
		"scan_id", summary.ScanID,
		"kind", req.Kind,
		"completed", summary.Completed,
		"total", summary.Total,
		"cancelled", summary.Cancelled,
		"error", err)

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "scan complete")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait)); err != nil {
		return
	}
	select {
	case <-readerDone:
	case <-time.After(wsCloseGrace):
	}
}

// wsScan validates a websocket request into a runnable scan
func (s *Server) wsScan(req WSRequest) (scanFunc, error) {
	switch req.Kind {
	case KindPorts:
		spec, err := s.scanner.PortSpec(req.Request)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, emit scanner.EmitFunc) (scanner.Summary, error) {
			return s.scanner.ScanPorts(ctx, spec, emit)
		}, nil
	case KindDNS:
		spec, err := s.scanner.DNSSpec(req.Request)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, emit scanner.EmitFunc) (scanner.Summary, error) {
			return s.scanner.ScanDNS(ctx, spec, emit)
		}, nil
	default:
		return nil, &scanner.SpecError{Field: "kind", Value: req.Kind, Err: fmt.Errorf("must be %q or %q", KindPorts, KindDNS)}
	}
}

// rejectWS sends an error message followed by a policy violation close
func (s *Server) rejectWS(conn *websocket.Conn, code string, err error) {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	payload, _ := json.Marshal(WSError{Type: "error", Error: code, Message: err.Error()})
	if werr := conn.WriteMessage(websocket.TextMessage, payload); werr != nil {
		return
	}

	reason := err.Error()
	if len(reason) > wsMaxCloseText {
		reason = strings.ToValidUTF8(reason[:wsMaxCloseText], "")
	}
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}
