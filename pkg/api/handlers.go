package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/velemoonkon/sonar/pkg/output"
	"github.com/velemoonkon/sonar/pkg/scanner"
)

// ContentTypeNDJSON is the media type of scan streams
const ContentTypeNDJSON = "application/x-ndjson"

// scanFunc runs one validated scan against emit
type scanFunc func(ctx context.Context, emit scanner.EmitFunc) (scanner.Summary, error)

// handlePortScan validates a port scan request and streams its events
func (s *Server) handlePortScan(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	spec, err := s.scanner.PortSpec(req)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", err)
		return
	}
	s.stream(w, r, func(ctx context.Context, emit scanner.EmitFunc) (scanner.Summary, error) {
		return s.scanner.ScanPorts(ctx, spec, emit)
	})
}

// handleDNSScan validates a subdomain scan request and streams its events
func (s *Server) handleDNSScan(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	spec, err := s.scanner.DNSSpec(req)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", err)
		return
	}
	s.stream(w, r, func(ctx context.Context, emit scanner.EmitFunc) (scanner.Summary, error) {
		return s.scanner.ScanDNS(ctx, spec, emit)
	})
}

// decodeRequest parses the JSON body, writing the error response on failure
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (scanner.Request, bool) {
	var req scanner.Request

	body := http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			s.writeError(w, r, http.StatusRequestEntityTooLarge, "body_too_large",
				fmt.Errorf("request body exceeds %d bytes", maxErr.Limit))
		case errors.Is(err, io.EOF):
			s.writeError(w, r, http.StatusBadRequest, "invalid_json", errors.New("request body is empty"))
		default:
			s.writeError(w, r, http.StatusBadRequest, "invalid_json", fmt.Errorf("malformed JSON body: %w", err))
		}
		return req, false
	}
	return req, true
}

// stream runs the scan and writes every event as one JSON line.
// The scan stops when the client goes away (request context) or a write fails.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, run scanFunc) {
	w.Header().Set("Content-Type", ContentTypeNDJSON)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	jw := output.NewWriterFromWriter(w)
	summary, err := run(r.Context(), jw.Emit())

	logger := s.logger.With("request_id", RequestID(r.Context()), "scan_id", summary.ScanID)
	switch {
	case summary.Cancelled:
		logger.Debug("client went away, scan stopped", "completed", summary.Completed, "total", summary.Total)
	case err != nil:
		logger.Warn("scan stream aborted", "error", err)
	default:
		logger.Debug("scan stream finished", "events", jw.Count(), "found", summary.Found)
	}
}

// logLevelFor picks the level for a scan that ended with err
func logLevelFor(err error) slog.Level {
	if err == nil || errors.Is(err, context.Canceled) {
		return slog.LevelDebug
	}
	return slog.LevelWarn
}
