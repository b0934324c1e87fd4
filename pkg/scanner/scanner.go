package scanner

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/velemoonkon/sonar/pkg/dns"
	"github.com/velemoonkon/sonar/pkg/target"
)

// Scanner runs port and subdomain sweeps with shared defaults and hooks.
// It holds no per-scan state: every call builds its own executor and limiter.
type Scanner struct {
	config Config
}

// NewScanner creates a new scanner with configuration
func NewScanner(cfg Config) *Scanner {
	def := DefaultConfig()
	// Validate and sanitize config
	if cfg.PortBatchSize <= 0 {
		cfg.PortBatchSize = def.PortBatchSize
	}
	if cfg.DNSBatchSize <= 0 {
		cfg.DNSBatchSize = def.DNSBatchSize
	}
	if cfg.DefaultPortRange == "" {
		cfg.DefaultPortRange = def.DefaultPortRange
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = def.DefaultTimeout
	}
	if cfg.BannerWait <= 0 {
		cfg.BannerWait = def.BannerWait
	}
	if cfg.BannerSize <= 0 {
		cfg.BannerSize = def.BannerSize
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = def.LookupTimeout
	}
	if cfg.Resolver == nil {
		cfg.Resolver = dns.NewSystemResolver()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &net.Dialer{}
	}

	return &Scanner{config: cfg}
}

// Config returns the effective configuration (defaults applied)
func (s *Scanner) Config() Config {
	return s.config
}

// PortSpec validates a request as a port scan
func (s *Scanner) PortSpec(req Request) (PortSpec, error) {
	return NewPortSpec(req, s.config)
}

// DNSSpec validates a request as a subdomain scan
func (s *Scanner) DNSSpec(req Request) (DNSSpec, error) {
	return NewDNSSpec(req, s.config)
}

// ScanPorts probes every port of spec and streams events to emit
func (s *Scanner) ScanPorts(ctx context.Context, spec PortSpec, emit EmitFunc) (Summary, error) {
	probe := &PortProbe{
		Host:       spec.Host,
		Timeout:    spec.Timeout,
		BannerWait: s.config.BannerWait,
		BannerSize: s.config.BannerSize,
		Dialer:     s.config.Dialer,
	}

	scanID := uuid.NewString()
	logger := slog.With("scan_id", scanID, "family", FamilyPorts, "target", spec.Host)
	logger.Info("scan started",
		"ports", spec.Count,
		"batch_size", spec.BatchSize,
		"timeout", spec.Timeout,
	)

	opts := s.execOptions(scanID, spec.Host, spec.BatchSize)
	summary, err := Execute(ctx, spec.Ports, spec.Count, probe, opts, emit)
	logFinished(logger, summary, err)
	return summary, err
}

// ScanDNS resolves every candidate hostname of spec and streams events to emit
func (s *Scanner) ScanDNS(ctx context.Context, spec DNSSpec, emit EmitFunc) (Summary, error) {
	probe := NewDNSProbe(s.config.Resolver, s.config.LookupTimeout)

	scanID := uuid.NewString()
	logger := slog.With("scan_id", scanID, "family", FamilyDNS, "target", spec.Domain)
	logger.Info("scan started",
		"wordlist", spec.Tier,
		"hostnames", spec.Total(),
		"batch_size", spec.BatchSize,
		"resolver", probe.Resolver.Name(),
	)

	hosts := target.Hostnames(spec.Domain, spec.Labels)
	opts := s.execOptions(scanID, spec.Domain, spec.BatchSize)
	summary, err := Execute(ctx, hosts, spec.Total(), probe, opts, emit)
	logFinished(logger, summary, err)
	return summary, err
}

// execOptions builds per-scan executor options; limiters are never shared between scans
func (s *Scanner) execOptions(scanID, host string, batchSize int) ExecOptions {
	return ExecOptions{
		ScanID:    scanID,
		Target:    host,
		BatchSize: batchSize,
		Limiter:   NewLimiter(s.config.RateLimit),
		Recorder:  s.config.Recorder,
	}
}

func logFinished(logger *slog.Logger, summary Summary, err error) {
	attrs := []any{
		slog.Int("completed", summary.Completed),
		slog.Int("total", summary.Total),
		slog.Int("found", summary.Found),
		slog.Duration("elapsed", time.Duration(summary.DurationMs)*time.Millisecond),
	}
	switch {
	case summary.Cancelled:
		logger.Warn("scan cancelled", attrs...)
	case err != nil:
		logger.Warn("scan aborted", append(attrs, slog.Any("error", err))...)
	default:
		logger.Info("scan finished", attrs...)
	}
}
