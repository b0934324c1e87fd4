package scanner

import (
	"time"

	"github.com/velemoonkon/sonar/pkg/dns"
)

// Family identifies a probe family
type Family string

const (
	FamilyPorts Family = "ports"
	FamilyDNS   Family = "dns"
)

// State classifies the outcome of one probe
type State string

const (
	StateOpen     State = "open"
	StateClosed   State = "closed"
	StateFiltered State = "filtered"
	StateFound    State = "found"
	StateNotFound State = "not_found"
)

// Outcome is the result of probing one target
// Port fields are set for port probes, Subdomain/IP for DNS probes.
type Outcome struct {
	State     State
	Port      int
	Banner    string
	Service   string
	Subdomain string
	IP        string
	Duration  time.Duration
}

// Success reports whether the outcome produces a result record
func (o Outcome) Success() bool {
	return o.State == StateOpen || o.State == StateFound
}

// Record returns the streamed result record for a successful outcome, nil otherwise
func (o Outcome) Record() any {
	switch o.State {
	case StateOpen:
		return PortResult{
			Port:    o.Port,
			State:   o.State,
			Banner:  o.Banner,
			Service: o.Service,
		}
	case StateFound:
		return DNSResult{
			Subdomain: o.Subdomain,
			IP:        o.IP,
		}
	default:
		return nil
	}
}

// PortResult is the record streamed for an open port
type PortResult struct {
	Port    int    `json:"port"`
	State   State  `json:"state"`
	Banner  string `json:"banner,omitzero"`
	Service string `json:"service,omitzero"`
}

// DNSResult is the record streamed for a resolved subdomain
type DNSResult struct {
	Subdomain string `json:"subdomain"`
	IP        string `json:"ip"`
}

// Summary describes a finished (or abandoned) sweep
type Summary struct {
	ScanID     string `json:"scan_id,omitzero"`
	Family     Family `json:"family"`
	Target     string `json:"target,omitzero"`
	Total      int    `json:"total"`
	Completed  int    `json:"completed"`
	Found      int    `json:"found"`
	DurationMs int64  `json:"duration_ms"`
	Cancelled  bool   `json:"cancelled,omitzero"`

	// Results holds every successful outcome in completion order
	Results []Outcome `json:"-"`
}

// Config contains scanner configuration
type Config struct {
	PortBatchSize    int           // Default port probes per batch
	DNSBatchSize     int           // Default DNS probes per batch
	MaxConcurrency   int           // Upper bound for a requested concurrency (0 = no bound)
	DefaultPortRange string        // Used when a request has no portRange
	DefaultTimeout   time.Duration // Connect timeout when a request has none
	BannerWait       time.Duration // Grace window for a banner after connect
	BannerSize       int           // Max banner bytes
	RateLimit        int           // Max probe launches per second per scan (0 or negative = no limit)
	LookupTimeout    time.Duration // Hard ceiling per DNS lookup

	// Injected collaborators (nil = defaults)
	Resolver dns.Resolver
	Dialer   Dialer
	Recorder Recorder
}

// DefaultConfig returns default scanner configuration
func DefaultConfig() Config {
	return Config{
		PortBatchSize:    DefaultBatchSize,
		DNSBatchSize:     DefaultBatchSize,
		MaxConcurrency:   500,
		DefaultPortRange: "1-1000",
		DefaultTimeout:   DefaultPortTimeout,
		BannerWait:       DefaultBannerWait,
		BannerSize:       DefaultBannerSize,
		RateLimit:        0,
		LookupTimeout:    DefaultLookupTimeout,
	}
}
