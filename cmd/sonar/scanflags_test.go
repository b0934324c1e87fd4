package main

import (
	"testing"
	"time"

	"github.com/velemoonkon/sonar/pkg/config"
	"github.com/velemoonkon/sonar/pkg/dns"
)

func TestScanRequest_Defaults(t *testing.T) {
	// sonar ports example.com
	req := ScanRequest("example.com", ScanFlags{})

	if req.Target != "example.com" {
		t.Errorf("Target = %q, want example.com", req.Target)
	}
	if req.PortRange != "" || req.Wordlist != "" {
		t.Error("Unset flags should leave range and wordlist empty for scanner defaults")
	}
	if req.TimeoutMs != 0 || req.Timeout != 0 {
		t.Error("Unset timeout should leave both timeout fields zero")
	}
	if req.Concurrency != 0 {
		t.Errorf("Concurrency = %d, want 0", req.Concurrency)
	}
}

func TestScanRequest_Timeout(t *testing.T) {
	tests := []struct {
		timeout time.Duration
		want    int
	}{
		{0, 0},
		{1500 * time.Millisecond, 1500},
		{2 * time.Second, 2000},
		{100 * time.Microsecond, 1}, // sub-millisecond rounds up to the minimum
	}

	for _, tt := range tests {
		req := ScanRequest("example.com", ScanFlags{Timeout: tt.timeout})
		if req.TimeoutMs != tt.want {
			t.Errorf("timeout %v: TimeoutMs = %d, want %d", tt.timeout, req.TimeoutMs, tt.want)
		}
	}
}

func TestScanRequest_PassesFlags(t *testing.T) {
	// sonar ports example.com -p 22,80 -c 100
	req := ScanRequest("example.com", ScanFlags{PortRange: "22,80", Concurrency: 100, Wordlist: "medium"})

	if req.PortRange != "22,80" {
		t.Errorf("PortRange = %q", req.PortRange)
	}
	if req.Concurrency != 100 {
		t.Errorf("Concurrency = %d", req.Concurrency)
	}
	if req.Wordlist != "medium" {
		t.Errorf("Wordlist = %q", req.Wordlist)
	}
}

func TestResolveScannerConfig_FromConfig(t *testing.T) {
	sc := config.DefaultScannerConfig()
	sc.RateLimit = 200
	dc := config.DefaultDNSConfig()

	cfg := ResolveScannerConfig(sc, dc, ScanFlags{})

	if cfg.PortBatchSize != sc.PortBatchSize || cfg.DNSBatchSize != sc.DNSBatchSize {
		t.Error("Batch sizes should come from config")
	}
	if cfg.RateLimit != 200 {
		t.Errorf("RateLimit = %d, want config value 200", cfg.RateLimit)
	}
	if cfg.LookupTimeout != dc.LookupTimeout {
		t.Errorf("LookupTimeout = %v, want %v", cfg.LookupTimeout, dc.LookupTimeout)
	}
	if cfg.Resolver != nil {
		t.Error("No nameserver configured: resolver should be left to the scanner default")
	}
}

func TestResolveScannerConfig_RateFlagWins(t *testing.T) {
	sc := config.DefaultScannerConfig()
	sc.RateLimit = 200

	cfg := ResolveScannerConfig(sc, config.DefaultDNSConfig(), ScanFlags{Rate: 50})
	if cfg.RateLimit != 50 {
		t.Errorf("RateLimit = %d, want --rate 50", cfg.RateLimit)
	}
}

func TestResolveScannerConfig_Resolver(t *testing.T) {
	tests := []struct {
		name      string
		configSrv string
		flag      string
		want      string
	}{
		{"Config server", "9.9.9.9", "", "9.9.9.9:53"},
		{"Flag overrides config", "9.9.9.9", "1.1.1.1:5353", "1.1.1.1:5353"},
		{"Flag only", "", "8.8.8.8", "8.8.8.8:53"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dc := config.DefaultDNSConfig()
			dc.Server = tt.configSrv

			cfg := ResolveScannerConfig(config.DefaultScannerConfig(), dc, ScanFlags{Resolver: tt.flag})
			r, ok := cfg.Resolver.(*dns.ServerResolver)
			if !ok {
				t.Fatalf("Resolver = %T, want *dns.ServerResolver", cfg.Resolver)
			}
			if r.Name() != tt.want {
				t.Errorf("Name() = %q, want %q", r.Name(), tt.want)
			}
		})
	}
}

func TestResolveOutput(t *testing.T) {
	tests := []struct {
		format  string
		output  string
		want    string
		wantErr bool
	}{
		{"", "-", formatJSONL, false},
		{"jsonl", "results.jsonl", formatJSONL, false},
		{"JSONL", "", formatJSONL, false},
		{"table", "-", formatTable, false},
		{"json", "-", formatJSON, false},
		{"markdown", "report.md", formatMarkdown, false},
		{"MD", "-", formatMarkdown, false},
		{"parquet", "scan.parquet", formatParquet, false},
		{"parquet", "-", "", true},
		{"parquet", "", "", true},
		{"csv", "-", "", true},
	}

	for _, tt := range tests {
		got, err := ResolveOutput(tt.format, tt.output)
		if (err != nil) != tt.wantErr {
			t.Errorf("ResolveOutput(%q, %q) error = %v, wantErr %v", tt.format, tt.output, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ResolveOutput(%q, %q) = %q, want %q", tt.format, tt.output, got, tt.want)
		}
	}
}
