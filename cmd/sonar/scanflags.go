package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/velemoonkon/sonar/pkg/config"
	"github.com/velemoonkon/sonar/pkg/dns"
	"github.com/velemoonkon/sonar/pkg/output"
	"github.com/velemoonkon/sonar/pkg/scanner"
)

// Output formats
const (
	formatJSONL   = "jsonl"
	formatParquet = "parquet"
	formatTable   = "table"

	formatJSON     = output.FormatJSON
	formatMarkdown = output.FormatMarkdown
)

// ScanFlags represents the CLI flags shared by the scan commands
type ScanFlags struct {
	// Port scan options
	PortRange string
	Timeout   time.Duration

	// DNS options
	Wordlist     string
	WordlistFile string
	Resolver     string // explicit nameserver, overrides dns.server

	// Performance
	Concurrency int
	Rate        int // probes/second, 0 = config default

	// Output
	Format string
	Output string
}

// ScanRequest builds the scanner request for target from the flags.
// Zero-valued flags are left empty so the scanner applies its defaults.
func ScanRequest(target string, flags ScanFlags) scanner.Request {
	req := scanner.Request{
		Target:      target,
		PortRange:   flags.PortRange,
		Wordlist:    flags.Wordlist,
		Concurrency: flags.Concurrency,
	}
	if flags.Timeout > 0 {
		req.TimeoutMs = int(max(flags.Timeout.Milliseconds(), 1))
	}
	return req
}

// ResolveScannerConfig merges the loaded configuration with CLI overrides
func ResolveScannerConfig(sc config.ScannerConfig, dc config.DNSConfig, flags ScanFlags) scanner.Config {
	cfg := scanner.Config{
		PortBatchSize:    sc.PortBatchSize,
		DNSBatchSize:     sc.DNSBatchSize,
		MaxConcurrency:   sc.MaxConcurrency,
		DefaultPortRange: sc.DefaultPortRange,
		DefaultTimeout:   sc.DefaultTimeout,
		BannerWait:       sc.BannerWait,
		BannerSize:       sc.BannerSize,
		RateLimit:        sc.RateLimit,
		LookupTimeout:    dc.LookupTimeout,
	}
	if flags.Rate > 0 {
		cfg.RateLimit = flags.Rate
	}

	// An explicit nameserver replaces the system resolver
	server := strings.TrimSpace(flags.Resolver)
	if server == "" {
		server = strings.TrimSpace(dc.Server)
	}
	if server != "" {
		opts := dns.DefaultQueryOptions()
		if dc.QueryTimeout > 0 {
			opts.Timeout = dc.QueryTimeout
		}
		cfg.Resolver = dns.NewServerResolver(server, opts)
	}
	return cfg
}

// ResolveOutput validates the output format against the destination
func ResolveOutput(format, output string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if output == "" {
		output = "-"
	}

	switch format {
	case "", formatJSONL:
		return formatJSONL, nil
	case formatTable:
		return formatTable, nil
	case formatJSON:
		return formatJSON, nil
	case formatMarkdown, "md":
		return formatMarkdown, nil
	case formatParquet:
		if output == "-" {
			return "", fmt.Errorf("parquet cannot write to stdout, use -o file.parquet")
		}
		return formatParquet, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want jsonl, json, markdown, parquet or table)", format)
	}
}
