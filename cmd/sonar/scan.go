package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/velemoonkon/sonar/pkg/config"
	"github.com/velemoonkon/sonar/pkg/output"
	"github.com/velemoonkon/sonar/pkg/scanner"
	"github.com/velemoonkon/sonar/pkg/target"
)

func newPortsCmd() *cobra.Command {
	var flags ScanFlags

	cmd := &cobra.Command{
		Use:   "ports [flags] <host>",
		Short: "TCP connect scan of one host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := scanner.NewScanner(ResolveScannerConfig(config.Scanner, config.DNS, flags))
			spec, err := s.PortSpec(ScanRequest(args[0], flags))
			if err != nil {
				return err
			}
			return runScan(flags, func(ctx context.Context, emit scanner.EmitFunc) (scanner.Summary, error) {
				return s.ScanPorts(ctx, spec, emit)
			})
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.PortRange, "ports", "p", "", `Ports: "22", "22,80,443", "1-1024" (default from config, "1-1000")`)
	f.DurationVarP(&flags.Timeout, "timeout", "t", 0, "Connect timeout per port (default from config, 1s)")
	addCommonFlags(cmd, &flags)
	return cmd
}

func newDNSCmd() *cobra.Command {
	var flags ScanFlags

	cmd := &cobra.Command{
		Use:   "dns [flags] <domain>",
		Short: "Subdomain discovery for one domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := scanner.NewScanner(ResolveScannerConfig(config.Scanner, config.DNS, flags))
			spec, err := s.DNSSpec(ScanRequest(args[0], flags))
			if err != nil {
				return err
			}
			if flags.WordlistFile != "" {
				labels, err := target.ReadWordlist(flags.WordlistFile)
				if err != nil {
					return err
				}
				slog.Debug("using custom wordlist", "file", flags.WordlistFile, "labels", len(labels))
				spec = spec.WithLabels(labels)
			}
			return runScan(flags, func(ctx context.Context, emit scanner.EmitFunc) (scanner.Summary, error) {
				return s.ScanDNS(ctx, spec, emit)
			})
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.Wordlist, "wordlist", "w", "", "Wordlist: small, medium, large (default small)")
	f.StringVar(&flags.WordlistFile, "wordlist-file", "", "Read labels from file (one per line), overrides -w")
	f.StringVar(&flags.Resolver, "resolver", "", "Query this nameserver (host or host:port) instead of the system resolver")
	addCommonFlags(cmd, &flags)
	return cmd
}

func addCommonFlags(cmd *cobra.Command, flags *ScanFlags) {
	f := cmd.Flags()

	// Performance
	f.IntVarP(&flags.Concurrency, "concurrency", "c", 0, "Probes in flight per batch (default from config, 50)")
	f.IntVar(&flags.Rate, "rate", 0, "Max probes/second, 0 = config default (unlimited)")

	// Output
	f.StringVarP(&flags.Output, "output", "o", "-", "Output file (- for stdout)")
	f.StringVar(&flags.Format, "format", formatJSONL, "Output format: jsonl, json, markdown, parquet, table")
}

// sink receives a scan's events and its final summary
type sink struct {
	emit   scanner.EmitFunc
	finish func(scanner.Summary) error
	close  func() error
}

// runScan runs one scan into the selected output. An interrupted scan keeps
// its partial output and is not an error.
func runScan(flags ScanFlags, run func(context.Context, scanner.EmitFunc) (scanner.Summary, error)) error {
	format, err := ResolveOutput(flags.Format, flags.Output)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	out, err := createOutput(format, flags.Output)
	if err != nil {
		return err
	}

	startTime := time.Now()
	summary, scanErr := run(ctx, out.emit)

	if scanErr == nil || summary.Cancelled {
		if err := out.finish(summary); err != nil && scanErr == nil {
			scanErr = err
		}
	}
	if closeErr := out.close(); closeErr != nil && scanErr == nil {
		scanErr = closeErr
	}

	if summary.Cancelled && errors.Is(scanErr, context.Canceled) {
		slog.Warn("scan interrupted, results are partial",
			"completed", summary.Completed,
			"total", summary.Total,
			"found", summary.Found)
		return nil
	}
	if scanErr != nil {
		return fmt.Errorf("scan failed: %w", scanErr)
	}

	slog.Info("scan completed",
		"found", summary.Found,
		"probed", summary.Completed,
		"duration", time.Since(startTime).Round(time.Millisecond))
	return nil
}

func createOutput(format, file string) (*sink, error) {
	switch format {
	case formatParquet:
		pw, err := output.NewParquetWriter(file)
		if err != nil {
			return nil, fmt.Errorf("failed to create parquet writer: %w", err)
		}
		return &sink{emit: logEvent, finish: pw.WriteSummary, close: pw.Close}, nil

	case formatTable:
		w := os.Stdout
		if file != "-" && file != "" {
			f, err := os.Create(file)
			if err != nil {
				return nil, fmt.Errorf("failed to create output file: %w", err)
			}
			w = f
		}
		return &sink{
			emit:   logEvent,
			finish: func(s scanner.Summary) error { return output.WriteTable(w, s) },
			close: func() error {
				if w == os.Stdout {
					return nil
				}
				return w.Close()
			},
		}, nil

	case formatJSON, formatMarkdown:
		sw, err := output.NewStreamWriter(file, format, time.Now(), 0)
		if err != nil {
			return nil, fmt.Errorf("failed to create report writer: %w", err)
		}
		report := sw.Emit()
		return &sink{
			emit: func(ev scanner.Event) error {
				if err := logEvent(ev); err != nil {
					return err
				}
				return report(ev)
			},
			finish: sw.Finish,
			close:  sw.Close,
		}, nil

	default: // jsonl
		jw, err := output.NewWriter(file)
		if err != nil {
			return nil, fmt.Errorf("failed to create writer: %w", err)
		}
		return &sink{
			emit:   jw.Emit(),
			finish: func(scanner.Summary) error { return nil },
			close:  jw.Close,
		}, nil
	}
}

// logEvent reports progress on stderr for formats written at the end
func logEvent(ev scanner.Event) error {
	switch ev.Type {
	case scanner.EventResult:
		slog.Info("found", "result", ev.Result)
	case scanner.EventProgress:
		if p := *ev.Progress; p%10 == 0 {
			slog.Debug("progress", "percent", p)
		}
	}
	return nil
}
