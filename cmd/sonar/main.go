package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/velemoonkon/sonar/pkg/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags
var (
	configFile string
	logFormat  string
	quiet      bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "sonar",
	Short: "Streaming TCP port and subdomain scanner",
	Long: `Sonar - TCP port and subdomain discovery with live progress

Scans one target at a time and streams events as they happen:
  • ports  - TCP connect scan with banner grabbing and service hints
  • dns    - subdomain discovery from built-in or custom wordlists
  • serve  - HTTP API streaming the same events as NDJSON or over a websocket

Output formats:
  • JSONL (default) - one event per line, pipe to jq
  • JSON / Markdown - one report document with results and summary
  • Parquet - result rows, query with DuckDB
  • Table - human readable summary`,

	Example: `  # Scan the default range (1-1000)
  sonar ports scanme.example.com

  # Selected ports with a longer timeout
  sonar ports 10.0.0.5 -p 22,80,443,8000-8100 -t 2s

  # Subdomains from the medium wordlist through a specific resolver
  sonar dns example.com -w medium --resolver 1.1.1.1

  # Results table instead of the event stream
  sonar dns example.com --format table

  # Markdown report for a ticket
  sonar ports 10.0.0.5 --format markdown -o report.md

  # Parquet output for analytics
  sonar ports 10.0.0.5 -p 1-65535 --format parquet -o scan.parquet
  # Then query: duckdb -c "SELECT port, service FROM 'scan.parquet'"

  # Run the API server
  sonar serve --addr 0.0.0.0:8080`,

	Version:           version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("sonar %s (commit: %s, built: %s)\n", version, commit, date))

	f := rootCmd.PersistentFlags()
	f.StringVar(&configFile, "config", "", "Config file (yaml, json or toml)")
	f.StringVar(&logFormat, "log-format", "", "Log format: text, json (default from config)")
	f.BoolVarP(&quiet, "quiet", "q", false, "Only log errors")
	f.BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	rootCmd.AddCommand(newPortsCmd(), newDNSCmd(), newServeCmd())
}

// setup loads configuration and installs the logger before any subcommand runs
func setup(cmd *cobra.Command, args []string) error {
	if err := config.Load(configFile); err != nil {
		return err
	}
	return initLogger()
}

func initLogger() error {
	var level slog.Level
	switch {
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelError
	default:
		if err := level.UnmarshalText([]byte(config.Log.Level)); err != nil {
			return fmt.Errorf("invalid log level %q: %w", config.Log.Level, err)
		}
	}

	format := config.Log.Format
	if logFormat != "" {
		format = logFormat
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text", "":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			slog.Info("stopping...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
