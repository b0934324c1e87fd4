package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/velemoonkon/sonar/pkg/api"
	"github.com/velemoonkon/sonar/pkg/config"
	"github.com/velemoonkon/sonar/pkg/metrics"
	"github.com/velemoonkon/sonar/pkg/scanner"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve [flags]",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API.

Endpoints:
  POST /api/v1/scans/ports   (alias /api/port-scan)   NDJSON event stream
  POST /api/v1/scans/dns     (alias /api/dns-scan)    NDJSON event stream
  GET  /api/v1/scans/ws      websocket, one scan per connection
  GET  /api/v1/health
  GET  /metrics              Prometheus`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			serverCfg := config.Server
			if a := strings.TrimSpace(addr); a != "" {
				serverCfg.Addr = a
			}

			m := metrics.New()
			scanCfg := ResolveScannerConfig(config.Scanner, config.DNS, ScanFlags{})
			scanCfg.Recorder = m

			ctx, cancel := signalContext()
			defer cancel()

			srv := api.New(serverCfg, scanner.NewScanner(scanCfg), m)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, 127.0.0.1:8080)")
	return cmd
}
