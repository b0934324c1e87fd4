package output

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/velemoonkon/sonar/pkg/scanner"
)

// maxBannerWidth keeps long banners from blowing up the table
const maxBannerWidth = 60

// WriteTable renders the successful outcomes of a scan as a table followed by a one-line summary
func WriteTable(w io.Writer, s scanner.Summary) error {
	table := tablewriter.NewWriter(w)

	switch s.Family {
	case scanner.FamilyDNS:
		table.Header("Subdomain", "IP")
		for _, o := range s.Results {
			if err := table.Append([]string{o.Subdomain, o.IP}); err != nil {
				return fmt.Errorf("failed to append row: %w", err)
			}
		}
	default:
		table.Header("Port", "State", "Service", "Banner")
		for _, o := range s.Results {
			if err := table.Append([]string{
				strconv.Itoa(o.Port),
				string(o.State),
				o.Service,
				truncate(o.Banner, maxBannerWidth),
			}); err != nil {
				return fmt.Errorf("failed to append row: %w", err)
			}
		}
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	status := "complete"
	if s.Cancelled {
		status = "cancelled"
	}
	_, err := fmt.Fprintf(w, "%s scan of %s %s: %d/%d probed, %d found in %dms\n",
		s.Family, s.Target, status, s.Completed, s.Total, s.Found, s.DurationMs)
	return err
}

// truncate shortens s to at most n runes, marking the cut with "..."
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
