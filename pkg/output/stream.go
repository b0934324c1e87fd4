package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/velemoonkon/sonar/pkg/scanner"
)

// Report formats written by StreamWriter
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

const reportVersion = "1.0.0"

// StreamWriter writes a single JSON document or Markdown report while the scan runs.
// Results are buffered in batches; the header goes out on creation and the footer
// (with the scan summary, when known) on Close.
type StreamWriter struct {
	file      *os.File
	writer    *bufio.Writer
	results   []any
	batchSize int
	startTime time.Time
	format    string

	written int              // results flushed so far
	section string           // markdown table currently open ("ports" or "dns")
	summary *scanner.Summary // set by Finish
}

// NewStreamWriter creates a report writer for filename ("-" for stdout).
// batchSize controls how many results are buffered before writing (default 100).
func NewStreamWriter(filename string, format string, startTime time.Time, batchSize int) (*StreamWriter, error) {
	if format != FormatJSON && format != FormatMarkdown {
		return nil, fmt.Errorf("unknown report format %q", format)
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	file := os.Stdout
	if filename != "-" && filename != "" {
		var err error
		file, err = os.Create(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file: %w", err)
		}
	}

	sw := &StreamWriter{
		file:      file,
		writer:    bufio.NewWriterSize(file, 64*1024),
		results:   make([]any, 0, batchSize),
		batchSize: batchSize,
		startTime: startTime,
		format:    format,
	}

	var err error
	if format == FormatJSON {
		err = sw.writeJSONHeader()
	} else {
		err = sw.writeMarkdownHeader()
	}
	if err != nil {
		sw.closeFile()
		return nil, err
	}
	return sw, nil
}

// WriteResult buffers one result record (scanner.PortResult or scanner.DNSResult)
func (sw *StreamWriter) WriteResult(record any) error {
	sw.results = append(sw.results, record)
	if len(sw.results) >= sw.batchSize {
		return sw.flushBatch()
	}
	return nil
}

// Emit returns an EmitFunc that feeds result events into the report
func (sw *StreamWriter) Emit() scanner.EmitFunc {
	return func(ev scanner.Event) error {
		if ev.Type != scanner.EventResult || ev.Result == nil {
			return nil
		}
		return sw.WriteResult(ev.Result)
	}
}

// Finish records the scan summary for the footer
func (sw *StreamWriter) Finish(s scanner.Summary) error {
	sw.summary = &s
	return nil
}

// Count returns the number of results written so far
func (sw *StreamWriter) Count() int {
	return sw.written + len(sw.results)
}

// flushBatch writes buffered results to the file
func (sw *StreamWriter) flushBatch() error {
	if len(sw.results) == 0 {
		return nil
	}

	var err error
	if sw.format == FormatJSON {
		err = sw.writeJSONBatch()
	} else {
		err = sw.writeMarkdownBatch()
	}
	if err != nil {
		return err
	}

	sw.written += len(sw.results)
	sw.results = sw.results[:0]
	return sw.writer.Flush()
}

// Close writes the remaining results and the footer, then closes the file
func (sw *StreamWriter) Close() error {
	if err := sw.flushBatch(); err != nil {
		sw.closeFile()
		return err
	}

	var err error
	if sw.format == FormatJSON {
		err = sw.writeJSONFooter()
	} else {
		err = sw.writeMarkdownFooter()
	}
	if err == nil {
		err = sw.writer.Flush()
	}
	if closeErr := sw.closeFile(); err == nil {
		err = closeErr
	}
	return err
}

func (sw *StreamWriter) closeFile() error {
	// Don't close stdout
	if sw.file == os.Stdout {
		return nil
	}
	return sw.file.Close()
}

// JSON document

func (sw *StreamWriter) writeJSONHeader() error {
	_, err := fmt.Fprintf(sw.writer, `{
  "scan_info": {
    "start_time": %q,
    "scanner_version": %q
  },
  "results": [`, sw.startTime.Format(time.RFC3339), reportVersion)
	return err
}

func (sw *StreamWriter) writeJSONBatch() error {
	for i, record := range sw.results {
		data, err := json.MarshalIndent(record, "    ", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}

		sep := ",\n    "
		if sw.written == 0 && i == 0 {
			sep = "\n    "
		}
		if _, err := sw.writer.WriteString(sep); err != nil {
			return err
		}
		if _, err := sw.writer.Write(data); err != nil {
			return err
		}
	}
	return nil
}

func (sw *StreamWriter) writeJSONFooter() error {
	closing := "]"
	if sw.written > 0 {
		closing = "\n  ]"
	}
	if _, err := sw.writer.WriteString(closing); err != nil {
		return err
	}

	if sw.summary != nil {
		data, err := json.MarshalIndent(sw.summary, "  ", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal summary: %w", err)
		}
		if _, err := sw.writer.WriteString(",\n  \"summary\": "); err != nil {
			return err
		}
		if _, err := sw.writer.Write(data); err != nil {
			return err
		}
	}
	_, err := sw.writer.WriteString("\n}\n")
	return err
}

// Markdown report

func (sw *StreamWriter) writeMarkdownHeader() error {
	_, err := fmt.Fprintf(sw.writer, "# Sonar Report\n\n**Scan Date:** %s\n\n", sw.startTime.Format(time.RFC3339))
	return err
}

func (sw *StreamWriter) writeMarkdownBatch() error {
	for _, record := range sw.results {
		var line string
		switch r := record.(type) {
		case scanner.PortResult:
			if err := sw.openSection("ports", "| Port | State | Service | Banner |\n|---:|---|---|---|\n"); err != nil {
				return err
			}
			line = fmt.Sprintf("| %d | %s | %s | %s |\n",
				r.Port, r.State, mdCell(r.Service), mdCell(truncate(r.Banner, maxBannerWidth)))
		case scanner.DNSResult:
			if err := sw.openSection("dns", "| Subdomain | IP |\n|---|---|\n"); err != nil {
				return err
			}
			line = fmt.Sprintf("| %s | %s |\n", mdCell(r.Subdomain), mdCell(r.IP))
		default:
			return fmt.Errorf("unsupported result record %T", record)
		}
		if _, err := sw.writer.WriteString(line); err != nil {
			return err
		}
	}
	return nil
}

// openSection starts a results table unless one of that kind is already open
func (sw *StreamWriter) openSection(kind, header string) error {
	if sw.section == kind {
		return nil
	}
	sw.section = kind
	_, err := sw.writer.WriteString(header)
	return err
}

func (sw *StreamWriter) writeMarkdownFooter() error {
	var b strings.Builder
	if sw.written == 0 {
		b.WriteString("_No results._\n")
	}
	b.WriteString("\n")

	if s := sw.summary; s != nil {
		status := "complete"
		if s.Cancelled {
			status = "cancelled"
		}
		fmt.Fprintf(&b, "**Target:** %s (%s scan, %s)  \n", mdCell(s.Target), s.Family, status)
		fmt.Fprintf(&b, "**Probed:** %d/%d  \n", s.Completed, s.Total)
		fmt.Fprintf(&b, "**Found:** %d  \n", s.Found)
		fmt.Fprintf(&b, "**Scan Duration:** %s\n", time.Duration(s.DurationMs)*time.Millisecond)
	} else {
		fmt.Fprintf(&b, "**Scan Duration:** %s\n", time.Since(sw.startTime).Round(time.Millisecond))
	}

	_, err := sw.writer.WriteString(b.String())
	return err
}

// mdCell escapes a value for a Markdown table cell
func mdCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\r", "")
	return strings.ReplaceAll(s, "\n", " ")
}
