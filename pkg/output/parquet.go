package output

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"

	"github.com/velemoonkon/sonar/pkg/scanner"
)

// ParquetRow is a flattened scan result. Port and DNS results share one
// schema; columns that do not apply to a family stay empty.
type ParquetRow struct {
	ScanID string `parquet:"scan_id,zstd,dict"`
	Family string `parquet:"family,dict"`
	Target string `parquet:"target,zstd,dict"`

	// Port results
	Port    int32  `parquet:"port"`
	State   string `parquet:"state,dict"`
	Banner  string `parquet:"banner,zstd"`
	Service string `parquet:"service,zstd,dict"`

	// DNS results
	Subdomain string `parquet:"subdomain,zstd"`
	IP        string `parquet:"ip,zstd"`

	DurationMs int64 `parquet:"duration_ms"`
}

// ParquetWriter writes scan results to a Parquet file
type ParquetWriter struct {
	file   *os.File
	writer *parquet.GenericWriter[ParquetRow]
	count  int
}

// NewParquetWriter creates a Parquet writer with optimized settings
func NewParquetWriter(filename string) (*ParquetWriter, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet file: %w", err)
	}

	// Configure Parquet writer with compression and optimizations
	writer := parquet.NewGenericWriter[ParquetRow](file,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedDefault}),
		parquet.CreatedBy("sonar", "1.0.0", "go"),
	)

	return &ParquetWriter{
		file:   file,
		writer: writer,
	}, nil
}

// WriteSummary writes every successful outcome of a finished scan
func (w *ParquetWriter) WriteSummary(s scanner.Summary) error {
	if len(s.Results) == 0 {
		return nil
	}

	rows := make([]ParquetRow, 0, len(s.Results))
	for _, o := range s.Results {
		rows = append(rows, outcomeToParquetRow(s, o))
	}

	if _, err := w.writer.Write(rows); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	w.count += len(rows)
	return nil
}

// Close finalizes and closes the Parquet file
func (w *ParquetWriter) Close() error {
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return w.file.Close()
}

// Count returns the number of rows written
func (w *ParquetWriter) Count() int {
	return w.count
}

// outcomeToParquetRow flattens one outcome of a scan into a ParquetRow
func outcomeToParquetRow(s scanner.Summary, o scanner.Outcome) ParquetRow {
	return ParquetRow{
		ScanID:     s.ScanID,
		Family:     string(s.Family),
		Target:     s.Target,
		Port:       int32(o.Port),
		State:      string(o.State),
		Banner:     o.Banner,
		Service:    o.Service,
		Subdomain:  o.Subdomain,
		IP:         o.IP,
		DurationMs: o.Duration.Milliseconds(),
	}
}
