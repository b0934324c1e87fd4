package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/velemoonkon/sonar/pkg/scanner"
)

// Writer writes scan events as JSONL (JSON Lines) - one JSON object per line.
// Every event is flushed as soon as it is written, so a consumer reading the
// other end (a pipe, a chunked HTTP response) sees it immediately.
type Writer struct {
	mu      sync.Mutex
	file    *os.File
	writer  *bufio.Writer
	flusher http.Flusher
	count   int
}

// NewWriter creates a JSONL writer to the specified file
// Use "-" for stdout
func NewWriter(filename string) (*Writer, error) {
	var file *os.File
	var err error

	if filename == "-" || filename == "" {
		file = os.Stdout
	} else {
		file, err = os.Create(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file: %w", err)
		}
	}

	return &Writer{
		file:   file,
		writer: bufio.NewWriterSize(file, 4*1024),
	}, nil
}

// NewWriterFromWriter creates a JSONL writer from an existing io.Writer.
// If w is an http.ResponseWriter (or anything implementing http.Flusher)
// each event is pushed to the client as its own chunk.
func NewWriterFromWriter(w io.Writer) *Writer {
	jw := &Writer{
		writer: bufio.NewWriterSize(w, 4*1024),
	}
	if f, ok := w.(http.Flusher); ok {
		jw.flusher = f
	}
	return jw
}

// Write writes a single event as a JSON line and flushes it
func (w *Writer) Write(ev scanner.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.writer.Write(data); err != nil {
		return err
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return err
	}
	if err := w.writer.Flush(); err != nil {
		return err
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}

	w.count++
	return nil
}

// Emit returns an EmitFunc writing to w
func (w *Writer) Emit() scanner.EmitFunc {
	return w.Write
}

// Flush forces any buffered data to be written
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writer.Flush()
}

// Close flushes and closes the writer
func (w *Writer) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}

	// Don't close stdout
	if w.file != nil && w.file != os.Stdout {
		return w.file.Close()
	}

	return nil
}

// Count returns the number of events written
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}
