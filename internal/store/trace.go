package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/cwbudde/lgadock/internal/dock"
	"github.com/cwbudde/lgadock/internal/fileio"
)

const (
	traceName           = "trace.jsonl"
	compressedTraceName = traceName + ".gz"
)

// TraceEntry is one line of a generation trace: the summary of one run
// after one generation.
type TraceEntry = dock.GenerationSummary

// TracePath returns the trace file path of a job.
func TracePath(baseDir, jobID string, compress bool) string {
	name := traceName
	if compress {
		name = compressedTraceName
	}
	return filepath.Join(baseDir, "jobs", jobID, name)
}

// TraceWriter writes trace entries to a JSONL file, gzip-compressed when
// requested. It is safe for concurrent use and implements dock.Observer.
type TraceWriter struct {
	mu     sync.Mutex
	file   io.WriteCloser
	writer *bufio.Writer
	path   string
	err    error
}

// NewTraceWriter creates a new trace writer for the given job at
// <baseDir>/jobs/<jobID>/trace.jsonl (or trace.jsonl.gz). An existing trace
// is truncated.
func NewTraceWriter(baseDir, jobID string, compress bool) (*TraceWriter, error) {
	path := TracePath(baseDir, jobID, compress)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create job directory: %w", err)
	}

	file, err := fileio.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	return &TraceWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024),
		path:   path,
	}, nil
}

// Write appends a trace entry to the file.
// The entry is buffered and will be written on Flush() or Close().
func (tw *TraceWriter) Write(entry TraceEntry) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal trace entry: %w", err)
	}
	if _, err := tw.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	if err := tw.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	return nil
}

// OnGeneration implements dock.Observer. The first write error is kept and
// reported by Err and Close; later entries are dropped.
func (tw *TraceWriter) OnGeneration(s dock.GenerationSummary) {
	tw.mu.Lock()
	failed := tw.err != nil
	tw.mu.Unlock()
	if failed {
		return
	}

	if err := tw.Write(s); err != nil {
		slog.Warn("Failed to write trace entry", "path", tw.path, "error", err)
		tw.mu.Lock()
		tw.err = err
		tw.mu.Unlock()
	}
}

// Err returns the first error recorded by OnGeneration.
func (tw *TraceWriter) Err() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.err
}

// Flush writes any buffered data to the file, so that a reader sees every
// entry written so far.
func (tw *TraceWriter) Flush() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace writer: %w", err)
	}
	if f, ok := tw.file.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("failed to flush compressed trace: %w", err)
		}
	}
	if f, ok := tw.file.(*os.File); ok {
		if err := f.Sync(); err != nil {
			return fmt.Errorf("failed to sync trace file: %w", err)
		}
	}
	return nil
}

// Close flushes buffered data and closes the trace file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		tw.file.Close()
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if err := tw.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return tw.err
}

// Path returns the filesystem path to the trace file.
func (tw *TraceWriter) Path() string {
	return tw.path
}

// TraceReader reads trace entries from a JSONL file.
type TraceReader struct {
	file    io.ReadCloser
	scanner *bufio.Scanner
}

// NewTraceReader opens the trace of the given job, plain or compressed.
func NewTraceReader(baseDir, jobID string) (*TraceReader, error) {
	for _, compress := range []bool{false, true} {
		path := TracePath(baseDir, jobID, compress)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return OpenTrace(path)
	}
	return nil, &NotFoundError{JobID: jobID}
}

// OpenTrace opens the trace file at path.
func OpenTrace(path string) (*TraceReader, error) {
	file, err := fileio.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{JobID: filepath.Base(filepath.Dir(path))}
		}
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	return &TraceReader{
		file:    file,
		scanner: scanner,
	}, nil
}

// Read reads the next trace entry from the file.
// Returns io.EOF when no more entries are available.
func (tr *TraceReader) Read() (*TraceEntry, error) {
	if !tr.scanner.Scan() {
		if err := tr.scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to scan trace line: %w", err)
		}
		return nil, io.EOF
	}

	var entry TraceEntry
	if err := json.Unmarshal(tr.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trace entry: %w", err)
	}
	return &entry, nil
}

// ReadAll reads all trace entries from the file.
func (tr *TraceReader) ReadAll() ([]TraceEntry, error) {
	var entries []TraceEntry
	for {
		entry, err := tr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

// Close closes the trace reader.
func (tr *TraceReader) Close() error {
	if err := tr.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// DeleteTrace removes the trace files of the given job.
// Returns nil if none exist.
func DeleteTrace(baseDir, jobID string) error {
	for _, compress := range []bool{false, true} {
		err := os.Remove(TracePath(baseDir, jobID, compress))
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete trace file: %w", err)
		}
	}
	return nil
}
