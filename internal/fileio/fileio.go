// Package fileio opens and creates files, transparently handling gzip
// compression for paths ending in ".gz".
package fileio

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// IsCompressed reports whether path names a gzip file.
func IsCompressed(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".gz")
}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (rc *readCloser) Close() error {
	var firstErr error
	for _, c := range rc.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Open opens path for reading, decompressing it when it has a .gz suffix.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if !IsCompressed(path) {
		return f, nil
	}

	zr, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read gzip header of %s: %w", path, err)
	}
	return &readCloser{Reader: zr, closers: []io.Closer{zr, f}}, nil
}

type writeCloser struct {
	io.Writer
	closers []io.Closer
}

// Flush pushes pending compressed data to the file so that a reader sees
// everything written so far.
func (wc *writeCloser) Flush() error {
	if f, ok := wc.Writer.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

func (wc *writeCloser) Close() error {
	var firstErr error
	for _, c := range wc.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// OpenFile opens path with the given flags. Writes are compressed when path
// has a .gz suffix; appending to a gzip file adds a new gzip member, which
// readers handle as a concatenated stream.
func OpenFile(path string, flag int, perm os.FileMode) (io.WriteCloser, error) {
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if !IsCompressed(path) {
		return f, nil
	}

	zw := gzip.NewWriter(f)
	return &writeCloser{Writer: zw, closers: []io.Closer{zw, f}}, nil
}

// Create creates or truncates path for writing.
func Create(path string) (io.WriteCloser, error) {
	return OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
}
