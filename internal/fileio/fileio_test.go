package fileio

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestCreateOpen_PlainAndCompressed(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"data.json", "data.json.gz"} {
		path := filepath.Join(dir, name)

		w, err := Create(path)
		if err != nil {
			t.Fatalf("Create(%s) failed: %v", name, err)
		}
		if _, err := w.Write([]byte(`{"ok":true}`)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}

		r, err := Open(path)
		if err != nil {
			t.Fatalf("Open(%s) failed: %v", name, err)
		}
		data, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			t.Fatalf("ReadAll failed: %v", err)
		}
		if string(data) != `{"ok":true}` {
			t.Errorf("%s: expected round trip, got %q", name, data)
		}
	}
}

func TestCompressedFileIsGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.gz")
	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	w.Write([]byte("hello"))
	w.Close()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(raw) < 2 || raw[0] != 0x1f || raw[1] != 0x8b {
		t.Errorf("Expected gzip magic bytes, got % x", raw[:2])
	}
}

func TestAppendCompressedMembers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl.gz")

	for _, line := range []string{"a\n", "b\n"} {
		w, err := OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			t.Fatalf("OpenFile failed: %v", err)
		}
		w.Write([]byte(line))
		w.Close()
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()
	data, _ := io.ReadAll(r)
	if string(data) != "a\nb\n" {
		t.Errorf("Expected concatenated members, got %q", data)
	}
}

func TestOpen_Missing(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.gz")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestCreate_FlushCompressed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.jsonl.gz")
	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer w.Close()

	line := []byte("{\"run\":0}\n")
	if _, err := w.Write(line); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	f, ok := w.(interface{ Flush() error })
	if !ok {
		t.Fatal("compressed writer should support Flush")
	}
	if err := f.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	// The stream has no trailer yet, but the flushed data is readable.
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()
	buf := make([]byte, len(line))
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatalf("ReadFull failed: %v", err)
	}
	if string(buf) != string(line) {
		t.Errorf("Expected %q, got %q", line, buf)
	}
}
