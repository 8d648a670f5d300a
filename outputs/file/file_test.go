package file_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/justapithecus/conduit/chunk"
	"github.com/justapithecus/conduit/outputs/file"
)

func TestSink_WriteAppends(t *testing.T) {
	dir := t.TempDir()
	s, err := file.New(file.Config{Dir: dir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	c := chunk.NewMemoryChunk("app.access")
	if err := c.Append([]byte("line one\n")); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(c); err != nil {
		t.Fatalf("write: %v", err)
	}

	c2 := chunk.NewMemoryChunk("app.access")
	if err := c2.Append([]byte("line two\n")); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(c2); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "app.access.log"))
	if err != nil {
		t.Fatalf("read output file: %v", err)
	}
	if string(data) != "line one\nline two\n" {
		t.Fatalf("unexpected file content: %q", data)
	}
}

func TestSink_CloseReleasesHandles(t *testing.T) {
	dir := t.TempDir()
	s, err := file.New(file.Config{Dir: dir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	c := chunk.NewMemoryChunk("k")
	if err := c.Append([]byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(c); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
