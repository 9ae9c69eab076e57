package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
)

func TestSaveReturnsPathInsideBase(t *testing.T) {
	base := t.TempDir()
	store, err := New(base)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	path, err := store.Save(context.Background(), "abc_report.pdf", strings.NewReader("%PDF-1.4"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if path != filepath.Join(base, "abc_report.pdf") {
		t.Fatalf("unexpected path %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "%PDF-1.4" {
		t.Fatalf("unexpected content %q, %v", data, err)
	}

	rc, err := store.Open(context.Background(), "abc_report.pdf")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	read, _ := io.ReadAll(rc)
	if string(read) != "%PDF-1.4" {
		t.Fatalf("unexpected read %q", read)
	}
}

func TestSaveKeepsTraversalInsideBase(t *testing.T) {
	base := t.TempDir()
	store, err := New(base)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	path, err := store.Save(context.Background(), "../../escape.txt", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if filepath.Dir(path) != base {
		t.Fatalf("file escaped base dir: %q", path)
	}
}

func TestOpenMissingFile(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = store.Open(context.Background(), "missing.pdf")
	if !domain.IsKind(err, domain.ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}
}

func TestSaveCancelledRemovesPartialFile(t *testing.T) {
	base := t.TempDir()
	store, err := New(base)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Save(ctx, "partial.bin", strings.NewReader("data")); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := os.Stat(filepath.Join(base, "partial.bin")); !os.IsNotExist(err) {
		t.Fatalf("expected partial file removed, got %v", err)
	}
}
