package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Floyce/OCR-Sorter/internal/core/domain"
)

func TestSaveAndOpen(t *testing.T) {
	dir := t.TempDir()
	storage, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := storage.Save(context.Background(), "abc_page.png", strings.NewReader("pixels")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	rc, err := storage.Open(context.Background(), "abc_page.png")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(raw) != "pixels" {
		t.Fatalf("unexpected content %q", raw)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the committed file, got %d entries", len(entries))
	}
}

func TestRejectsEscapingKeys(t *testing.T) {
	dir := t.TempDir()
	storage, err := New(filepath.Join(dir, "scans"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for _, key := range []string{"", "..", "../outside.png", "nested/page.png"} {
		if err := storage.Save(context.Background(), key, strings.NewReader("x")); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("key %q: expected ErrInvalidInput, got %v", key, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "outside.png")); !os.IsNotExist(err) {
		t.Fatalf("file escaped storage directory")
	}
}

func TestOpenMissingKey(t *testing.T) {
	storage, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := storage.Open(context.Background(), "missing.png"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDeleteRemovesFile(t *testing.T) {
	dir := t.TempDir()
	storage, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := storage.Save(context.Background(), "abc_page.png", strings.NewReader("pixels")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := storage.Delete(context.Background(), "abc_page.png"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "abc_page.png")); !os.IsNotExist(err) {
		t.Fatalf("expected file to be removed, stat error = %v", err)
	}
	if err := storage.Delete(context.Background(), "abc_page.png"); err != nil {
		t.Fatalf("Delete() of a missing file error = %v", err)
	}
	if err := storage.Delete(context.Background(), "../x"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for escaping key, got %v", err)
	}
}
