package pdftext

import (
	"testing"

	"github.com/Floyce/OCR-Sorter/internal/core/domain"
)

func TestIsPDF(t *testing.T) {
	if !IsPDF([]byte("%PDF-1.7\n...")) {
		t.Fatalf("expected pdf header to be detected")
	}
	if IsPDF([]byte("\x89PNG\r\n")) {
		t.Fatalf("png must not be detected as pdf")
	}
}

func TestExtractRejectsInvalidDocuments(t *testing.T) {
	for _, data := range [][]byte{[]byte("not a pdf"), []byte("%PDF-1.4\ngarbage without xref")} {
		if _, err := Extract(data); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for %q, got %v", data, err)
		}
	}
}
