// Package pdftext reads the embedded text layer of born-digital PDF papers,
// which skips OCR entirely.
package pdftext

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/Floyce/OCR-Sorter/internal/core/domain"
)

var magic = []byte("%PDF-")

func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, magic)
}

// Extract returns the plain text of every page. Scanned PDFs without a text
// layer yield an empty string.
func Extract(data []byte) (text string, err error) {
	if !IsPDF(data) {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract pdf text", errors.New("missing pdf header"))
	}
	defer func() {
		// the parser panics on some malformed cross-reference tables
		if r := recover(); r != nil {
			err = domain.WrapError(domain.ErrInvalidInput, "extract pdf text", fmt.Errorf("malformed pdf: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "open pdf", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}
