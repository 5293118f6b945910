// Package sidecar serves pre-made transcripts stored next to scans. A scan
// "page1.jpg" is answered by "page1.txt"; uploading a .txt directly works too.
package sidecar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/Floyce/OCR-Sorter/internal/core/domain"
	"github.com/Floyce/OCR-Sorter/internal/core/ports"
)

const maxTranscriptBytes = 1 << 20

type Transcripts struct {
	storage ports.ImageStorage
}

func NewTranscripts(storage ports.ImageStorage) *Transcripts {
	return &Transcripts{storage: storage}
}

func TranscriptKey(imageRef string) string {
	return strings.TrimSuffix(imageRef, path.Ext(imageRef)) + ".txt"
}

// Lookup returns the transcript for imageRef; ok is false when none exists.
func (t *Transcripts) Lookup(ctx context.Context, imageRef string) (text string, ok bool, err error) {
	reader, err := t.storage.Open(ctx, TranscriptKey(imageRef))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("open transcript: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(io.LimitReader(reader, maxTranscriptBytes+1))
	if err != nil {
		return "", false, fmt.Errorf("read transcript: %w", err)
	}
	if len(raw) > maxTranscriptBytes {
		return "", false, domain.WrapError(domain.ErrInvalidInput, "read transcript", fmt.Errorf("transcript for %s exceeds %d bytes", imageRef, maxTranscriptBytes))
	}
	if !utf8.Valid(raw) {
		return "", false, domain.WrapError(domain.ErrInvalidInput, "read transcript", fmt.Errorf("transcript for %s is not utf-8", imageRef))
	}
	return strings.TrimSpace(string(raw)), true, nil
}
