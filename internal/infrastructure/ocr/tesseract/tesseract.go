// Package tesseract recognizes text in normalized page images with the
// Tesseract engine through gosseract.
package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// client is the part of *gosseract.Client the engine drives.
type client interface {
	SetImageFromBytes(data []byte) error
	SetLanguage(langs ...string) error
	SetPageSegMode(mode gosseract.PageSegMode) error
	Text() (string, error)
	Close() error
}

type Engine struct {
	clientFactory func() client
	languages     []string
}

func NewEngine(languages []string) *Engine {
	return &Engine{
		clientFactory: func() client { return gosseract.NewClient() },
		languages:     languages,
	}
}

func (e *Engine) Name() string { return "tesseract" }

type recognition struct {
	text string
	err  error
}

// RecognizeImage runs one OCR pass over png. A fresh client is used per page
// so a crashed page never poisons the next one.
//
// Tesseract cannot be interrupted once it starts. On cancellation the call
// returns ctx.Err() at once and the pass finishes in the background, closing
// its client when done.
func (e *Engine) RecognizeImage(ctx context.Context, png []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	done := make(chan recognition, 1)
	go func() {
		text, err := e.recognize(png)
		done <- recognition{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.text, r.err
	}
}

func (e *Engine) recognize(png []byte) (string, error) {
	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(png); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	if len(e.languages) > 0 {
		if err := c.SetLanguage(e.languages...); err != nil {
			return "", fmt.Errorf("set languages: %w", err)
		}
	}
	if err := c.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		return "", fmt.Errorf("set page segmentation: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return strings.TrimSpace(text), nil
}
