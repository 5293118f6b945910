package tesseract

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/otiai10/gosseract/v2"
)

type clientFake struct {
	text      string
	textErr   error
	release   chan struct{}
	languages []string
	image     []byte
	closed    atomic.Bool
}

func (c *clientFake) SetImageFromBytes(data []byte) error { c.image = data; return nil }

func (c *clientFake) SetLanguage(langs ...string) error { c.languages = langs; return nil }

func (c *clientFake) SetPageSegMode(gosseract.PageSegMode) error { return nil }

func (c *clientFake) Text() (string, error) {
	if c.release != nil {
		<-c.release
	}
	return c.text, c.textErr
}

func (c *clientFake) Close() error {
	c.closed.Store(true)
	return nil
}

func engineWith(fake *clientFake, languages ...string) *Engine {
	return &Engine{clientFactory: func() client { return fake }, languages: languages}
}

func TestRecognizeImageTrimsText(t *testing.T) {
	fake := &clientFake{text: "  CIT 417 Midterm\n\n"}
	engine := engineWith(fake, "eng", "deu")

	got, err := engine.RecognizeImage(context.Background(), []byte("png"))
	if err != nil {
		t.Fatalf("RecognizeImage() error = %v", err)
	}
	if got != "CIT 417 Midterm" {
		t.Fatalf("unexpected text %q", got)
	}
	if !slices.Equal(fake.languages, []string{"eng", "deu"}) || string(fake.image) != "png" {
		t.Fatalf("client not configured: languages=%v image=%q", fake.languages, fake.image)
	}
	if !fake.closed.Load() {
		t.Fatalf("expected client to be closed")
	}
}

func TestRecognizeImageWrapsTextError(t *testing.T) {
	engine := engineWith(&clientFake{textErr: errors.New("leptonica failed")})

	_, err := engine.RecognizeImage(context.Background(), []byte("png"))
	if err == nil || err.Error() != "recognize text: leptonica failed" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestRecognizeImageSkipsCancelledContext(t *testing.T) {
	created := false
	engine := &Engine{clientFactory: func() client { created = true; return &clientFake{} }}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := engine.RecognizeImage(ctx, []byte("png")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if created {
		t.Fatalf("client must not be created for a cancelled context")
	}
}

func TestRecognizeImageReturnsWhenCancelledMidPass(t *testing.T) {
	fake := &clientFake{text: "late", release: make(chan struct{})}
	engine := engineWith(fake)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := engine.RecognizeImage(ctx, []byte("png"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if fake.closed.Load() {
		t.Fatalf("client closed while Text was still running")
	}

	close(fake.release)
	deadline := time.Now().Add(time.Second)
	for !fake.closed.Load() {
		if time.Now().After(deadline) {
			t.Fatalf("background pass never closed its client")
		}
		time.Sleep(time.Millisecond)
	}
}
