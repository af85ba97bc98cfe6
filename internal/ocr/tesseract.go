//go:build tesseract

package ocr

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog"

	"pagerecon/internal/logger"
)

// TesseractRecognizer runs regions through a fixed pool of Tesseract
// engines. A gosseract client is not safe for concurrent use, so each call
// borrows one client for its duration.
type TesseractRecognizer struct {
	clients chan *gosseract.Client
	size    int
	config  Config
	log     zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// NewTesseractRecognizer creates cfg.PoolSize engines configured for
// cfg.Languages in single-block segmentation mode.
func NewTesseractRecognizer(cfg Config) (*TesseractRecognizer, error) {
	const op = "NewTesseractRecognizer"

	size := cfg.PoolSize
	if size < 1 {
		size = 1
	}
	langs := cfg.Languages
	if len(langs) == 0 {
		langs = []string{"eng"}
	}

	t := &TesseractRecognizer{
		clients: make(chan *gosseract.Client, size),
		size:    size,
		config:  cfg,
		log:     logger.WithComponent("tesseract"),
	}
	for i := 0; i < size; i++ {
		c := gosseract.NewClient()
		if err := c.SetLanguage(langs...); err != nil {
			c.Close()
			t.drain(i)
			return nil, WrapOCRError(BackendTesseract, op, err, fmt.Sprintf("languages %v", langs))
		}
		if err := c.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
			c.Close()
			t.drain(i)
			return nil, WrapOCRError(BackendTesseract, op, err, "page segmentation mode")
		}
		t.clients <- c
	}

	t.log.Debug().Int("pool_size", size).Strs("languages", langs).Msg("Tesseract engines ready")
	return t, nil
}

type tesseractResult struct {
	text string
	err  error
}

// Recognize crops the region and runs it through a pooled engine. If ctx
// ends first the call returns immediately; the engine finishes in the
// background and goes back to the pool.
func (t *TesseractRecognizer) Recognize(ctx context.Context, img image.Image, region image.Rectangle) (string, error) {
	const op = "Recognize"

	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return "", WrapOCRError(BackendTesseract, op, ErrRecognizerClosed, "")
	}

	content, err := encodePNG(img, region)
	if err != nil {
		return "", WrapOCRError(BackendTesseract, op, err, fmt.Sprintf("region %v", region))
	}

	ctx, cancel := withTimeout(ctx, t.config.Timeout)
	defer cancel()

	var c *gosseract.Client
	select {
	case c = <-t.clients:
	case <-ctx.Done():
		return "", WrapOCRError(BackendTesseract, op, ctx.Err(), "waiting for engine")
	}

	done := make(chan tesseractResult, 1)
	go func() {
		defer func() { t.clients <- c }()
		if err := c.SetImageFromBytes(content); err != nil {
			done <- tesseractResult{err: err}
			return
		}
		text, err := c.Text()
		done <- tesseractResult{text: text, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return "", WrapOCRError(BackendTesseract, op, ErrOCRFailed, res.err.Error())
		}
		text := JoinLines(res.text)
		t.log.Trace().Stringer("region", region).Int("chars", len(text)).Msg("Region recognized")
		return text, nil
	case <-ctx.Done():
		return "", WrapOCRError(BackendTesseract, op, ctx.Err(), fmt.Sprintf("region %v", region))
	}
}

// Close waits for in-flight calls and releases every engine.
func (t *TesseractRecognizer) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	return t.drain(t.size)
}

func (t *TesseractRecognizer) drain(n int) error {
	var firstErr error
	for i := 0; i < n; i++ {
		c := <-t.clients
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
