// Package ocr turns an image into an ordered list of recognized text blocks.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"

	"select2speak/src/config"
)

var (
	// ErrNotReady means the engine is installed but cannot run yet, for example
	// because language data is missing.
	ErrNotReady = errors.New("ocr engine not ready")

	ErrEmptyImage = errors.New("empty image")
)

// Block is one recognized region of text. Bounds are relative to the image
// handed to Recognize.
type Block struct {
	Text       string          `json:"text"`
	Bounds     image.Rectangle `json:"bounds"`
	Confidence float64         `json:"confidence,omitempty"`
}

// Recognizer returns blocks in engine order; callers must not re-sort them.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) ([]Block, error)
	// Probe reports whether the engine can run right now.
	Probe(ctx context.Context) error
	Close() error
}

// OCRError wraps errors with the failing operation.
type OCRError struct {
	Op      string
	Err     error
	Details string
}

func (e *OCRError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ocr: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("ocr: %s failed: %v", e.Op, e.Err)
}

func (e *OCRError) Unwrap() error { return e.Err }

func wrap(op string, err error, details string) error {
	if err == nil {
		return nil
	}
	var oe *OCRError
	if errors.As(err, &oe) {
		return err
	}
	return &OCRError{Op: op, Err: err, Details: details}
}

// New builds the engine named by cfg.OCREngine.
func New(ctx context.Context, cfg *config.Config) (Recognizer, error) {
	var r Recognizer
	var err error
	switch cfg.OCREngine {
	case config.EngineVision:
		r, err = NewVision(ctx, cfg.OCRLanguage)
	case config.EngineLLM:
		r = NewLLM(cfg.APIKey, cfg.Model, cfg.Providers)
	default:
		r = NewTesseract(cfg.OCRLanguage)
	}
	if err != nil {
		return nil, err
	}
	return WithDeadline(r, time.Duration(cfg.OCRDeadlineSec)*time.Second), nil
}

// Unavailable stands in for an engine that failed to initialize. Every call
// reports ErrNotReady with cause attached.
func Unavailable(cause error) Recognizer {
	return unavailable{cause: cause}
}

type unavailable struct{ cause error }

func (u unavailable) Recognize(context.Context, image.Image) ([]Block, error) {
	return nil, u.err("Recognize")
}

func (u unavailable) Probe(context.Context) error { return u.err("Probe") }

func (u unavailable) Close() error { return nil }

func (u unavailable) err(op string) error {
	details := ""
	if u.cause != nil {
		details = u.cause.Error()
	}
	return wrap(op, ErrNotReady, details)
}

// WithDeadline bounds every Recognize call by d. A non-positive d disables it.
func WithDeadline(r Recognizer, d time.Duration) Recognizer {
	if d <= 0 {
		return r
	}
	return &deadlined{Recognizer: r, d: d}
}

type deadlined struct {
	Recognizer
	d time.Duration
}

func (r *deadlined) Recognize(ctx context.Context, img image.Image) ([]Block, error) {
	ctx, cancel := context.WithTimeout(ctx, r.d)
	defer cancel()
	return r.Recognizer.Recognize(ctx, img)
}

// EncodePNG serializes img for engines that take encoded bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
