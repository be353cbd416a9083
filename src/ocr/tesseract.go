package ocr

import (
	"context"
	"image"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract runs the local tesseract engine through gosseract, one client per
// call. Block-level bounding boxes keep the engine's layout order.
type Tesseract struct {
	lang string
	// gosseract clients share global tesseract state per process.
	mu sync.Mutex
}

func NewTesseract(lang string) *Tesseract {
	if lang == "" {
		lang = "eng"
	}
	return &Tesseract{lang: lang}
}

func (t *Tesseract) Recognize(ctx context.Context, img image.Image) ([]Block, error) {
	const op = "tesseract.Recognize"
	png, err := EncodePNG(img)
	if err != nil {
		return nil, wrap(op, err, "")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type result struct {
		blocks []Block
		err    error
	}
	done := make(chan result, 1)
	go func() {
		blocks, err := t.run(png)
		done <- result{blocks, err}
	}()

	select {
	case <-ctx.Done():
		return nil, wrap(op, ctx.Err(), "deadline")
	case r := <-done:
		return r.blocks, wrap(op, r.err, "")
	}
}

func (t *Tesseract) run(png []byte) ([]Block, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(strings.Split(t.lang, "+")...); err != nil {
		return nil, err
	}
	if err := client.SetImageFromBytes(png); err != nil {
		return nil, err
	}
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_BLOCK)
	if err != nil {
		return nil, notReadyIfInit(err)
	}

	blocks := make([]Block, 0, len(boxes))
	for _, b := range boxes {
		blocks = append(blocks, Block{
			Text:       strings.TrimSpace(b.Word),
			Bounds:     b.Box,
			Confidence: b.Confidence,
		})
	}
	return blocks, nil
}

// Probe runs the engine on a blank image, which fails when language data is
// missing.
func (t *Tesseract) Probe(ctx context.Context) error {
	blank := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range blank.Pix {
		blank.Pix[i] = 0xFF
	}
	png, err := EncodePNG(blank)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(strings.Split(t.lang, "+")...); err != nil {
		return wrap("tesseract.Probe", ErrNotReady, err.Error())
	}
	if err := client.SetImageFromBytes(png); err != nil {
		return wrap("tesseract.Probe", ErrNotReady, err.Error())
	}
	if _, err := client.Text(); err != nil {
		return wrap("tesseract.Probe", ErrNotReady, err.Error())
	}
	return nil
}

func (t *Tesseract) Close() error { return nil }

// tesseract reports missing traineddata as an initialization failure.
func notReadyIfInit(err error) error {
	if strings.Contains(strings.ToLower(err.Error()), "init") {
		return wrap("tesseract", ErrNotReady, err.Error())
	}
	return err
}
