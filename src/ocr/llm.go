package ocr

import (
	"context"
	"errors"
	"image"
	"regexp"
	"strings"

	"select2speak/src/llm"
)

// visionModel is the slice of the llm client this backend uses.
type visionModel interface {
	QueryVision(ctx context.Context, png []byte) (string, error)
	Ping(ctx context.Context) error
}

// LLM asks a vision model for a transcription and splits it into blocks on
// blank lines. The model gives no geometry, so every block spans the image.
type LLM struct {
	model visionModel
}

func NewLLM(apiKey, model string, providers []string) *LLM {
	return &LLM{model: llm.New(llm.Config{APIKey: apiKey, Model: model, Providers: providers})}
}

func (l *LLM) Recognize(ctx context.Context, img image.Image) ([]Block, error) {
	const op = "llm.Recognize"
	png, err := EncodePNG(img)
	if err != nil {
		return nil, wrap(op, err, "")
	}
	text, err := l.model.QueryVision(ctx, png)
	switch {
	case errors.Is(err, llm.ErrNoText):
		return nil, nil
	case errors.Is(err, llm.ErrNotConfigured):
		return nil, wrap(op, ErrNotReady, err.Error())
	case err != nil:
		return nil, wrap(op, err, "")
	}
	return SplitBlocks(text, img.Bounds().Sub(img.Bounds().Min)), nil
}

var blankLine = regexp.MustCompile(`\n[ \t]*\n`)

// SplitBlocks separates text on blank lines, dropping empty pieces.
func SplitBlocks(text string, bounds image.Rectangle) []Block {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var blocks []Block
	for _, part := range blankLine.Split(text, -1) {
		if part = strings.TrimSpace(part); part != "" {
			blocks = append(blocks, Block{Text: part, Bounds: bounds})
		}
	}
	return blocks
}

func (l *LLM) Probe(ctx context.Context) error {
	if err := l.model.Ping(ctx); err != nil {
		if errors.Is(err, llm.ErrNotConfigured) {
			return wrap("llm.Probe", ErrNotReady, err.Error())
		}
		return wrap("llm.Probe", err, "")
	}
	return nil
}

func (l *LLM) Close() error { return nil }
