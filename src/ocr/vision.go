package ocr

import (
	"context"
	"errors"
	"image"
	"os"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"
)

var ErrMissingCredentials = errors.New("missing Google Cloud credentials: set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS")

// Vision uses Google Cloud Vision document text detection. Blocks come from
// the first page of the full text annotation.
type Vision struct {
	client *vision.ImageAnnotatorClient
	hints  []string
}

// NewVision reads credentials from GOOGLE_CREDENTIALS (inline JSON), then
// GOOGLE_APPLICATION_CREDENTIALS (file), then application defaults.
func NewVision(ctx context.Context, lang string) (*Vision, error) {
	const op = "NewVision"

	var client *vision.ImageAnnotatorClient
	var err error
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
		if err != nil {
			return nil, wrap(op, err, "GOOGLE_CREDENTIALS")
		}
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsFile(credFile))
		if err != nil {
			return nil, wrap(op, err, "GOOGLE_APPLICATION_CREDENTIALS")
		}
	} else {
		client, err = vision.NewImageAnnotatorClient(ctx)
		if err != nil {
			return nil, wrap(op, ErrMissingCredentials, err.Error())
		}
	}

	return &Vision{client: client, hints: languageHints(lang)}, nil
}

// languageHints maps tesseract-style codes ("eng+ita") to the ISO 639-1
// hints Vision expects. Unknown codes are passed through.
func languageHints(lang string) []string {
	var hints []string
	for _, l := range strings.Split(lang, "+") {
		switch l = strings.TrimSpace(l); l {
		case "":
		case "eng":
			hints = append(hints, "en")
		case "ita":
			hints = append(hints, "it")
		default:
			hints = append(hints, l)
		}
	}
	return hints
}

func (v *Vision) Recognize(ctx context.Context, img image.Image) ([]Block, error) {
	const op = "vision.Recognize"
	png, err := EncodePNG(img)
	if err != nil {
		return nil, wrap(op, err, "")
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: png},
			Features: []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
			ImageContext: &visionpb.ImageContext{
				LanguageHints: v.hints,
			},
		}},
	}
	resp, err := v.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return nil, wrap(op, err, "Vision API call failed")
	}
	if len(resp.Responses) == 0 {
		return nil, nil
	}
	r := resp.Responses[0]
	if r.Error != nil {
		return nil, wrap(op, errors.New(r.Error.Message), "Vision API error")
	}
	return blocksFromAnnotation(r.FullTextAnnotation), nil
}

func blocksFromAnnotation(a *visionpb.TextAnnotation) []Block {
	if a == nil || len(a.Pages) == 0 {
		return nil
	}
	var blocks []Block
	for _, b := range a.Pages[0].Blocks {
		var sb strings.Builder
		for _, p := range b.Paragraphs {
			for _, w := range p.Words {
				for _, s := range w.Symbols {
					sb.WriteString(s.Text)
					sb.WriteString(breakText(s.GetProperty().GetDetectedBreak().GetType()))
				}
			}
		}
		blocks = append(blocks, Block{
			Text:       strings.TrimSpace(sb.String()),
			Bounds:     polyBounds(b.BoundingBox),
			Confidence: float64(b.Confidence),
		})
	}
	return blocks
}

func breakText(t visionpb.TextAnnotation_DetectedBreak_BreakType) string {
	switch t {
	case visionpb.TextAnnotation_DetectedBreak_SPACE, visionpb.TextAnnotation_DetectedBreak_SURE_SPACE:
		return " "
	case visionpb.TextAnnotation_DetectedBreak_EOL_SURE_SPACE, visionpb.TextAnnotation_DetectedBreak_LINE_BREAK:
		return "\n"
	case visionpb.TextAnnotation_DetectedBreak_HYPHEN:
		return "-\n"
	default:
		return ""
	}
}

func polyBounds(p *visionpb.BoundingPoly) image.Rectangle {
	if p == nil || len(p.Vertices) == 0 {
		return image.Rectangle{}
	}
	r := image.Rectangle{
		Min: image.Pt(int(p.Vertices[0].X), int(p.Vertices[0].Y)),
		Max: image.Pt(int(p.Vertices[0].X), int(p.Vertices[0].Y)),
	}
	for _, v := range p.Vertices[1:] {
		r.Min.X = min(r.Min.X, int(v.X))
		r.Min.Y = min(r.Min.Y, int(v.Y))
		r.Max.X = max(r.Max.X, int(v.X))
		r.Max.Y = max(r.Max.Y, int(v.Y))
	}
	return r
}

func (v *Vision) Probe(ctx context.Context) error {
	if v.client == nil {
		return wrap("vision.Probe", ErrNotReady, "no client")
	}
	return nil
}

func (v *Vision) Close() error {
	if v.client != nil {
		return v.client.Close()
	}
	return nil
}
