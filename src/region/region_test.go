package region

import (
	"image"
	"image/color"
	"testing"
)

func TestNormalize(t *testing.T) {
	portrait := image.Rect(0, 0, 1080, 1920)

	tests := []struct {
		name   string
		p0, p1 image.Point
		bounds image.Rectangle
		want   image.Rectangle
	}{
		{
			name: "top-left to bottom-right",
			p0:   image.Pt(10, 10), p1: image.Pt(50, 80),
			bounds: portrait,
			want:   image.Rect(10, 10, 50, 80),
		},
		{
			name: "reversed corners",
			p0:   image.Pt(50, 80), p1: image.Pt(10, 10),
			bounds: portrait,
			want:   image.Rect(10, 10, 50, 80),
		},
		{
			name: "mixed corners",
			p0:   image.Pt(50, 10), p1: image.Pt(10, 80),
			bounds: portrait,
			want:   image.Rect(10, 10, 50, 80),
		},
		{
			name: "height clamped to source",
			p0:   image.Pt(0, 90), p1: image.Pt(20, 120),
			bounds: image.Rect(0, 0, 200, 100),
			want:   image.Rect(0, 90, 20, 100),
		},
		{
			name: "width clamped to source",
			p0:   image.Pt(190, 0), p1: image.Pt(230, 20),
			bounds: image.Rect(0, 0, 200, 100),
			want:   image.Rect(190, 0, 200, 20),
		},
		{
			name: "tap without drag",
			p0:   image.Pt(30, 30), p1: image.Pt(30, 30),
			bounds: portrait,
			want:   image.Rect(30, 30, 30, 30),
		},
		{
			name: "origin beyond bottom edge",
			p0:   image.Pt(5, 150), p1: image.Pt(10, 160),
			bounds: image.Rect(0, 0, 200, 100),
			want:   image.Rect(5, 150, 10, 150),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.p0, tt.p1, tt.bounds)
			if got != tt.want {
				t.Errorf("Normalize(%v, %v) = %v, want %v", tt.p0, tt.p1, got, tt.want)
			}
		})
	}
}

func TestNormalizeClampedHeightIsTen(t *testing.T) {
	r := Normalize(image.Pt(0, 90), image.Pt(5, 120), image.Rect(0, 0, 50, 100))
	if r.Min.Y != 90 || r.Dy() != 10 {
		t.Fatalf("got origin y %d height %d, want 90 and 10", r.Min.Y, r.Dy())
	}
	if r.Min.Y+r.Dy() > 100 {
		t.Fatalf("rectangle leaves source: %v", r)
	}
}

func TestCrop(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 100, 100))
	frame.Set(20, 30, color.RGBA{R: 255, A: 255})

	crop := Crop(frame, image.Rect(20, 30, 60, 100))
	if got := crop.Bounds().Size(); got != image.Pt(40, 70) {
		t.Fatalf("crop size = %v, want 40x70", got)
	}
	r, _, _, _ := crop.At(crop.Bounds().Min.X, crop.Bounds().Min.Y).RGBA()
	if r == 0 {
		t.Errorf("expected crop origin to carry the marked pixel")
	}
}

func TestCropEmpty(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 10, 10))
	if crop := Crop(frame, image.Rect(4, 4, 4, 9)); !crop.Bounds().Empty() {
		t.Errorf("zero-width crop bounds = %v, want empty", crop.Bounds())
	}
	if crop := Crop(nil, image.Rect(0, 0, 1, 1)); crop != nil {
		t.Errorf("nil frame crop = %v, want nil", crop)
	}
}

func TestCropOffsetFrame(t *testing.T) {
	// Frames from a multi-monitor union can start at a negative origin.
	frame := image.NewRGBA(image.Rect(-50, 0, 50, 100))
	crop := Crop(frame, image.Rect(0, 0, 10, 10))
	if got := crop.Bounds().Size(); got != image.Pt(10, 10) {
		t.Errorf("crop size = %v, want 10x10", got)
	}
}

func TestExtract(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 1080, 1920))
	crop, r := Extract(frame, image.Pt(50, 80), image.Pt(10, 10))
	if r != image.Rect(10, 10, 50, 80) {
		t.Errorf("rect = %v", r)
	}
	if crop.Bounds().Dx() != 40 || crop.Bounds().Dy() != 70 {
		t.Errorf("crop bounds = %v", crop.Bounds())
	}

	if crop, _ := Extract(nil, image.Pt(0, 0), image.Pt(5, 5)); crop != nil {
		t.Errorf("Extract(nil) = %v, want nil", crop)
	}
}
