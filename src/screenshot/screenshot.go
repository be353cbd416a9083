package screenshot

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"

	"github.com/disintegration/imaging"
	"github.com/kbinani/screenshot"
)

var ErrNoDisplay = errors.New("no active displays found")

// Grabber captures the full virtual screen.
type Grabber func() (image.Image, error)

// Capture captures the entire virtual screen across all active displays
func Capture() (image.Image, error) {
	union, err := VirtualBounds()
	if err != nil {
		return nil, err
	}
	img, err := screenshot.CaptureRect(union)
	if err != nil {
		return nil, fmt.Errorf("failed to capture screen: %w", err)
	}
	return img, nil
}

// VirtualBounds returns the union of all display bounds.
func VirtualBounds() (image.Rectangle, error) {
	return unionBounds(screenshot.NumActiveDisplays(), screenshot.GetDisplayBounds)
}

func unionBounds(n int, display func(int) image.Rectangle) (image.Rectangle, error) {
	if n == 0 {
		return image.Rectangle{}, ErrNoDisplay
	}
	union := display(0)
	for i := 1; i < n; i++ {
		union = union.Union(display(i))
	}
	return union, nil
}

// FileName is the handoff file for the index-th frame of a capture cycle.
func FileName(index int) string {
	return strconv.Itoa(index) + ".png"
}

// WriteFrame grabs the screen and stores it as dir/<index>.png. The file is
// written under a temporary name and renamed, so readers never observe a
// partial image.
func WriteFrame(grab Grabber, dir string, index int) (string, error) {
	img, err := grab()
	if err != nil {
		return "", fmt.Errorf("capture: %w", err)
	}
	return Save(img, dir, index)
}

func Save(img image.Image, dir string, index int) (string, error) {
	final := filepath.Join(dir, FileName(index))
	tmp, err := os.CreateTemp(dir, "."+FileName(index)+".*.part")
	if err != nil {
		return "", err
	}
	if err := imaging.Encode(tmp, img, imaging.PNG); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("encode png: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return final, nil
}
