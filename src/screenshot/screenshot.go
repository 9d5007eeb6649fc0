package screenshot

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log"
	"time"

	"github.com/kbinani/screenshot"

	"screenshotr/src/capture"
)

var (
	// ErrEmptyRegion is returned for a rectangle with zero width or height.
	ErrEmptyRegion = errors.New("empty capture region")
	// ErrCaptureUnavailable is returned when the screen cannot be read.
	ErrCaptureUnavailable = errors.New("screen capture unavailable")
)

// Renderer rasterizes a screen rectangle.
type Renderer interface {
	Render(rect capture.Rectangle) (image.Image, error)
}

// ScreenRenderer reads pixels from the attached displays.
type ScreenRenderer struct {
	// SettleDelay is waited before reading pixels so selection feedback drawn
	// by the host can disappear first.
	SettleDelay time.Duration

	captureRect func(image.Rectangle) (*image.RGBA, error)
	numDisplays func() int
}

// NewScreenRenderer returns a renderer backed by kbinani/screenshot.
func NewScreenRenderer(settle time.Duration) *ScreenRenderer {
	return &ScreenRenderer{
		SettleDelay: settle,
		captureRect: screenshot.CaptureRect,
		numDisplays: screenshot.NumActiveDisplays,
	}
}

// Render captures exactly the normalized rectangle.
func (r *ScreenRenderer) Render(rect capture.Rectangle) (image.Image, error) {
	if rect.Empty() {
		return nil, fmt.Errorf("%w: width=%d, height=%d", ErrEmptyRegion, rect.Width(), rect.Height())
	}
	if r.numDisplays() == 0 {
		return nil, fmt.Errorf("%w: no active displays found", ErrCaptureUnavailable)
	}
	if r.SettleDelay > 0 {
		time.Sleep(r.SettleDelay)
	}

	bounds := rect.Bounds()
	log.Printf("screenshot: capturing %s", rect)
	img, err := r.captureRect(bounds)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}
	return img, nil
}

// VirtualScreen returns the union of all display bounds.
func VirtualScreen() (image.Rectangle, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return image.Rectangle{}, fmt.Errorf("%w: no active displays found", ErrCaptureUnavailable)
	}
	union := screenshot.GetDisplayBounds(0)
	for i := 1; i < n; i++ {
		union = union.Union(screenshot.GetDisplayBounds(i))
	}
	return union, nil
}

// EncodePNG serializes img losslessly.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image as PNG: %w", err)
	}
	return buf.Bytes(), nil
}

var pngMagic = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

// IsPNG reports whether data starts with the PNG signature.
func IsPNG(data []byte) bool {
	return len(data) >= len(pngMagic) && bytes.Equal(data[:len(pngMagic)], pngMagic)
}
