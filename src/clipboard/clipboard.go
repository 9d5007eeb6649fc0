package clipboard

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // decoder for file drops
	_ "image/jpeg" // decoder for file drops
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.design/x/clipboard"
	_ "golang.org/x/image/bmp" // decoder for file drops

	"screenshotr/src/screenshot"
)

var ErrNoImage = errors.New("clipboard holds no image")

var (
	writeMu sync.Mutex

	readFmt  = clipboard.Read
	writeFmt = func(f clipboard.Format, b []byte) { clipboard.Write(f, b) }
)

func Init() error {
	return clipboard.Init()
}

// Write performs a mutex-guarded clipboard write to prevent corruption under parallel writes.
func Write(text string) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	writeFmt(clipboard.FmtText, []byte(text))
	return nil
}

// Image is an image taken from the clipboard. Name is set when it came from
// a copied file.
type Image struct {
	PNG  []byte
	Name string
}

// ReadImage returns the clipboard image as PNG. Raw image data wins; otherwise
// the clipboard text is tried as the path of a copied image file.
func ReadImage() (Image, error) {
	if raw := readFmt(clipboard.FmtImage); len(raw) > 0 {
		data, err := toPNG(raw)
		if err != nil {
			return Image{}, err
		}
		return Image{PNG: data}, nil
	}
	return imageFromText(string(readFmt(clipboard.FmtText)))
}

// imageFromText handles file managers that put a path, or a list of file://
// URIs, on the clipboard. The first entry is used.
func imageFromText(text string) (Image, error) {
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(text), "\n", 2)[0])
	if line == "" {
		return Image{}, ErrNoImage
	}
	path := line
	if strings.HasPrefix(line, "file://") {
		u, err := url.Parse(line)
		if err != nil {
			return Image{}, fmt.Errorf("%w: %v", ErrNoImage, err)
		}
		path = u.Path
	}

	st, err := os.Stat(path)
	if err != nil || st.IsDir() {
		return Image{}, ErrNoImage
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Image{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	data, err := toPNG(raw)
	if err != nil {
		return Image{}, err
	}
	return Image{PNG: data, Name: filepath.Base(path)}, nil
}

func toPNG(raw []byte) ([]byte, error) {
	if screenshot.IsPNG(raw) {
		return raw, nil
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoImage, err)
	}
	return screenshot.EncodePNG(img)
}
