package tray

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"runtime"
	"sync"
)

const iconSize = 16

var (
	iconOnce sync.Once
	iconData []byte
)

// Icon returns the tray icon: PNG, wrapped in an ICO container on Windows.
func Icon() []byte {
	iconOnce.Do(func() {
		pngData := iconPNG()
		if runtime.GOOS == "windows" {
			iconData = wrapICO(pngData, iconSize)
			return
		}
		iconData = pngData
	})
	return iconData
}

// iconPNG draws a dashed selection rectangle with an upload arrow.
func iconPNG() []byte {
	img := image.NewNRGBA(image.Rect(0, 0, iconSize, iconSize))
	blue := color.NRGBA{R: 0x00, G: 0x78, B: 0xd4, A: 0xff}
	dark := color.NRGBA{R: 0x33, G: 0x33, B: 0x33, A: 0xff}

	for i := 1; i < 15; i++ {
		if i%3 == 2 {
			continue
		}
		img.Set(i, 1, blue)
		img.Set(i, 14, blue)
		img.Set(1, i, blue)
		img.Set(14, i, blue)
	}
	// arrow shaft
	for y := 5; y <= 11; y++ {
		img.Set(7, y, dark)
		img.Set(8, y, dark)
	}
	// arrow head
	for d := 0; d < 3; d++ {
		for x := 7 - d; x <= 8+d; x++ {
			img.Set(x, 4+d, dark)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

// wrapICO builds a single-image ICO file holding a PNG payload.
func wrapICO(pngData []byte, size int) []byte {
	var buf bytes.Buffer
	le := binary.LittleEndian
	// header: reserved, type=icon, count
	_ = binary.Write(&buf, le, [3]uint16{0, 1, 1})
	dim := byte(size)
	if size >= 256 {
		dim = 0
	}
	// directory entry: width, height, colors, reserved, planes, bpp, size, offset
	buf.Write([]byte{dim, dim, 0, 0})
	_ = binary.Write(&buf, le, [2]uint16{1, 32})
	_ = binary.Write(&buf, le, [2]uint32{uint32(len(pngData)), 22})
	buf.Write(pngData)
	return buf.Bytes()
}
