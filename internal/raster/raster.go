// Package raster converts source images into the projector's native
// row-oriented byte formats.
package raster

import (
	"errors"
	"fmt"
	"image"
	"os"

	_ "image/jpeg"
	_ "image/png"
)

// ErrBadImage marks a source that cannot be decoded or has no area.
var ErrBadImage = errors.New("raster: unusable source image")

// Mode selects the pixel encoding the projector is driven with.
type Mode uint8

const (
	// RGB565 is the device-native format: 16 bits per pixel, 5-6-5 color,
	// low byte first.
	RGB565 Mode = iota
	// Gray8 is one luminance byte per pixel.
	Gray8
	// Mono1 packs 8 pixels per byte, most significant bit first, each row
	// padded out to a whole byte.
	Mono1
)

func (m Mode) String() string {
	switch m {
	case RGB565:
		return "rgb565"
	case Gray8:
		return "gray8"
	case Mono1:
		return "mono1"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ParseMode maps a config string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "rgb565":
		return RGB565, nil
	case "gray8":
		return Gray8, nil
	case "mono1":
		return Mono1, nil
	default:
		return 0, fmt.Errorf("raster: unknown mode %q (want rgb565, gray8, or mono1)", s)
	}
}

// RowStride returns the fixed byte length of one encoded row.
func (m Mode) RowStride(width int) int {
	switch m {
	case RGB565:
		return 2 * width
	case Gray8:
		return width
	case Mono1:
		return (width + 7) / 8
	default:
		return 0
	}
}

// Image is an encoded raster: fixed dimensions, one mode, and height rows
// of exactly RowStride bytes each, top to bottom. Immutable once built.
type Image struct {
	width  int
	height int
	mode   Mode
	rows   [][]byte
}

// NewImage builds an Image from pre-encoded rows, validating that every
// row has the exact stride for the mode. Rows are copied.
func NewImage(width, height int, mode Mode, rows [][]byte) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: size %dx%d", ErrBadImage, width, height)
	}
	if len(rows) != height {
		return nil, fmt.Errorf("raster: got %d rows, want %d", len(rows), height)
	}
	stride := mode.RowStride(width)
	cp := make([][]byte, height)
	for y, row := range rows {
		if len(row) != stride {
			return nil, fmt.Errorf("raster: row %d is %d bytes, want %d", y, len(row), stride)
		}
		cp[y] = append([]byte(nil), row...)
	}
	return &Image{width: width, height: height, mode: mode, rows: cp}, nil
}

func (e *Image) Width() int  { return e.width }
func (e *Image) Height() int { return e.height }
func (e *Image) Mode() Mode  { return e.mode }

// Rows returns the encoded rows, top to bottom. Callers must not modify
// them.
func (e *Image) Rows() [][]byte { return e.rows }

// Size returns the total encoded byte count.
func (e *Image) Size() int { return e.height * e.mode.RowStride(e.width) }

// Bytes returns a fresh copy of the full payload, rows concatenated top
// to bottom.
func (e *Image) Bytes() []byte {
	out := make([]byte, 0, e.Size())
	for _, row := range e.rows {
		out = append(out, row...)
	}
	return out
}

// Load decodes a PNG or JPEG file from disk. The second return is the
// detected format name.
func Load(path string) (image.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("raster: open %s: %w", path, err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, "", fmt.Errorf("%w: decode %s: %v", ErrBadImage, path, err)
	}
	return img, format, nil
}
