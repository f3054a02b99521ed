package raster

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"
)

// bayer4 is the classic 4x4 ordered-dither threshold matrix. Fixed so the
// same input always dithers to the same Mono1 output.
var bayer4 = [4][4]int{
	{0, 8, 2, 10},
	{12, 4, 14, 6},
	{3, 11, 1, 9},
	{15, 7, 13, 5},
}

// Encode resizes src to width x height and serializes it in mode.
//
// Aspect ratio is preserved by letterboxing: the source is scaled with
// Catmull-Rom interpolation to the largest size that fits the target and
// centered on a black canvas. Scaling, luminance reduction, and dithering
// are all deterministic, so identical inputs produce byte-identical
// output.
func Encode(src image.Image, width, height int, mode Mode) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: target size %dx%d", ErrBadImage, width, height)
	}
	sb := src.Bounds()
	if sb.Dx() <= 0 || sb.Dy() <= 0 {
		return nil, fmt.Errorf("%w: source has no pixels", ErrBadImage)
	}
	if mode.RowStride(width) == 0 {
		return nil, fmt.Errorf("raster: unknown mode %d", uint8(mode))
	}

	canvas := letterbox(src, width, height)

	stride := mode.RowStride(width)
	rows := make([][]byte, height)
	for y := 0; y < height; y++ {
		row := make([]byte, stride)
		switch mode {
		case RGB565:
			encodeRowRGB565(canvas, y, width, row)
		case Gray8:
			encodeRowGray8(canvas, y, width, row)
		case Mono1:
			encodeRowMono1(canvas, y, width, row)
		}
		rows[y] = row
	}

	return &Image{width: width, height: height, mode: mode, rows: rows}, nil
}

// letterbox scales src to fit width x height without cropping or
// distortion and centers it on an opaque black canvas.
func letterbox(src image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	sb := src.Bounds()
	sw, sh := sb.Dx(), sb.Dy()

	// Largest scaled size that still fits the target.
	dw := width
	dh := sh * width / sw
	if dh > height {
		dh = height
		dw = sw * height / sh
	}
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	x0 := (width - dw) / 2
	y0 := (height - dh) / 2
	xdraw.CatmullRom.Scale(dst, image.Rect(x0, y0, x0+dw, y0+dh), src, sb, xdraw.Over, nil)
	return dst
}

func encodeRowRGB565(img *image.RGBA, y, width int, row []byte) {
	for x := 0; x < width; x++ {
		r, g, b := rgbAt(img, x, y)
		v := uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
		row[2*x] = byte(v) // low byte first, matching the device
		row[2*x+1] = byte(v >> 8)
	}
}

func encodeRowGray8(img *image.RGBA, y, width int, row []byte) {
	for x := 0; x < width; x++ {
		row[x] = grayAt(img, x, y)
	}
}

func encodeRowMono1(img *image.RGBA, y, width int, row []byte) {
	for x := 0; x < width; x++ {
		// A pixel is lit when its luminance clears the Bayer threshold for
		// its position.
		g := int(grayAt(img, x, y))
		if g*16 > bayer4[y%4][x%4]*255+127 {
			row[x/8] |= 0x80 >> (x % 8)
		}
	}
}

// rgbAt returns the 8-bit channels at (x, y). The canvas is opaque, so
// premultiplied alpha never distorts the values.
func rgbAt(img *image.RGBA, x, y int) (r, g, b uint8) {
	i := img.PixOffset(x, y)
	return img.Pix[i], img.Pix[i+1], img.Pix[i+2]
}

// grayAt is the BT.601 luminance used by both grayscale modes.
func grayAt(img *image.RGBA, x, y int) uint8 {
	r, g, b := rgbAt(img, x, y)
	return uint8((299*int(r) + 587*int(g) + 114*int(b) + 500) / 1000)
}
