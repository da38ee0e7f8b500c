// Package raster turns page images into the 1-bit, row-padded bitmaps both
// printer protocols transmit. A set bit prints black.
package raster

import (
	"fmt"
	"image"
	"image/color"

	"github.com/makeworld-the-better-one/dither/v2"
)

const bitsPerByte = 8

var palette = color.Palette{color.Black, color.White}

// Bitmap is a packed 1-bpp image. Rows start on a byte boundary, the most
// significant bit is the leftmost pixel, and padding bits are zero.
type Bitmap struct {
	Width  int
	Height int
	Stride int
	Data   []byte
}

func (b *Bitmap) String() string {
	return fmt.Sprintf("Bitmap(%d,%d)", b.Width, b.Height)
}

// Bit returns 1 when the pixel at (x, y) prints black.
func (b *Bitmap) Bit(x, y int) byte {
	return (b.Data[y*b.Stride+x/bitsPerByte] >> (bitsPerByte - 1 - x%bitsPerByte)) & 1
}

// Row returns the packed bytes of row y.
func (b *Bitmap) Row(y int) []byte {
	return b.Data[y*b.Stride : (y+1)*b.Stride]
}

// Monochrome reduces img to a black and white paletted image. With dither the
// conversion uses serpentine Floyd-Steinberg error diffusion, otherwise a
// plain luminance threshold at mid gray.
func Monochrome(img image.Image, dithered bool) *image.Paletted {
	if dithered {
		d := dither.NewDitherer(palette)
		d.Matrix = dither.FloydSteinberg
		d.Serpentine = true
		return d.DitherPaletted(img)
	}

	b := img.Bounds()
	out := image.NewPaletted(b, palette)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if isDark(img.At(x, y)) {
				out.SetColorIndex(x, y, 0)
			} else {
				out.SetColorIndex(x, y, 1)
			}
		}
	}
	return out
}

// Pack packs img into a Bitmap, thresholding any pixel that is not already
// black or white.
func Pack(img image.Image) *Bitmap {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	stride := (width + bitsPerByte - 1) / bitsPerByte
	data := make([]byte, stride*height)

	paletted, _ := img.(*image.Paletted)
	black := blackIndices(paletted)
	for y := 0; y < height; y++ {
		row := data[y*stride : (y+1)*stride]
		for x := 0; x < width; x++ {
			var dark bool
			if paletted != nil {
				dark = black[paletted.ColorIndexAt(b.Min.X+x, b.Min.Y+y)]
			} else {
				dark = isDark(img.At(b.Min.X+x, b.Min.Y+y))
			}
			if dark {
				row[x/bitsPerByte] |= 1 << (bitsPerByte - 1 - x%bitsPerByte)
			}
		}
	}

	return &Bitmap{Width: width, Height: height, Stride: stride, Data: data}
}

// blackIndices precomputes which palette entries print black.
func blackIndices(p *image.Paletted) []bool {
	if p == nil {
		return nil
	}
	black := make([]bool, len(p.Palette))
	for i, c := range p.Palette {
		black[i] = isDark(c)
	}
	return black
}

func isDark(c color.Color) bool {
	_, _, _, a := c.RGBA()
	if a == 0 {
		return false
	}
	return color.Gray16Model.Convert(c).(color.Gray16).Y < 0x8000
}
