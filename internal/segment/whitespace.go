package segment

import (
	"image"

	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/model"
)

// RegionIsWhite reports whether every pixel under tile is opaque pure white.
func RegionIsWhite(img image.Image, tile model.Tile) bool {
	b := img.Bounds()
	x0, y0 := b.Min.X+tile.X, b.Min.Y+tile.Y
	x1, y1 := x0+tile.Width, y0+tile.Height

	switch src := img.(type) {
	case *image.RGBA:
		for y := y0; y < y1; y++ {
			row := src.Pix[src.PixOffset(x0, y):src.PixOffset(x1, y)]
			for _, v := range row {
				if v != 0xff {
					return false
				}
			}
		}
		return true
	case *image.Gray:
		for y := y0; y < y1; y++ {
			row := src.Pix[src.PixOffset(x0, y):src.PixOffset(x1, y)]
			for _, v := range row {
				if v != 0xff {
					return false
				}
			}
		}
		return true
	}

	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			if r != 0xffff || g != 0xffff || bl != 0xffff || a != 0xffff {
				return false
			}
		}
	}
	return true
}

// LastNonWhiteLine returns the index of the last row containing a non-white
// pixel, or 0 when the whole image is white.
func LastNonWhiteLine(img image.Image) int {
	last := 0
	index := 0
	for line := range Tiles(img, img.Bounds().Dx(), 1) {
		if !RegionIsWhite(img, line) {
			last = index
		}
		index++
	}
	return last
}

// CropWhiteEnd drops trailing all-white rows. An all-white image keeps its
// first row. When nothing needs cropping img itself is returned.
func CropWhiteEnd(img image.Image) image.Image {
	height := LastNonWhiteLine(img) + 1
	b := img.Bounds()
	if b.Dy() <= height {
		return img
	}
	return crop(img, image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y+height))
}
