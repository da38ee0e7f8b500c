// Package segment partitions page bitmaps into the pieces the printer
// protocols consume: full-width slices for continuous ESC/POS printing and
// positioned tiles for CPCL labels.
//
// Every function here reads the source image only. Slices and crops are
// sub-image views whenever the source type supports SubImage.
package segment

import (
	"image"
	"image/draw"
	"iter"

	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/model"
)

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// crop returns the r region of img, in img's coordinate space.
func crop(img image.Image, r image.Rectangle) image.Image {
	if s, ok := img.(subImager); ok {
		return s.SubImage(r)
	}
	dst := image.NewRGBA(r)
	draw.Draw(dst, r, img, r.Min, draw.Src)
	return dst
}

// Slices yields consecutive full-width strips of height step, top to bottom.
// The last strip holds the remaining rows.
func Slices(img image.Image, step int) iter.Seq[image.Image] {
	return func(yield func(image.Image) bool) {
		if step <= 0 {
			return
		}
		b := img.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y += step {
			r := image.Rect(b.Min.X, y, b.Max.X, min(y+step, b.Max.Y))
			if !yield(crop(img, r)) {
				return
			}
		}
	}
}

// Tiles yields a row-major grid of tiles covering img. Edge tiles are clipped
// to the image bounds. Tile coordinates are relative to the image origin.
func Tiles(img image.Image, tileWidth, tileHeight int) iter.Seq[model.Tile] {
	return func(yield func(model.Tile) bool) {
		if tileWidth <= 0 || tileHeight <= 0 {
			return
		}
		w, h := img.Bounds().Dx(), img.Bounds().Dy()
		for y := 0; y < h; y += tileHeight {
			for x := 0; x < w; x += tileWidth {
				tile := model.Tile{
					X:      x,
					Y:      y,
					Width:  min(tileWidth, w-x),
					Height: min(tileHeight, h-y),
				}
				if !yield(tile) {
					return
				}
			}
		}
	}
}

// NonEmptyTiles is Tiles with the all-white tiles left out.
func NonEmptyTiles(img image.Image, tileSize int) iter.Seq[model.Tile] {
	return func(yield func(model.Tile) bool) {
		for tile := range Tiles(img, tileSize, tileSize) {
			if RegionIsWhite(img, tile) {
				continue
			}
			if !yield(tile) {
				return
			}
		}
	}
}

// TileImage returns the pixels under tile.
func TileImage(img image.Image, tile model.Tile) image.Image {
	o := img.Bounds().Min
	return crop(img, image.Rect(o.X+tile.X, o.Y+tile.Y, o.X+tile.X+tile.Width, o.Y+tile.Y+tile.Height))
}
