package pages

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"iter"

	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/geometry"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/model"
)

// DecodeImage decodes a PNG or JPEG photo.
func DecodeImage(r io.Reader) (image.Image, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%s image has no pixels", format)
	}
	return img, nil
}

// FromImages prepares photos for printing: transparency is flattened, the
// profile's orientation correction applied and the result fitted to the
// printable width.
func FromImages(images []image.Image, profile model.PrinterProfile) iter.Seq2[image.Image, error] {
	return func(yield func(image.Image, error) bool) {
		for _, img := range images {
			page := geometry.RotateBitmap(geometry.FlattenTransparency(img), profile.Orientation)
			if !yield(geometry.ScaleBitmap(page, profile), nil) {
				return
			}
		}
	}
}
