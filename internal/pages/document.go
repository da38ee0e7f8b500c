// Package pages produces the lazily rendered page bitmaps a print driver
// consumes. Every page it yields is opaque (transparency composited over
// white) and sized for the target printer.
package pages

import (
	"context"
	"fmt"
	"image"
	"iter"

	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/geometry"
)

// Document is a paginated source such as a PDF file.
type Document interface {
	PageCount() int
	// RenderPage renders page index into a width x height pixel image.
	RenderPage(ctx context.Context, index, width, height int) (image.Image, error)
	Close() error
}

// FromDocument yields the pages of doc rendered at the printer's paper size
// in dots. Iteration stops at the first render error, which is yielded.
func FromDocument(ctx context.Context, doc Document, dpi int, widthCm, heightCm float64) iter.Seq2[image.Image, error] {
	width := geometry.CmToDots(widthCm, dpi)
	height := geometry.CmToDots(heightCm, dpi)

	return func(yield func(image.Image, error) bool) {
		for i := range doc.PageCount() {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			img, err := doc.RenderPage(ctx, i, width, height)
			if err != nil {
				yield(nil, fmt.Errorf("failed to render page %d: %w", i+1, err))
				return
			}
			if !yield(geometry.FlattenTransparency(img), nil) {
				return
			}
		}
	}
}
