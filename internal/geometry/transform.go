package geometry

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"

	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/model"
)

// ScaleBitmap scales img proportionally to the printable width of the
// profile and pads it with white margins. The result is always exactly
// CmToPixels(profile.Width, profile.DPI) pixels wide.
func ScaleBitmap(img image.Image, profile model.PrinterProfile) image.Image {
	dpi := profile.DPI
	widthPx := CmToPixels(profile.Width, dpi)
	marginLeftPx := CmToPixels(profile.MarginLeft, dpi)
	marginTopPx := CmToPixels(profile.MarginTop, dpi)
	marginRightPx := CmToPixels(profile.MarginRight, dpi)
	marginBottomPx := CmToPixels(profile.MarginBottom, dpi)

	renderWidthPx := max(widthPx-marginLeftPx-marginRightPx, 1)
	src := img.Bounds()
	var resized *image.RGBA
	if src.Empty() {
		resized = AddMargins(image.NewRGBA(image.Rect(0, 0, renderWidthPx, 1)), 0, 0, 0, 0)
	} else {
		ratio := float64(renderWidthPx) / float64(src.Dx())
		renderHeightPx := max(int(float64(src.Dy())*ratio), 1)
		resized = image.NewRGBA(image.Rect(0, 0, renderWidthPx, renderHeightPx))
		draw.CatmullRom.Scale(resized, resized.Bounds(), img, src, draw.Src, nil)
	}

	if marginLeftPx == 0 && marginTopPx == 0 && marginRightPx == 0 && marginBottomPx == 0 {
		return resized
	}
	// widthPx may be smaller than the clamped render width for degenerate
	// margins; the right margin absorbs the difference.
	marginRightPx = max(widthPx-marginLeftPx-renderWidthPx, 0)
	return AddMargins(resized, marginLeftPx, marginTopPx, marginRightPx, marginBottomPx)
}

// AddMargins composites img onto a white canvas at (left, top).
func AddMargins(img image.Image, left, top, right, bottom int) *image.RGBA {
	b := img.Bounds()
	result := image.NewRGBA(image.Rect(0, 0, left+b.Dx()+right, top+b.Dy()+bottom))
	draw.Draw(result, result.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(result, image.Rect(left, top, left+b.Dx(), top+b.Dy()), img, b.Min, draw.Over)
	return result
}

// RotateBitmap applies an EXIF orientation correction. Unknown codes are the
// identity and return img itself.
func RotateBitmap(img image.Image, orientation model.Orientation) image.Image {
	switch orientation {
	case model.OrientationFlipHorizontal:
		return imaging.FlipH(img)
	case model.OrientationRotate180:
		return imaging.Rotate180(img)
	case model.OrientationFlipVertical:
		return imaging.FlipV(img)
	case model.OrientationTranspose:
		return imaging.Transpose(img)
	case model.OrientationRotate90:
		// imaging rotates counter-clockwise; EXIF 6 needs a clockwise turn.
		return imaging.Rotate270(img)
	case model.OrientationTransverse:
		return imaging.Transverse(img)
	case model.OrientationRotate270:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// FlattenTransparency composites img over white so transparent pixels print
// as paper rather than as whatever their color channels happen to hold.
func FlattenTransparency(img image.Image) *image.RGBA {
	b := img.Bounds()
	result := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(result, result.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(result, result.Bounds(), img, b.Min, draw.Over)
	return result
}
