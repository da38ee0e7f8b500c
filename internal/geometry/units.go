// Package geometry converts between physical paper lengths, printer
// resolution and pixel counts, and applies the page transforms the printers
// need (scaling to the print width, margins, orientation).
//
// All functions are total for dpi > 0 and cm >= 0; profiles are validated
// before they reach this package.
package geometry

import (
	"math"
	"strconv"

	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/model"
)

const inch = 2.54

// epsilon absorbs float noise so exact conversions (e.g. 2.54cm at 100dpi)
// do not round up to the next dot.
const epsilon = 1e-9

// CmToDots sizes a raster target from a physical length. It rounds up.
func CmToDots(cm float64, dpi int) int {
	return int(math.Ceil(cm/inch*float64(dpi) - epsilon))
}

// CmToMils converts to thousandths of an inch, rounding up so a reported
// minimum media size is never smaller than requested.
func CmToMils(cm float64) int {
	return int(math.Ceil(cm/inch*1000 - epsilon))
}

// CmToPixels is the truncating conversion used for in-pipeline sizing.
func CmToPixels(cm float64, dpi int) int {
	return int(cm / inch * float64(dpi))
}

func PixelsToCm(pixels int, dpi int) float64 {
	return float64(pixels) / float64(dpi) * inch
}

// Capabilities reports what the printer can do, clamping out-of-range
// settings instead of failing.
func Capabilities(p model.PrinterProfile) model.Capabilities {
	dpi := max(p.DPI, 1)
	width := max(p.Width, 0.1)
	height := max(p.Height, 0.1)
	label := formatCm(width) + "x" + formatCm(height) + "cm"

	return model.Capabilities{
		MediaSize: model.MediaSize{
			Label:      label,
			WidthMils:  CmToMils(width),
			HeightMils: CmToMils(height),
		},
		Resolution: dpi,
		ColorMode:  "monochrome",
		MinMargins: model.Margins{
			LeftMils:   CmToMils(p.MarginLeft),
			TopMils:    CmToMils(p.MarginTop),
			RightMils:  CmToMils(p.MarginRight),
			BottomMils: CmToMils(p.MarginBottom),
		},
	}
}

// formatCm prints at most one decimal, dropping a trailing ".0".
func formatCm(cm float64) string {
	return strconv.FormatFloat(math.Round(cm*10)/10, 'f', -1, 64)
}
