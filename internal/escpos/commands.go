// Package escpos builds the Epson ESC/POS byte sequences used to print raster
// images on receipt printers.
package escpos

import (
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/raster"
)

// Control characters
const (
	Esc = 0x1B
	GS  = 0x1D
)

// Reset clears the print buffer and restores the power-on settings (ESC @).
func Reset() []byte {
	return []byte{Esc, 0x40}
}

// RasterHeader announces a raster block of widthBytes x height (GS v 0, normal
// density). widthBytes*height data bytes must follow.
func RasterHeader(widthBytes, height int) []byte {
	return []byte{
		GS, 0x76, 0x30, 0x00,
		byte(widthBytes), byte(widthBytes >> 8),
		byte(height), byte(height >> 8),
	}
}

// Raster returns the header and packed data printing b.
func Raster(b *raster.Bitmap) []byte {
	d := make([]byte, 0, 8+len(b.Data))
	d = append(d, RasterHeader(b.Stride, b.Height)...)
	return append(d, b.Data...)
}

// Cut feeds to the cutter position and performs a partial cut (GS V A 0).
func Cut() []byte {
	return []byte{GS, 0x56, 0x41, 0x00}
}
