// Package cpcl builds CPCL label commands and decodes the one-byte status
// reply of CPCL mobile printers.
package cpcl

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/raster"
)

const (
	Esc     = 0x1B
	newline = "\r\n"
)

// Form starts a label of heightDots rows at dpi, printed once.
func Form(dpi, heightDots int) []byte {
	return []byte(fmt.Sprintf("! 0 %d %d %d 1%s", dpi, dpi, heightDots, newline))
}

// Graphics places b with its top-left corner at (x, y) using the hex encoded
// EXPANDED-GRAPHICS command.
func Graphics(x, y int, b *raster.Bitmap) []byte {
	var sb strings.Builder
	sb.Grow(32 + 2*len(b.Data))
	fmt.Fprintf(&sb, "EG %d %d %d %d ", b.Stride, b.Height, x, y)
	sb.WriteString(strings.ToUpper(hex.EncodeToString(b.Data)))
	sb.WriteString(newline)
	return []byte(sb.String())
}

// LabelMedia makes the printer feed to the next gap after printing.
func LabelMedia() []byte {
	return []byte("FORM" + newline)
}

// Print ends the form and prints it.
func Print() []byte {
	return []byte("PRINT" + newline)
}

// StatusEnquiry asks the printer for its status byte (ESC h).
func StatusEnquiry() []byte {
	return []byte{Esc, 0x68}
}
