package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Driver selects the wire protocol spoken to the printer.
type Driver string

const (
	DriverEscPos Driver = "ESC_POS"
	DriverCPCL   Driver = "CPCL"
)

// Transport selects the byte channel used to reach the printer.
type Transport string

const (
	TransportBluetooth Transport = "BLUETOOTH"
	TransportTCP       Transport = "TCP_IP"
)

// UnmarshalJSON accepts the enum names case-insensitively so hand-edited
// printers.json files keep working.
func (d *Driver) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("driver must be a string: %w", err)
	}
	*d = Driver(strings.ToUpper(strings.TrimSpace(s)))
	return nil
}

func (t *Transport) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("transport must be a string: %w", err)
	}
	*t = Transport(strings.ToUpper(strings.TrimSpace(s)))
	return nil
}

// Orientation is an EXIF orientation code (1..8).
type Orientation int

const (
	OrientationUndefined      Orientation = 0
	OrientationNormal         Orientation = 1
	OrientationFlipHorizontal Orientation = 2
	OrientationRotate180      Orientation = 3
	OrientationFlipVertical   Orientation = 4
	OrientationTranspose      Orientation = 5
	OrientationRotate90       Orientation = 6
	OrientationTransverse     Orientation = 7
	OrientationRotate270      Orientation = 8
)

// Tile is a rectangular sub-region of a page, in pixels.
type Tile struct {
	X      int
	Y      int
	Width  int
	Height int
}

func (t Tile) String() string {
	return fmt.Sprintf("Tile(%d,%d %dx%d)", t.X, t.Y, t.Width, t.Height)
}
