package model

import (
	"errors"
	"fmt"
)

// --- Configuration Structures ---

type Config struct {
	AppVersion   string `json:"appVersion"`
	ApiUrl       string `json:"apiUrl"`
	WsUrl        string `json:"wsUrl"`
	APIKey       string `json:"apiKey"`
	TenantID     int    `json:"tenantId"`
	RestaurantID int    `json:"restaurantId"`
}

// PrinterProfile is the immutable configuration of one physical printer.
// Lengths are in centimeters; CutDelay is in seconds and SpeedLimit in cm/s
// (0 disables pacing).
type PrinterProfile struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Driver      Driver    `json:"driver"`
	Transport   Transport `json:"transport"`
	Address     string    `json:"address"`

	DPI          int     `json:"dpi"`
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
	MarginLeft   float64 `json:"marginLeft"`
	MarginTop    float64 `json:"marginTop"`
	MarginRight  float64 `json:"marginRight"`
	MarginBottom float64 `json:"marginBottom"`

	Cut                     bool        `json:"cut"`
	CutDelay                float64     `json:"cutDelay"`
	SpeedLimit              float64     `json:"speedLimit"`
	KeepAlive               bool        `json:"keepAlive"`
	Dither                  *bool       `json:"dither,omitempty"`
	SkipWhiteLinesAtPageEnd bool        `json:"skipWhiteLinesAtPageEnd"`
	Orientation             Orientation `json:"orientation,omitempty"`

	IsEnabled    bool   `json:"isEnabled"`
	IsDefault    bool   `json:"isDefault,omitempty"`
	TenantID     int    `json:"tenantId"`
	RestaurantID int    `json:"restaurantId,omitempty"`
	AgentKey     string `json:"agent_key,omitempty"` // Assigned by server
}

// UsesDither reports whether raster encoding should dither; it defaults to true.
func (p PrinterProfile) UsesDither() bool {
	return p.Dither == nil || *p.Dither
}

// PoolID is the connection pool identity of the printer. TCP printers are
// keyed by name because several logical printers may share one host:port.
func (p PrinterProfile) PoolID() string {
	if p.Transport == TransportTCP {
		return p.Name
	}
	return p.Address
}

func (p PrinterProfile) String() string {
	return fmt.Sprintf("%s (%s over %s, %s)", p.Name, p.Driver, p.Transport, p.Address)
}

var (
	ErrUnknownDriver    = errors.New("unrecognized driver in settings")
	ErrUnknownTransport = errors.New("unknown interface")
)

// Validate checks the profile against the bounds the geometry functions expect.
func (p PrinterProfile) Validate() error {
	switch p.Driver {
	case DriverEscPos, DriverCPCL:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, p.Driver)
	}
	switch p.Transport {
	case TransportBluetooth, TransportTCP:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTransport, p.Transport)
	}
	if p.Address == "" {
		return fmt.Errorf("printer %q has no address", p.Name)
	}
	if p.DPI <= 0 {
		return fmt.Errorf("printer %q: dpi must be positive, got %d", p.Name, p.DPI)
	}
	if p.Width <= 0.1 || p.Height <= 0.1 {
		return fmt.Errorf("printer %q: width and height must exceed 0.1cm, got %gx%g", p.Name, p.Width, p.Height)
	}
	for _, m := range []float64{p.MarginLeft, p.MarginTop, p.MarginRight, p.MarginBottom, p.CutDelay, p.SpeedLimit} {
		if m < 0 {
			return fmt.Errorf("printer %q: margins, cut delay and speed limit must not be negative", p.Name)
		}
	}
	if p.MarginLeft+p.MarginRight >= p.Width {
		return fmt.Errorf("printer %q: horizontal margins leave no printable width", p.Name)
	}
	return nil
}

// MediaSize and Capabilities describe the printer to the job host.
type MediaSize struct {
	Label      string `json:"label"`
	WidthMils  int    `json:"widthMils"`
	HeightMils int    `json:"heightMils"`
}

type Margins struct {
	LeftMils   int `json:"leftMils"`
	TopMils    int `json:"topMils"`
	RightMils  int `json:"rightMils"`
	BottomMils int `json:"bottomMils"`
}

type Capabilities struct {
	MediaSize  MediaSize `json:"mediaSize"`
	Resolution int       `json:"resolution"`
	ColorMode  string    `json:"colorMode"`
	MinMargins Margins   `json:"minMargins"`
}
