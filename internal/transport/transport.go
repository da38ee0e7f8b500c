// Package transport provides the byte channels printers are driven over.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/model"
)

// ReadPollInterval bounds how long a Read waits for device bytes before
// returning (0, nil), so response readers can notice cancellation.
const ReadPollInterval = 250 * time.Millisecond

var ErrNotConnected = errors.New("transport is not connected")

// Transport is a connection to one printer. Write sends the whole buffer or
// fails. Read returns whatever the device has sent, possibly nothing.
type Transport interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	Write(p []byte) error
	Read(p []byte) (int, error)
	Disconnect() error
}

// Factory builds an unconnected transport for a printer.
type Factory func(profile model.PrinterProfile) (Transport, error)

// ForProfile builds the transport named by the profile.
func ForProfile(profile model.PrinterProfile) (Transport, error) {
	switch profile.Transport {
	case model.TransportTCP:
		return NewTCP(profile.Address), nil
	case model.TransportBluetooth:
		return NewBluetooth(profile.Address), nil
	default:
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownTransport, profile.Transport)
	}
}
