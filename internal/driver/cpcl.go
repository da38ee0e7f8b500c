package driver

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/cpcl"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/geometry"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/logger"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/raster"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/segment"
)

// TileSize is the edge of the square grid CPCL pages are cut into. Blank tiles
// are not sent.
const TileSize = 36

var errNoReply = errors.New("printer did not answer")

type cpclPrinter struct {
	s             *Session
	statusTimeout time.Duration

	replies    chan byte
	stopWorker context.CancelFunc
	// closed when readReplies returns
	workerDone chan struct{}
}

func setupCPCL(ctx context.Context, s *Session, o options) error {
	if err := waitConnected(ctx, s, o); err != nil {
		return err
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	p := &cpclPrinter{
		s:             s,
		statusTimeout: o.statusTimeout,
		replies:       make(chan byte, 16),
		stopWorker:    cancel,
		workerDone:    make(chan struct{}),
	}
	s.protocol = p
	go p.readReplies(workerCtx)

	if _, err := p.query(ctx); err != nil {
		return handshakeError("printer check", err)
	}
	status, err := p.query(ctx)
	if err != nil {
		return handshakeError("status check", err)
	}
	if err := status.Err(); err != nil {
		return &DeviceHandshakeError{Check: "status check", Err: err}
	}
	if status.BatteryLow() {
		logger.Warn("Printer battery is low", zap.String("printer", s.profile.Name))
	}
	return nil
}

func handshakeError(check string, err error) error {
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &DeviceHandshakeError{Check: check, Err: err}
}

// waitConnected polls until the transport reports connected.
func waitConnected(ctx context.Context, s *Session, o options) error {
	start := s.clock.Now()
	for !s.conn.IsConnected() {
		if s.clock.Now().Sub(start) >= o.connectWait {
			return &TransportError{Op: "connect", Err: fmt.Errorf("printer not connected after %s", o.connectWait)}
		}
		if err := s.clock.Sleep(ctx, o.pollInterval); err != nil {
			return err
		}
	}
	return nil
}

// readReplies forwards device bytes to replies until ctx is cancelled or the
// transport fails. Its failure is not a print error.
func (p *cpclPrinter) readReplies(ctx context.Context) {
	defer close(p.workerDone)
	buf := make([]byte, 64)
	for ctx.Err() == nil {
		n, err := p.s.conn.Read(buf)
		if err != nil {
			logger.Debug("Reply reader stopped", zap.String("printer", p.s.profile.Name), zap.Error(err))
			return
		}
		for _, b := range buf[:n] {
			select {
			case p.replies <- b:
			default:
			}
		}
	}
}

// query sends a status enquiry and waits for the reply byte.
func (p *cpclPrinter) query(ctx context.Context) (cpcl.Status, error) {
	for drained := false; !drained; {
		select {
		case <-p.replies:
		default:
			drained = true
		}
	}
	if err := p.s.write(cpcl.StatusEnquiry()); err != nil {
		return 0, err
	}

	t := time.NewTimer(p.statusTimeout)
	defer t.Stop()
	select {
	case b := <-p.replies:
		return cpcl.Status(b), nil
	case <-t.C:
		return 0, fmt.Errorf("%w within %s", errNoReply, p.statusTimeout)
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (p *cpclPrinter) printBitmap(ctx context.Context, page image.Image) error {
	s := p.s
	profile := s.profile
	if err := s.pacer.Delay(ctx, 0); err != nil {
		return err
	}

	mono := raster.Monochrome(page, profile.UsesDither())
	if err := s.write(cpcl.Form(profile.DPI, geometry.CmToDots(profile.Height, profile.DPI))); err != nil {
		return err
	}

	tiles := 0
	for tile := range segment.NonEmptyTiles(mono, TileSize) {
		bm := raster.Pack(segment.TileImage(mono, tile))
		if err := s.write(cpcl.Graphics(tile.X, tile.Y, bm)); err != nil {
			return err
		}
		tiles++
		logger.Debug("Wrote tile", zap.String("printer", profile.Name), zap.Stringer("tile", tile))
	}
	logger.Debug("Page sent", zap.String("printer", profile.Name), zap.Int("tiles", tiles))

	if err := s.write(cpcl.LabelMedia()); err != nil {
		return err
	}
	if err := s.write(cpcl.Print()); err != nil {
		return err
	}
	return s.pacer.Delay(ctx, profile.Height)
}

// stop ends the reply reader and waits for it, at most one transport read
// poll, so a pooled connection is never read by two sessions.
func (p *cpclPrinter) stop() {
	p.stopWorker()
	<-p.workerDone
}
