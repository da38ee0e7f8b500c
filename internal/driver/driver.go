// Package driver streams page bitmaps to a printer over one of the two
// supported protocols, ESC/POS receipt printing or CPCL label printing.
//
// A Session covers one document: New connects (through the pool), the Print
// methods write pages, and Disconnect hands the connection back.
package driver

import (
	"context"
	"errors"
	"fmt"
	"image"
	"iter"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/logger"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/model"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/pages"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/pool"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/segment"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/transport"
)

type State int

const (
	StateConnecting State = iota
	StateReady
	StatePrinting
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateReady:
		return "READY"
	case StatePrinting:
		return "PRINTING"
	case StateFailed:
		return "FAILED"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// protocol is the part of a session specific to one wire protocol.
type protocol interface {
	// printBitmap writes one page.
	printBitmap(ctx context.Context, page image.Image) error
	// stop releases protocol resources before the connection is returned.
	stop()
}

type options struct {
	factory       transport.Factory
	clock         Clock
	settleDelay   time.Duration
	pollInterval  time.Duration
	connectWait   time.Duration
	statusTimeout time.Duration
}

type Option func(*options)

// WithTransportFactory replaces transport.ForProfile.
func WithTransportFactory(f transport.Factory) Option {
	return func(o *options) { o.factory = f }
}

func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithSettleDelay sets the ESC/POS pause between the last write and closing
// the connection.
func WithSettleDelay(d time.Duration) Option {
	return func(o *options) { o.settleDelay = d }
}

// WithConnectPoll sets how often and how long CPCL sessions poll for the
// transport to report connected.
func WithConnectPoll(interval, limit time.Duration) Option {
	return func(o *options) {
		o.pollInterval = interval
		o.connectWait = limit
	}
}

// WithStatusTimeout bounds the wait for a CPCL status reply.
func WithStatusTimeout(d time.Duration) Option {
	return func(o *options) { o.statusTimeout = d }
}

// Session drives one printer for the lifetime of one document.
type Session struct {
	profile  model.PrinterProfile
	lease    *pool.Lease
	conn     transport.Transport
	clock    Clock
	pacer    *pacer
	protocol protocol
	settle   time.Duration

	mu    sync.Mutex
	state State
}

// New validates profile, obtains a connection from p and brings the printer
// to READY. It returns a *ConfigurationError for an unusable profile, a
// *DeviceHandshakeError when a preflight check fails and a *TransportError
// when the printer cannot be reached.
func New(ctx context.Context, profile model.PrinterProfile, p *pool.Pool, opts ...Option) (*Session, error) {
	o := options{
		factory:       transport.ForProfile,
		clock:         systemClock{},
		settleDelay:   time.Second,
		pollInterval:  100 * time.Millisecond,
		connectWait:   10 * time.Second,
		statusTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if err := profile.Validate(); err != nil {
		return nil, &ConfigurationError{Printer: profile.Name, Err: err}
	}

	var setup func(*Session) error
	switch profile.Driver {
	case model.DriverEscPos:
		setup = func(s *Session) error { return setupEscPos(ctx, s, o) }
	case model.DriverCPCL:
		setup = func(s *Session) error { return setupCPCL(ctx, s, o) }
	default:
		return nil, &ConfigurationError{Printer: profile.Name, Err: fmt.Errorf("%w: %q", model.ErrUnknownDriver, profile.Driver)}
	}

	logger.Info("Connecting to printer",
		zap.String("printer", profile.Name),
		zap.String("driver", string(profile.Driver)),
		zap.String("address", profile.Address),
		zap.Bool("keep_alive", profile.KeepAlive))

	lease, err := p.Acquire(ctx, pool.KeyFor(profile), profile.KeepAlive, func() (transport.Transport, error) {
		return o.factory(profile)
	})
	if err != nil {
		if errors.Is(err, model.ErrUnknownTransport) {
			return nil, &ConfigurationError{Printer: profile.Name, Err: err}
		}
		return nil, &TransportError{Op: "connect", Err: err}
	}

	s := &Session{
		profile: profile,
		lease:   lease,
		conn:    lease.Transport(),
		clock:   o.clock,
		state:   StateConnecting,
	}
	if err := setup(s); err != nil {
		if s.protocol != nil {
			s.protocol.stop()
		}
		_ = lease.Release(true)
		s.setState(StateClosed)
		return nil, err
	}

	s.pacer = newPacer(o.clock, profile.SpeedLimit)
	s.setState(StateReady)
	logger.Info("Printer ready", zap.String("printer", profile.Name))
	return s, nil
}

func (s *Session) Profile() model.PrinterProfile { return s.profile }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// write sends p, wrapping failures as TransportError.
func (s *Session) write(p []byte) error {
	if err := s.conn.Write(p); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// disconnectOnError force-closes the connection when err is non-nil, so a
// failed session never leaves a half-written socket in the pool.
func (s *Session) disconnectOnError(err error) error {
	if err == nil {
		return nil
	}
	logger.Error("Print failed, closing connection",
		zap.String("printer", s.profile.Name),
		zap.Error(err))
	s.setState(StateFailed)
	if derr := s.Disconnect(true); derr != nil {
		logger.Warn("Failed to close connection", zap.String("printer", s.profile.Name), zap.Error(derr))
	}
	return err
}

// PrintBitmap prints one page.
func (s *Session) PrintBitmap(ctx context.Context, page image.Image) error {
	if st := s.State(); st != StateReady {
		return fmt.Errorf("printer %q is not ready (%s)", s.profile.Name, st)
	}
	s.setState(StatePrinting)
	if err := s.disconnectOnError(s.protocol.printBitmap(ctx, page)); err != nil {
		return err
	}
	s.setState(StateReady)
	return nil
}

// PrintPages prints every page of seq in order, cropping trailing blank rows
// first when the profile asks for it. It stops at the first error.
func (s *Session) PrintPages(ctx context.Context, seq iter.Seq2[image.Image, error]) error {
	n := 0
	for page, err := range seq {
		if err != nil {
			return err
		}
		n++
		if s.profile.SkipWhiteLinesAtPageEnd {
			page = segment.CropWhiteEnd(page)
		}
		logger.Debug("Printing page",
			zap.String("printer", s.profile.Name),
			zap.Int("page", n),
			zap.Int("width", page.Bounds().Dx()),
			zap.Int("height", page.Bounds().Dy()))
		if err := s.PrintBitmap(ctx, page); err != nil {
			return err
		}
	}
	return nil
}

// PrintDocument prints every page of doc at the profile's paper size and
// closes doc.
func (s *Session) PrintDocument(ctx context.Context, doc pages.Document) error {
	defer func() {
		if err := doc.Close(); err != nil {
			logger.Warn("Failed to close document", zap.String("printer", s.profile.Name), zap.Error(err))
		}
	}()
	return s.PrintPages(ctx, pages.FromDocument(ctx, doc, s.profile.DPI, s.profile.Width, s.profile.Height))
}

// Disconnect ends the session. A keep-alive connection stays open in the pool
// unless force is set; otherwise it is closed and removed from the pool.
// Calling Disconnect on a closed session does nothing.
func (s *Session) Disconnect(force bool) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	failed := s.state == StateFailed
	s.state = StateClosed
	s.mu.Unlock()

	s.protocol.stop()

	keep := s.profile.KeepAlive && !force
	if !keep && !failed && s.settle > 0 {
		// closing right after the last write truncates output on some devices
		_ = s.clock.Sleep(context.Background(), s.settle)
	}

	logger.Info("Disconnecting printer",
		zap.String("printer", s.profile.Name),
		zap.Bool("keep_alive", keep))
	if err := s.lease.Release(force); err != nil {
		return &TransportError{Op: "disconnect", Err: err}
	}
	return nil
}
