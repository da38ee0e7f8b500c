package driver

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/cpcl"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/model"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/pool"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/transport"
)

type fakeConn struct {
	mu          sync.Mutex
	connected   bool
	writes      [][]byte
	failOnWrite int
	disconnects int

	silent  bool
	status  byte
	replies chan byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{replies: make(chan byte, 8)}
}

func (c *fakeConn) Connect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return nil
}

func (c *fakeConn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeConn) Write(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return transport.ErrNotConnected
	}
	c.writes = append(c.writes, append([]byte(nil), p...))
	if c.failOnWrite == len(c.writes) {
		return errors.New("broken pipe")
	}
	if bytes.Equal(p, cpcl.StatusEnquiry()) && !c.silent {
		c.replies <- c.status
	}
	return nil
}

func (c *fakeConn) Read(p []byte) (int, error) {
	if !c.IsConnected() {
		return 0, transport.ErrNotConnected
	}
	select {
	case b := <-c.replies:
		p[0] = b
		return 1, nil
	case <-time.After(5 * time.Millisecond):
		return 0, nil
	}
}

func (c *fakeConn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnects++
	return nil
}

func (c *fakeConn) count(prefix []byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, w := range c.writes {
		if bytes.HasPrefix(w, prefix) {
			n++
		}
	}
	return n
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	return nil
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) total() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var sum time.Duration
	for _, d := range c.sleeps {
		sum += d
	}
	return sum
}

type connFactory struct {
	conns []*fakeConn
	setup func(*fakeConn)
}

func (f *connFactory) build(model.PrinterProfile) (transport.Transport, error) {
	c := newFakeConn()
	if f.setup != nil {
		f.setup(c)
	}
	f.conns = append(f.conns, c)
	return c, nil
}

func escPosProfile() model.PrinterProfile {
	return model.PrinterProfile{
		Name:       "receipt",
		Driver:     model.DriverEscPos,
		Transport:  model.TransportTCP,
		Address:    "127.0.0.1:9100",
		DPI:        203,
		Width:      5.1,
		Height:     8.0,
		Cut:        true,
		CutDelay:   1,
		SpeedLimit: 2,
	}
}

func cpclProfile() model.PrinterProfile {
	return model.PrinterProfile{
		Name:      "label",
		Driver:    model.DriverCPCL,
		Transport: model.TransportBluetooth,
		Address:   "00:11:22:33:44:55",
		DPI:       203,
		Width:     2.25,
		Height:    2.25,
	}
}

func whitePage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return img
}

var rasterPrefix = []byte{0x1D, 0x76, 0x30}

func TestEscPosReceiptScenario(t *testing.T) {
	f := &connFactory{}
	clock := newFakeClock()
	s, err := New(context.Background(), escPosProfile(), pool.New(),
		WithTransportFactory(f.build), WithClock(clock), WithSettleDelay(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.State() != StateReady {
		t.Fatalf("state %s, want READY", s.State())
	}

	page := whitePage(407, 400)
	page.Set(10, 10, color.Black)
	if err := s.PrintBitmap(context.Background(), page); err != nil {
		t.Fatalf("PrintBitmap: %v", err)
	}

	conn := f.conns[0]
	if got := conn.count(rasterPrefix); got != 4 {
		t.Fatalf("slice writes: got=%d want=4", got)
	}
	if got := conn.count([]byte{0x1D, 0x56, 0x41, 0x00}); got != 1 {
		t.Fatalf("cut commands: got=%d want=1", got)
	}
	if total := clock.total(); total < 3500*time.Millisecond {
		t.Fatalf("paced for %v, want at least 3.5s", total)
	}

	last := conn.writes[len(conn.writes)-1]
	if !bytes.Equal(last, []byte{0x1B, 0x40}) {
		t.Fatalf("page must end with a reset, got % x", last)
	}

	if err := s.Disconnect(false); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if conn.IsConnected() {
		t.Fatalf("connection without keep-alive must be closed")
	}
	if s.State() != StateClosed {
		t.Fatalf("state %s, want CLOSED", s.State())
	}
}

func TestEscPosSliceHeights(t *testing.T) {
	f := &connFactory{}
	p := escPosProfile()
	p.SpeedLimit = 0
	p.CutDelay = 0
	s, err := New(context.Background(), p, pool.New(), WithTransportFactory(f.build), WithClock(newFakeClock()), WithSettleDelay(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Disconnect(false)

	if err := s.PrintBitmap(context.Background(), whitePage(407, 300)); err != nil {
		t.Fatalf("PrintBitmap: %v", err)
	}
	var heights []int
	for _, w := range f.conns[0].writes {
		if bytes.HasPrefix(w, rasterPrefix) {
			if w[4] != 51 || w[5] != 0 {
				t.Fatalf("row bytes: got=%d want=51", int(w[4])|int(w[5])<<8)
			}
			heights = append(heights, int(w[6])|int(w[7])<<8)
		}
	}
	if len(heights) != 3 || heights[0] != 128 || heights[1] != 128 || heights[2] != 44 {
		t.Fatalf("unexpected slice heights %v", heights)
	}
}

func TestSkipWhiteLinesAtPageEnd(t *testing.T) {
	f := &connFactory{}
	p := escPosProfile()
	p.SkipWhiteLinesAtPageEnd = true
	p.SpeedLimit = 0
	p.CutDelay = 0
	s, err := New(context.Background(), p, pool.New(), WithTransportFactory(f.build), WithClock(newFakeClock()), WithSettleDelay(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Disconnect(false)

	page := whitePage(407, 400)
	page.Set(3, 9, color.Black)
	seq := func(yield func(image.Image, error) bool) { yield(page, nil) }
	if err := s.PrintPages(context.Background(), seq); err != nil {
		t.Fatalf("PrintPages: %v", err)
	}
	if got := f.conns[0].count(rasterPrefix); got != 1 {
		t.Fatalf("trailing blank rows should be cropped, got %d slices", got)
	}
}

type fakeDocument struct {
	pages  int
	closed bool
}

func (d *fakeDocument) PageCount() int { return d.pages }

func (d *fakeDocument) RenderPage(_ context.Context, _, width, height int) (image.Image, error) {
	return whitePage(width, height), nil
}

func (d *fakeDocument) Close() error {
	d.closed = true
	return nil
}

func TestPrintDocument(t *testing.T) {
	f := &connFactory{}
	p := escPosProfile()
	p.SpeedLimit = 0
	p.CutDelay = 0
	s, err := New(context.Background(), p, pool.New(), WithTransportFactory(f.build), WithClock(newFakeClock()), WithSettleDelay(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Disconnect(false)

	doc := &fakeDocument{pages: 2}
	if err := s.PrintDocument(context.Background(), doc); err != nil {
		t.Fatalf("PrintDocument: %v", err)
	}
	if !doc.closed {
		t.Fatalf("document must be closed")
	}
	if got := f.conns[0].count([]byte{0x1D, 0x56, 0x41, 0x00}); got != 2 {
		t.Fatalf("expected one cut per page, got %d", got)
	}
}

func TestWriteFailureForcesDisconnect(t *testing.T) {
	f := &connFactory{setup: func(c *fakeConn) { c.failOnWrite = 3 }}
	p := escPosProfile()
	p.KeepAlive = true
	pl := pool.New()
	s, err := New(context.Background(), p, pl, WithTransportFactory(f.build), WithClock(newFakeClock()), WithSettleDelay(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = s.PrintBitmap(context.Background(), whitePage(407, 400))
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransportError, got %v", err)
	}
	if f.conns[0].IsConnected() {
		t.Fatalf("failed keep-alive session must be disconnected")
	}
	if _, ok := pl.Lookup(pool.KeyFor(p)); ok {
		t.Fatalf("failed connection must not stay pooled")
	}
	if s.State() != StateClosed {
		t.Fatalf("state %s, want CLOSED", s.State())
	}
	if err := s.PrintBitmap(context.Background(), whitePage(8, 8)); err == nil {
		t.Fatalf("closed session must refuse to print")
	}
}

func TestKeepAliveReusesConnection(t *testing.T) {
	f := &connFactory{}
	p := escPosProfile()
	p.KeepAlive = true
	pl := pool.New()
	clock := newFakeClock()

	for range 2 {
		s, err := New(context.Background(), p, pl, WithTransportFactory(f.build), WithClock(clock), WithSettleDelay(time.Second))
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if err := s.Disconnect(false); err != nil {
			t.Fatalf("Disconnect: %v", err)
		}
	}
	if len(f.conns) != 1 {
		t.Fatalf("keep-alive sessions should share a connection, built %d", len(f.conns))
	}
	if !f.conns[0].IsConnected() {
		t.Fatalf("keep-alive connection must stay open")
	}
	if clock.total() != 0 {
		t.Fatalf("keep-alive teardown must not wait, slept %v", clock.total())
	}
}

func TestSettleDelayBeforeClose(t *testing.T) {
	f := &connFactory{}
	clock := newFakeClock()
	s, err := New(context.Background(), escPosProfile(), pool.New(), WithTransportFactory(f.build), WithClock(clock), WithSettleDelay(time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Disconnect(false); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if clock.total() != time.Second {
		t.Fatalf("expected a 1s settle delay, slept %v", clock.total())
	}
	if err := s.Disconnect(false); err != nil || clock.total() != time.Second {
		t.Fatalf("second Disconnect must be a no-op")
	}
}

func TestForcedDisconnectSettles(t *testing.T) {
	f := &connFactory{}
	p := escPosProfile()
	p.KeepAlive = true
	clock := newFakeClock()
	s, err := New(context.Background(), p, pool.New(), WithTransportFactory(f.build), WithClock(clock), WithSettleDelay(time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Disconnect(true); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if clock.total() != time.Second {
		t.Fatalf("forced close of a healthy session should settle 1s, slept %v", clock.total())
	}
	if f.conns[0].IsConnected() {
		t.Fatalf("forced disconnect must close the connection")
	}
}

func TestNoCutPauseWithoutCut(t *testing.T) {
	f := &connFactory{}
	p := escPosProfile()
	p.Cut = false
	p.CutDelay = 1
	p.SpeedLimit = 0
	clock := newFakeClock()
	s, err := New(context.Background(), p, pool.New(), WithTransportFactory(f.build), WithClock(clock), WithSettleDelay(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Disconnect(false)

	page := whitePage(407, 200)
	page.Set(10, 10, color.Black)
	if err := s.PrintBitmap(context.Background(), page); err != nil {
		t.Fatalf("PrintBitmap: %v", err)
	}
	if got := f.conns[0].count([]byte{0x1D, 0x56, 0x41, 0x00}); got != 0 {
		t.Fatalf("cut commands: got=%d want=0", got)
	}
	if clock.total() != 0 {
		t.Fatalf("no cut was issued, yet slept %v", clock.total())
	}
}

func TestConfigurationErrors(t *testing.T) {
	f := &connFactory{}
	cases := map[string]func(*model.PrinterProfile){
		"unknown driver":    func(p *model.PrinterProfile) { p.Driver = "ZPL" },
		"unknown transport": func(p *model.PrinterProfile) { p.Transport = "USB" },
		"zero dpi":          func(p *model.PrinterProfile) { p.DPI = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := escPosProfile()
			mutate(&p)
			_, err := New(context.Background(), p, pool.New(), WithTransportFactory(f.build))
			var ce *ConfigurationError
			if !errors.As(err, &ce) {
				t.Fatalf("expected *ConfigurationError, got %v", err)
			}
		})
	}
	if len(f.conns) != 0 {
		t.Fatalf("no connection may be opened for a bad profile")
	}
}

func TestCpclSparseLabelScenario(t *testing.T) {
	f := &connFactory{}
	s, err := New(context.Background(), cpclProfile(), pool.New(),
		WithTransportFactory(f.build), WithClock(newFakeClock()), WithStatusTimeout(time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Disconnect(false)

	page := whitePage(180, 180)
	page.Set(5, 5, color.Black)
	page.Set(170, 170, color.Black)
	if err := s.PrintBitmap(context.Background(), page); err != nil {
		t.Fatalf("PrintBitmap: %v", err)
	}

	conn := f.conns[0]
	if got := conn.count([]byte("EG ")); got != 2 {
		t.Fatalf("tile writes: got=%d want=2", got)
	}
	if got := conn.count(cpcl.StatusEnquiry()); got != 2 {
		t.Fatalf("preflight enquiries: got=%d want=2", got)
	}
	if got := conn.count([]byte("! 0 203 203 ")); got != 1 {
		t.Fatalf("form headers: got=%d want=1", got)
	}
	last := conn.writes[len(conn.writes)-1]
	if string(last) != "PRINT\r\n" {
		t.Fatalf("page must end with PRINT, got %q", last)
	}
}

func TestCpclPacesFullLabel(t *testing.T) {
	f := &connFactory{}
	p := cpclProfile()
	p.SpeedLimit = 1.5
	clock := newFakeClock()
	s, err := New(context.Background(), p, pool.New(),
		WithTransportFactory(f.build), WithClock(clock), WithStatusTimeout(time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Disconnect(false)

	if err := s.PrintBitmap(context.Background(), whitePage(180, 180)); err != nil {
		t.Fatalf("PrintBitmap: %v", err)
	}
	if got, want := clock.total(), 1500*time.Millisecond; got != want {
		t.Fatalf("paced %v, want %v", got, want)
	}
}

func TestCpclKeepAliveSessionsShareReplies(t *testing.T) {
	f := &connFactory{}
	p := cpclProfile()
	p.KeepAlive = true
	pl := pool.New()
	clock := newFakeClock()

	const sessions = 100
	for i := range sessions {
		s, err := New(context.Background(), p, pl,
			WithTransportFactory(f.build), WithClock(clock), WithStatusTimeout(time.Second))
		if err != nil {
			t.Fatalf("session %d: New: %v", i, err)
		}
		if err := s.Disconnect(false); err != nil {
			t.Fatalf("session %d: Disconnect: %v", i, err)
		}
	}
	if len(f.conns) != 1 {
		t.Fatalf("keep-alive sessions should share a connection, built %d", len(f.conns))
	}
	if got := f.conns[0].count(cpcl.StatusEnquiry()); got != 2*sessions {
		t.Fatalf("enquiries: got=%d want=%d", got, 2*sessions)
	}
}

func TestCpclHandshakeFailures(t *testing.T) {
	cases := map[string]func(*fakeConn){
		"paper out":  func(c *fakeConn) { c.status = byte(cpcl.StatusPaperOut) },
		"latch open": func(c *fakeConn) { c.status = byte(cpcl.StatusLatchOpen) },
		"no reply":   func(c *fakeConn) { c.silent = true },
	}
	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			f := &connFactory{setup: setup}
			p := cpclProfile()
			p.KeepAlive = true
			pl := pool.New()
			_, err := New(context.Background(), p, pl,
				WithTransportFactory(f.build), WithClock(newFakeClock()), WithStatusTimeout(50*time.Millisecond))

			var he *DeviceHandshakeError
			if !errors.As(err, &he) {
				t.Fatalf("expected *DeviceHandshakeError, got %v", err)
			}
			if f.conns[0].IsConnected() {
				t.Fatalf("connection must be closed after a failed handshake")
			}
			if _, ok := pl.Lookup(pool.KeyFor(p)); ok {
				t.Fatalf("failed connection must not stay pooled")
			}
			if f.conns[0].count([]byte("! 0")) != 0 {
				t.Fatalf("nothing may be printed after a failed handshake")
			}
		})
	}
}

func TestPacer(t *testing.T) {
	clock := newFakeClock()
	p := newPacer(clock, 2)

	if err := p.Delay(context.Background(), 1); err != nil {
		t.Fatalf("Delay: %v", err)
	}
	if got := clock.total(); got != 500*time.Millisecond {
		t.Fatalf("slept %v, want 500ms", got)
	}

	// time already spent counts towards the wait
	clock.advance(300 * time.Millisecond)
	p.Delay(context.Background(), 1)
	if got := clock.total(); got != 700*time.Millisecond {
		t.Fatalf("slept %v, want 700ms", got)
	}

	clock.advance(2 * time.Second)
	p.Delay(context.Background(), 1)
	if got := clock.total(); got != 700*time.Millisecond {
		t.Fatalf("no sleep expected once the paper has had time to advance, slept %v", got)
	}

	unlimited := newPacer(clock, 0)
	unlimited.Delay(context.Background(), 100)
	if got := clock.total(); got != 700*time.Millisecond {
		t.Fatalf("speed 0 disables pacing, slept %v", got)
	}
}

func TestPacerReset(t *testing.T) {
	clock := newFakeClock()
	p := newPacer(clock, 1)
	clock.advance(5 * time.Second)
	p.Reset()
	p.Delay(context.Background(), 1)
	if got := clock.total(); got != time.Second {
		t.Fatalf("slept %v, want 1s after reset", got)
	}
}

func TestStateString(t *testing.T) {
	if StatePrinting.String() != "PRINTING" || State(42).String() != "State(42)" {
		t.Fatalf("unexpected state names")
	}
}
