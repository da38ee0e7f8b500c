package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"
)

const (
	dialTimeout  = 5 * time.Second
	writeTimeout = 30 * time.Second
)

// TCP is a raw socket transport to a "host:port" address, typically port 9100.
type TCP struct {
	address string

	mu   sync.Mutex
	conn net.Conn
}

func NewTCP(address string) *TCP {
	return &TCP{address: address}
}

func (t *TCP) String() string {
	return "tcp://" + t.address
}

func (t *TCP) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return nil
	}

	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", t.address)
	if err != nil {
		return fmt.Errorf("connection to %s failed: %w", t.address, err)
	}
	t.conn = conn
	return nil
}

func (t *TCP) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

func (t *TCP) current() net.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

// Write sends p. A failed write drops the socket so IsConnected reports false.
func (t *TCP) Write(p []byte) error {
	conn := t.current()
	if conn == nil {
		return ErrNotConnected
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := conn.Write(p); err != nil {
		t.drop(conn)
		return fmt.Errorf("write to %s failed: %w", t.address, err)
	}
	return nil
}

func (t *TCP) Read(p []byte) (int, error) {
	conn := t.current()
	if conn == nil {
		return 0, ErrNotConnected
	}
	_ = conn.SetReadDeadline(time.Now().Add(ReadPollInterval))
	n, err := conn.Read(p)
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return n, nil
	}
	if err != nil {
		t.drop(conn)
	}
	return n, err
}

func (t *TCP) Disconnect() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (t *TCP) drop(conn net.Conn) {
	t.mu.Lock()
	if t.conn == conn {
		t.conn = nil
	}
	t.mu.Unlock()
	_ = conn.Close()
}
