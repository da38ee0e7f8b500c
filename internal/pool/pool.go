// Package pool keeps printer connections open between print jobs for
// printers configured with keep-alive.
//
// A key holds at most one live handle. Acquire takes an exclusive lease on the
// key that lasts until Release, so concurrent jobs for the same printer run
// one after the other while distinct printers proceed independently.
package pool

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/logger"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/model"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/transport"
)

// Key identifies a pooled connection. Family keeps ESC/POS and CPCL sessions
// to the same device apart.
type Key struct {
	Family    model.Driver
	Transport model.Transport
	ID        string
}

func KeyFor(profile model.PrinterProfile) Key {
	return Key{Family: profile.Driver, Transport: profile.Transport, ID: profile.PoolID()}
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Family, k.Transport, k.ID)
}

type slot struct {
	lease  chan struct{}
	handle transport.Transport
}

type Pool struct {
	mu    sync.Mutex
	slots map[Key]*slot
}

func New() *Pool {
	return &Pool{slots: map[Key]*slot{}}
}

func (p *Pool) slot(key Key) *slot {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.slots[key]
	if !ok {
		s = &slot{lease: make(chan struct{}, 1)}
		p.slots[key] = s
	}
	return s
}

func (p *Pool) pooled(s *slot) transport.Transport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return s.handle
}

func (p *Pool) store(s *slot, h transport.Transport) {
	p.mu.Lock()
	s.handle = h
	p.mu.Unlock()
}

// Lookup returns the pooled handle for key, if any.
func (p *Pool) Lookup(key Key) (transport.Transport, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.slots[key]
	if !ok || s.handle == nil {
		return nil, false
	}
	return s.handle, true
}

// Acquire leases key and returns a connected handle. With keepAlive a pooled
// handle is reused, reconnecting it first when it reports disconnected;
// otherwise factory builds a fresh one, which is pooled only with keepAlive.
// Acquire waits for a lease held by another job until ctx is done.
func (p *Pool) Acquire(ctx context.Context, key Key, keepAlive bool, factory func() (transport.Transport, error)) (*Lease, error) {
	s := p.slot(key)
	select {
	case s.lease <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	h, err := p.connect(ctx, key, s, keepAlive, factory)
	if err != nil {
		<-s.lease
		return nil, err
	}
	return &Lease{pool: p, key: key, slot: s, handle: h, keepAlive: keepAlive}, nil
}

func (p *Pool) connect(ctx context.Context, key Key, s *slot, keepAlive bool, factory func() (transport.Transport, error)) (transport.Transport, error) {
	existing := p.pooled(s)
	if keepAlive && existing != nil {
		if existing.IsConnected() {
			logger.Debug("Reusing pooled connection", zap.Stringer("key", key))
			return existing, nil
		}
		logger.Info("Pooled connection dropped, reconnecting", zap.Stringer("key", key))
		if err := existing.Connect(ctx); err != nil {
			_ = existing.Disconnect()
			p.store(s, nil)
			return nil, err
		}
		return existing, nil
	}

	if existing != nil {
		_ = existing.Disconnect()
		p.store(s, nil)
	}

	h, err := factory()
	if err != nil {
		return nil, err
	}
	if err := h.Connect(ctx); err != nil {
		_ = h.Disconnect()
		return nil, err
	}
	if keepAlive {
		p.store(s, h)
	}
	return h, nil
}

// Close disconnects every pooled handle, waiting for outstanding leases.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	keys := make([]Key, 0, len(p.slots))
	for k := range p.slots {
		keys = append(keys, k)
	}
	p.mu.Unlock()

	for _, k := range keys {
		s := p.slot(k)
		select {
		case s.lease <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
		if h := p.pooled(s); h != nil {
			if err := h.Disconnect(); err != nil {
				logger.Warn("Failed to close pooled connection", zap.Stringer("key", k), zap.Error(err))
			}
			p.store(s, nil)
		}
		<-s.lease
	}
	return nil
}

// Lease is exclusive use of one pool key.
type Lease struct {
	pool      *Pool
	key       Key
	slot      *slot
	handle    transport.Transport
	keepAlive bool

	once sync.Once
}

func (l *Lease) Key() Key { return l.key }

func (l *Lease) Transport() transport.Transport { return l.handle }

// Release ends the lease. Unless the handle is kept alive and force is false,
// the handle is disconnected and removed from the pool. Only the first call
// has any effect.
func (l *Lease) Release(force bool) error {
	var err error
	l.once.Do(func() {
		defer func() { <-l.slot.lease }()
		if l.keepAlive && !force {
			return
		}
		err = l.handle.Disconnect()
		if l.pool.pooled(l.slot) == l.handle {
			l.pool.store(l.slot, nil)
		}
	})
	return err
}
