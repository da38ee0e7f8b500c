package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"

	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/logger"
)

type characteristic byte

const (
	serviceUUID  characteristic = 0x00
	writerUUID   characteristic = 0x02
	notifierUUID characteristic = 0x03
)

// maxChunk keeps each write within a typical negotiated ATT MTU.
const maxChunk = 180

func uuid(c characteristic) bluetooth.UUID {
	return bluetooth.NewUUID([16]byte{
		0x00, 0x00, 0xff, byte(c), 0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0x80, 0x5f, 0x9b, 0x34, 0xfb,
	})
}

var (
	adapterOnce sync.Once
	adapterErr  error

	registryMu sync.Mutex
	registry   = map[string]*Bluetooth{}
)

// enableAdapter turns on the default adapter once per process and routes
// disconnect events to the matching transport.
func enableAdapter() (*bluetooth.Adapter, error) {
	adapter := bluetooth.DefaultAdapter
	adapterOnce.Do(func() {
		if adapterErr = adapter.Enable(); adapterErr != nil {
			return
		}
		adapter.SetConnectHandler(func(d bluetooth.Device, connected bool) {
			if connected {
				return
			}
			registryMu.Lock()
			b := registry[d.Address.String()]
			registryMu.Unlock()
			if b != nil {
				logger.Info("Bluetooth printer disconnected", zap.String("address", b.address))
				b.connected.Store(false)
			}
		})
	})
	return adapter, adapterErr
}

// Bluetooth is a BLE GATT transport speaking to the 0xFF00 serial service
// found on most portable receipt and label printers.
type Bluetooth struct {
	address string

	mu        sync.Mutex
	device    bluetooth.Device
	writer    bluetooth.DeviceCharacteristic
	connected atomic.Bool

	incoming chan []byte
	pending  []byte
}

func NewBluetooth(address string) *Bluetooth {
	return &Bluetooth{
		address:  address,
		incoming: make(chan []byte, 64),
	}
}

func (b *Bluetooth) String() string {
	return "bluetooth://" + b.address
}

func (b *Bluetooth) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connected.Load() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	adapter, err := enableAdapter()
	if err != nil {
		return fmt.Errorf("failed to enable bluetooth: %w", err)
	}

	var addr bluetooth.Address
	addr.Set(b.address)

	logger.Debug("Connecting to bluetooth device", zap.String("address", b.address))
	device, err := adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", b.address, err)
	}

	services, err := device.DiscoverServices([]bluetooth.UUID{uuid(serviceUUID)})
	if err != nil || len(services) == 0 {
		_ = device.Disconnect()
		return fmt.Errorf("failed to discover printer service on %s: %v", b.address, err)
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{uuid(writerUUID), uuid(notifierUUID)})
	if err != nil || len(chars) < 2 {
		_ = device.Disconnect()
		return fmt.Errorf("failed to discover printer characteristics on %s: %v", b.address, err)
	}

	err = chars[1].EnableNotifications(func(data []byte) {
		buf := append([]byte(nil), data...)
		select {
		case b.incoming <- buf:
		default:
			logger.Warn("Dropping bluetooth notification", zap.String("address", b.address), zap.Int("size", len(buf)))
		}
	})
	if err != nil {
		_ = device.Disconnect()
		return fmt.Errorf("failed to enable notifications on %s: %w", b.address, err)
	}

	b.device = device
	b.writer = chars[0]
	b.connected.Store(true)

	registryMu.Lock()
	registry[device.Address.String()] = b
	registryMu.Unlock()
	return nil
}

func (b *Bluetooth) IsConnected() bool {
	return b.connected.Load()
}

func (b *Bluetooth) Write(p []byte) error {
	if !b.connected.Load() {
		return ErrNotConnected
	}
	for len(p) > 0 {
		n := min(len(p), maxChunk)
		if _, err := b.writer.WriteWithoutResponse(p[:n]); err != nil {
			return fmt.Errorf("write to %s failed: %w", b.address, err)
		}
		p = p[n:]
	}
	return nil
}

func (b *Bluetooth) Read(p []byte) (int, error) {
	if len(b.pending) == 0 {
		if !b.connected.Load() {
			return 0, ErrNotConnected
		}
		select {
		case data := <-b.incoming:
			b.pending = data
		case <-time.After(ReadPollInterval):
			return 0, nil
		}
	}
	n := copy(p, b.pending)
	b.pending = b.pending[n:]
	return n, nil
}

func (b *Bluetooth) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected.Swap(false) {
		return nil
	}

	registryMu.Lock()
	delete(registry, b.device.Address.String())
	registryMu.Unlock()

	return b.device.Disconnect()
}
