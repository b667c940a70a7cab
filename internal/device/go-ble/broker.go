package goble

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/charlist/internal/device"
	"github.com/srg/charlist/internal/groutine"
)

// DefaultConnectTimeout bounds dialing plus profile discovery.
const DefaultConnectTimeout = 30 * time.Second

// DeviceFactory creates the platform ble.Device (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newPlatformDevice

// Dialer opens a client connection to address.
type Dialer func(ctx context.Context, address string) (Client, error)

// DeviceDialer returns a Dialer backed by a single ble.Device created on first use
// through DeviceFactory.
func DeviceDialer() Dialer {
	var (
		once   sync.Once
		dev    ble.Device
		devErr error
	)
	return func(ctx context.Context, address string) (Client, error) {
		once.Do(func() {
			dev, devErr = DeviceFactory()
		})
		if devErr != nil {
			return nil, fmt.Errorf("failed to create BLE device: %w", devErr)
		}
		client, err := dev.Dial(ctx, ble.NewAddr(address))
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// BrokerOptions configures a Broker.
type BrokerOptions struct {
	ConnectTimeout time.Duration
	Dialer         Dialer
}

// Broker implements device.Broker on top of go-ble. One Connection is kept per address
// and reused until the device disconnects or the broker is closed.
type Broker struct {
	logger *logrus.Logger
	opts   BrokerOptions

	dialMu sync.Mutex
	conns  *hashmap.Map[string, *Connection]
	closed atomic.Bool
}

// NewBroker creates a Broker. A nil opts uses DefaultConnectTimeout and DeviceDialer.
func NewBroker(logger *logrus.Logger, opts *BrokerOptions) *Broker {
	if logger == nil {
		logger = logrus.New()
	}
	o := BrokerOptions{}
	if opts != nil {
		o = *opts
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.Dialer == nil {
		o.Dialer = DeviceDialer()
	}

	return &Broker{
		logger: logger,
		opts:   o,
		conns:  hashmap.New[string, *Connection](),
	}
}

// connKey normalizes an address for cache lookup.
func connKey(address string) string {
	return strings.ToUpper(strings.TrimSpace(address))
}

// ConnectToDevice returns the active connection to address, dialing one if none exists.
func (b *Broker) ConnectToDevice(ctx context.Context, address string) (device.DeviceHandle, error) {
	if b.closed.Load() {
		return nil, device.ErrClosed
	}
	if strings.TrimSpace(address) == "" {
		b.logger.Error("Connection attempt with empty address")
		return nil, fmt.Errorf("device address is empty")
	}

	key := connKey(address)
	if conn, ok := b.conns.Get(key); ok && conn.IsConnected() {
		b.logger.WithField("address", address).Debug("Reusing active connection")
		return conn, nil
	}

	// Serialize dialing so concurrent callers share one connection
	b.dialMu.Lock()
	defer b.dialMu.Unlock()

	if conn, ok := b.conns.Get(key); ok && conn.IsConnected() {
		return conn, nil
	}

	b.logger.WithFields(logrus.Fields{
		"address": address,
		"timeout": b.opts.ConnectTimeout,
	}).Info("Connecting to BLE device...")

	connCtx, cancel := context.WithTimeout(ctx, b.opts.ConnectTimeout)
	defer cancel()

	client, err := b.opts.Dialer(connCtx, address)
	if err != nil {
		b.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", address, device.NormalizeError(err))
	}

	conn, err := newConnection(connCtx, address, client, b.logger)
	if err != nil {
		return nil, err
	}

	b.conns.Set(key, conn)
	b.watchDisconnect(key, conn)

	b.logger.WithField("address", address).Info("BLE device connected successfully")
	return conn, nil
}

// watchDisconnect evicts conn from the cache once the client reports a disconnection.
func (b *Broker) watchDisconnect(key string, conn *Connection) {
	disconnected := conn.client.Disconnected()
	if disconnected == nil {
		return
	}
	groutine.Go(context.Background(), "ble-connection-monitor", func(ctx context.Context) {
		<-disconnected
		conn.closed.Store(true)
		if cur, ok := b.conns.Get(key); ok && cur == conn {
			b.conns.Del(key)
		}
		b.logger.WithField("address", conn.address).Warn("Device reported disconnection")
	})
}

// Connections returns the number of cached connections.
func (b *Broker) Connections() int {
	return b.conns.Len()
}

// Close disconnects every cached connection. ConnectToDevice fails with device.ErrClosed afterwards.
func (b *Broker) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	b.dialMu.Lock()
	defer b.dialMu.Unlock()

	b.logger.WithField("connections", b.Connections()).Debug("Closing BLE broker")

	var keys []string
	var errs []string
	b.conns.Range(func(key string, conn *Connection) bool {
		keys = append(keys, key)
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", conn.address, err))
		}
		return true
	})
	for _, key := range keys {
		b.conns.Del(key)
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to disconnect %s", strings.Join(errs, "; "))
	}
	return nil
}
