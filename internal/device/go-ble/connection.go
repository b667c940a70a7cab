package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/charlist/internal/device"
)

// Client is the subset of ble.Client used by a Connection.
// ble.Client satisfies it; tests provide fakes.
type Client interface {
	Addr() ble.Addr
	DiscoverProfile(force bool) (*ble.Profile, error)
	ReadDescriptor(d *ble.Descriptor) ([]byte, error)
	CancelConnection() error
	Disconnected() <-chan struct{}
}

// extendedPropertiesUUID is the Characteristic Extended Properties descriptor (0x2900).
var extendedPropertiesUUID = ble.UUID16(0x2900)

// Extended properties descriptor bits
const (
	extReliableWrite       = 0x01
	extWritableAuxiliaries = 0x02
)

// Connection is a live go-ble connection to one device. It implements device.DeviceHandle.
type Connection struct {
	address string
	client  Client
	logger  *logrus.Logger

	mu       sync.RWMutex
	services []*ble.Service

	closed atomic.Bool
}

// newConnection discovers the GATT profile of a freshly dialed client.
// The client connection is cancelled when discovery fails.
func newConnection(ctx context.Context, address string, client Client, logger *logrus.Logger) (*Connection, error) {
	c := &Connection{
		address: address,
		client:  client,
		logger:  logger,
	}

	logger.WithField("address", address).Debug("Discovering services and characteristics...")
	profile, err := discoverProfile(ctx, client)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to discover profile")
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection during profile discovery failure")
		}
		return nil, fmt.Errorf("failed to discover profile: %w", err)
	}

	c.services = profile.Services
	logger.WithFields(logrus.Fields{
		"address":  address,
		"services": len(profile.Services),
	}).Debug("Profile discovered successfully")

	return c, nil
}

// discoverProfile runs the blocking go-ble discovery and gives up when ctx is done.
func discoverProfile(ctx context.Context, client Client) (*ble.Profile, error) {
	type result struct {
		profile *ble.Profile
		err     error
	}
	done := make(chan result, 1)
	go func() {
		p, err := client.DiscoverProfile(true)
		done <- result{profile: p, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, device.NormalizeError(r.err)
		}
		if r.profile == nil {
			return &ble.Profile{}, nil
		}
		return r.profile, nil
	case <-ctx.Done():
		return nil, device.NormalizeError(ctx.Err())
	}
}

// Address returns the device address this connection was dialed with.
func (c *Connection) Address() string {
	return c.address
}

// IsConnected reports whether the connection is still usable.
func (c *Connection) IsConnected() bool {
	return !c.closed.Load()
}

// GetCharacteristics returns every characteristic of the service identified by serviceID,
// in discovery order.
func (c *Connection) GetCharacteristics(ctx context.Context, serviceID string) (*device.CharacteristicsResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, device.NormalizeError(err)
	}
	if c.closed.Load() {
		return nil, &device.ConnectionError{State: device.NotConnected, Msg: c.address}
	}

	normalized, err := device.ValidateUUID(serviceID)
	if err != nil {
		return nil, fmt.Errorf("invalid service id: %w", err)
	}
	want := normalized[0]

	svc := c.service(want)
	if svc == nil {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{serviceID}}
	}

	chars := make([]device.CharacteristicInfo, 0, len(svc.Characteristics))
	for i, ch := range svc.Characteristics {
		if err := ctx.Err(); err != nil {
			return nil, device.NormalizeError(err)
		}
		props, err := c.properties(ctx, ch)
		if err != nil {
			return nil, err
		}
		chars = append(chars, device.CharacteristicInfo{
			ID:         characteristicID(want, ch, i),
			UUID:       device.UUID{UUID: device.NormalizeUUID(ch.UUID.String())},
			Properties: props,
		})
	}

	c.logger.WithFields(logrus.Fields{
		"address":         c.address,
		"service":         want,
		"characteristics": len(chars),
	}).Debug("Characteristics resolved")
	return &device.CharacteristicsResponse{Characteristics: chars}, nil
}

// service returns the discovered service with the normalized UUID want, or nil.
func (c *Connection) service(want string) *ble.Service {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, svc := range c.services {
		if device.NormalizeUUID(svc.UUID.String()) == want {
			return svc
		}
	}
	return nil
}

// characteristicID identifies a characteristic within its device. The value handle is
// used when the backend reports one; CoreBluetooth does not, so the position is used instead.
func characteristicID(service string, ch *ble.Characteristic, index int) string {
	if ch.ValueHandle != 0 {
		return fmt.Sprintf("%s/%04x", service, ch.ValueHandle)
	}
	return fmt.Sprintf("%s/#%d", service, index+1)
}

// properties maps the declaration property byte and, when advertised, the extended
// properties descriptor to a device.Property mask. A failed descriptor read keeps the
// declaration bits; only ctx ending is an error.
func (c *Connection) properties(ctx context.Context, ch *ble.Characteristic) (device.Property, error) {
	p := NewProperties(ch.Property)
	if ch.Property&ble.CharExtended == 0 {
		return p, nil
	}

	for _, d := range ch.Descriptors {
		if !d.UUID.Equal(extendedPropertiesUUID) {
			continue
		}
		value := d.Value
		if len(value) == 0 {
			v, err := c.readDescriptor(ctx, d)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return 0, device.NormalizeError(ctxErr)
			}
			if err != nil {
				c.logger.WithFields(logrus.Fields{
					"char_uuid":  ch.UUID.String(),
					"descriptor": device.KnownDescriptorName(d.UUID.String()),
					"error":      err,
				}).Debug("Failed to read extended properties descriptor")
				return p, nil
			}
			value = v
		}
		return p | extendedProperties(value), nil
	}
	return p, nil
}

// readDescriptor runs the blocking go-ble read and gives up when ctx is done.
func (c *Connection) readDescriptor(ctx context.Context, d *ble.Descriptor) ([]byte, error) {
	type result struct {
		value []byte
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := c.client.ReadDescriptor(d)
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// extendedProperties decodes the first octet of a 0x2900 descriptor value.
func extendedProperties(value []byte) device.Property {
	if len(value) == 0 {
		return 0
	}
	var p device.Property
	if value[0]&extReliableWrite != 0 {
		p |= device.PropertyReliableWrite
	}
	if value[0]&extWritableAuxiliaries != 0 {
		p |= device.PropertyWritableAuxiliaries
	}
	return p
}

// Close cancels the underlying connection. Safe to call more than once.
func (c *Connection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := c.client.CancelConnection()
	if err != nil && !errors.Is(device.NormalizeError(err), device.ErrNotConnected) {
		c.logger.WithFields(logrus.Fields{
			"address": c.address,
			"error":   err,
		}).Warn("BLE device disconnected with errors")
		return err
	}
	c.logger.WithField("address", c.address).Info("BLE device disconnected successfully")
	return nil
}
