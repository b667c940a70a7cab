package testutils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/srg/charlist/internal/device"
	"gopkg.in/yaml.v3"
)

// CharacteristicConfig represents a characteristic of a fake device
type CharacteristicConfig struct {
	ID         string `json:"id,omitempty" yaml:"id,omitempty"`
	UUID       string `json:"uuid" yaml:"uuid"`
	Properties string `json:"properties,omitempty" yaml:"properties,omitempty"` // e.g., "read,notify"
}

// ServiceConfig represents a service of a fake device
type ServiceConfig struct {
	UUID            string                 `json:"uuid" yaml:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty" yaml:"characteristics,omitempty"`
}

// DeviceConfig represents one fake device reachable through a FakeBroker
type DeviceConfig struct {
	Address      string          `json:"address" yaml:"address"`
	Services     []ServiceConfig `json:"services" yaml:"services"`
	ConnectError string          `json:"connect_error,omitempty" yaml:"connect_error,omitempty"`
	FetchError   string          `json:"fetch_error,omitempty" yaml:"fetch_error,omitempty"`
}

// BrokerProfileConfig is the complete fake broker profile
type BrokerProfileConfig struct {
	Devices []DeviceConfig `json:"devices" yaml:"devices"`
}

// BrokerBuilder builds a FakeBroker from a fluent API, JSON or YAML
type BrokerBuilder struct {
	profile BrokerProfileConfig
}

// NewBrokerBuilder creates an empty builder
func NewBrokerBuilder() *BrokerBuilder {
	return &BrokerBuilder{}
}

// WithDevice adds a device
func (b *BrokerBuilder) WithDevice(address string) *BrokerBuilder {
	b.profile.Devices = append(b.profile.Devices, DeviceConfig{Address: address})
	return b
}

// WithService adds a service to the last added device
func (b *BrokerBuilder) WithService(uuid string) *BrokerBuilder {
	if len(b.profile.Devices) == 0 {
		panic("WithService: no device added yet, call WithDevice first")
	}
	d := &b.profile.Devices[len(b.profile.Devices)-1]
	d.Services = append(d.Services, ServiceConfig{UUID: uuid})
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *BrokerBuilder) WithCharacteristic(uuid, properties string) *BrokerBuilder {
	if len(b.profile.Devices) == 0 || len(b.profile.Devices[len(b.profile.Devices)-1].Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}
	d := &b.profile.Devices[len(b.profile.Devices)-1]
	s := &d.Services[len(d.Services)-1]
	s.Characteristics = append(s.Characteristics, CharacteristicConfig{UUID: uuid, Properties: properties})
	return b
}

// FromJSON fills the profile from JSON
func (b *BrokerBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *BrokerBuilder {
	var config BrokerProfileConfig
	if err := json.Unmarshal([]byte(fmt.Sprintf(jsonStrFmt, args...)), &config); err != nil {
		panic(fmt.Sprintf("BrokerBuilder.FromJSON: failed to unmarshal: %v", err))
	}
	b.profile = config
	return b
}

// FromYAML fills the profile from YAML
func (b *BrokerBuilder) FromYAML(yamlStr string) *BrokerBuilder {
	var config BrokerProfileConfig
	if err := yaml.Unmarshal([]byte(yamlStr), &config); err != nil {
		panic(fmt.Sprintf("BrokerBuilder.FromYAML: failed to unmarshal: %v", err))
	}
	b.profile = config
	return b
}

// Build creates the FakeBroker. It panics on invalid property lists.
func (b *BrokerBuilder) Build() *FakeBroker {
	fb := &FakeBroker{devices: make(map[string]*fakeDevice)}
	for _, dc := range b.profile.Devices {
		dev := &fakeDevice{broker: fb, address: dc.Address, services: make(map[string][]device.CharacteristicInfo)}
		if dc.ConnectError != "" {
			dev.connectErr = errors.New(dc.ConnectError)
		}
		if dc.FetchError != "" {
			dev.fetchErr = errors.New(dc.FetchError)
		}
		for _, sc := range dc.Services {
			svc := device.NormalizeUUID(sc.UUID)
			chars := make([]device.CharacteristicInfo, 0, len(sc.Characteristics))
			for i, cc := range sc.Characteristics {
				props, err := device.ParseProperties(cc.Properties)
				if err != nil {
					panic(fmt.Sprintf("BrokerBuilder.Build: %v", err))
				}
				id := cc.ID
				if id == "" {
					id = fmt.Sprintf("%s/%04x", svc, 3*(i+1))
				}
				chars = append(chars, device.CharacteristicInfo{
					ID:         id,
					UUID:       device.UUID{UUID: device.NormalizeUUID(cc.UUID)},
					Properties: props,
				})
			}
			dev.services[svc] = chars
		}
		fb.devices[strings.ToUpper(dc.Address)] = dev
	}
	return fb
}

// FakeBroker is an in-memory device.Broker with call counters and failure injection.
type FakeBroker struct {
	mu            sync.Mutex
	devices       map[string]*fakeDevice
	connectCalls  atomic.Int32
	fetchCalls    atomic.Int32
	failConnects  int
	failErr       error
	hold          chan struct{}
	entered       chan struct{}
	lastServiceID atomic.Value
}

// ConnectCalls returns the number of ConnectToDevice calls
func (b *FakeBroker) ConnectCalls() int {
	return int(b.connectCalls.Load())
}

// FetchCalls returns the number of GetCharacteristics calls
func (b *FakeBroker) FetchCalls() int {
	return int(b.fetchCalls.Load())
}

// LastServiceID returns the service id of the most recent fetch
func (b *FakeBroker) LastServiceID() string {
	s, _ := b.lastServiceID.Load().(string)
	return s
}

// FailNextConnects makes the next n ConnectToDevice calls fail with err
func (b *FakeBroker) FailNextConnects(n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failConnects = n
	b.failErr = err
}

// Hold blocks subsequent ConnectToDevice calls until release is called. entered
// receives one value per call that reached the hold.
func (b *FakeBroker) Hold() (entered <-chan struct{}, release func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	hold := make(chan struct{})
	b.hold = hold
	b.entered = make(chan struct{}, 64)
	var once sync.Once
	return b.entered, func() {
		once.Do(func() {
			b.mu.Lock()
			b.hold = nil
			b.mu.Unlock()
			close(hold)
		})
	}
}

// ConnectToDevice implements device.Broker
func (b *FakeBroker) ConnectToDevice(ctx context.Context, address string) (device.DeviceHandle, error) {
	b.connectCalls.Add(1)

	b.mu.Lock()
	hold, entered := b.hold, b.entered
	var injected error
	if b.failConnects > 0 {
		b.failConnects--
		injected = b.failErr
	}
	dev := b.devices[strings.ToUpper(address)]
	b.mu.Unlock()

	if hold != nil {
		entered <- struct{}{}
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if injected != nil {
		return nil, injected
	}
	if dev == nil {
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", address, device.ErrTimeout)
	}
	if dev.connectErr != nil {
		return nil, dev.connectErr
	}
	return dev, nil
}

type fakeDevice struct {
	broker     *FakeBroker
	address    string
	services   map[string][]device.CharacteristicInfo
	connectErr error
	fetchErr   error
}

func (d *fakeDevice) Address() string {
	return d.address
}

func (d *fakeDevice) GetCharacteristics(ctx context.Context, serviceID string) (*device.CharacteristicsResponse, error) {
	d.broker.fetchCalls.Add(1)
	d.broker.lastServiceID.Store(serviceID)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.fetchErr != nil {
		return nil, d.fetchErr
	}
	chars, ok := d.services[device.NormalizeUUID(serviceID)]
	if !ok {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{serviceID}}
	}
	out := make([]device.CharacteristicInfo, len(chars))
	copy(out, chars)
	return &device.CharacteristicsResponse{Characteristics: out}, nil
}
