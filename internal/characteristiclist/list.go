// Package characteristiclist displays the GATT characteristics of one service of a device.
package characteristiclist

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/charlist/internal/device"
	"github.com/srg/charlist/internal/groutine"
	"github.com/srg/charlist/internal/ui/expandable"
	"github.com/srg/charlist/internal/ui/snackbar"
)

// EmptyMessage is shown when a completed load returned no characteristics.
const EmptyMessage = "No Characteristics Found"

// RetryLabel is the action label of the failure notification.
const RetryLabel = "Retry"

// Notifier shows a transient notification with an optional action.
// *snackbar.Snackbar implements it.
type Notifier interface {
	Show(message string, t snackbar.Type, actionLabel string, action func())
}

// FetchError reports a failed load, whether connecting or fetching failed.
type FetchError struct {
	Address   string
	ServiceID string
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to load characteristics of service %s on %s: %v", e.ServiceID, e.Address, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// List is an expandable list of characteristics loaded from a device.Broker.
//
// Load only proceeds while the list is loading. A new List is loading; owners that
// reuse a populated list call SetLoading(true) before loading it again.
type List struct {
	*expandable.List[device.CharacteristicInfo]

	broker   device.Broker
	notifier Notifier
	logger   *logrus.Logger

	requested atomic.Bool

	errMu   sync.RWMutex
	lastErr error
}

// NewList creates a List loading through broker and reporting failures to notifier.
func NewList(broker device.Broker, notifier Notifier, logger *logrus.Logger) *List {
	if logger == nil {
		logger = logrus.New()
	}
	l := &List{
		broker:   broker,
		notifier: notifier,
		logger:   logger,
	}
	l.List = expandable.NewList[device.CharacteristicInfo](l.CreateItem)
	l.SetEmptyMessage(EmptyMessage)
	l.SetLoadingMessage("Loading characteristics...")
	return l
}

// CreateItem builds the row for one characteristic.
func (l *List) CreateItem(data device.CharacteristicInfo) expandable.Item {
	return NewListItem(data)
}

// Requested reports whether a load is in flight.
func (l *List) Requested() bool {
	return l.requested.Load()
}

// LastError returns the *FetchError of the most recent failed load, nil after a success.
func (l *List) LastError() error {
	l.errMu.RLock()
	defer l.errMu.RUnlock()
	return l.lastErr
}

func (l *List) setLastError(err error) {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	l.lastErr = err
}

// Load fetches the characteristics of serviceID on the device at deviceAddress and
// replaces the list data with them. It is a no-op when a load is already in flight or
// the list is not loading. Failures are shown through the notifier with a Retry action
// that repeats the call. Reports whether a broker request was issued.
func (l *List) Load(ctx context.Context, deviceAddress, serviceID string) bool {
	log := l.logger.WithFields(logrus.Fields{
		"address": deviceAddress,
		"service": serviceID,
	})

	// Claim the request before checking the loading state; a load that completed in
	// between has already cleared loading by the time the flag is released.
	if !l.requested.CompareAndSwap(false, true) {
		log.Debug("Characteristics already requested, ignoring load request")
		return false
	}
	if !l.IsLoading() {
		l.requested.Store(false)
		log.Debug("List is not loading, ignoring load request")
		return false
	}

	log.Debug("Requesting characteristics...")
	chars, err := l.fetch(ctx, deviceAddress, serviceID)
	if err != nil {
		l.setLastError(&FetchError{Address: deviceAddress, ServiceID: serviceID, Err: err})
		l.requested.Store(false)
		log.WithError(err).Warn("Failed to load characteristics")

		l.notifier.Show(deviceAddress+": "+err.Error(), snackbar.Error, RetryLabel, func() {
			l.Load(ctx, deviceAddress, serviceID)
		})
		return true
	}

	l.SetData(expandable.NewArrayDataModel(chars))
	l.SetLoading(false)
	l.setLastError(nil)
	l.requested.Store(false)

	log.WithField("characteristics", len(chars)).Info("Characteristics loaded")
	return true
}

// LoadAsync runs Load on a named goroutine. The returned channel is closed when the
// attempt finishes or is dropped.
func (l *List) LoadAsync(ctx context.Context, deviceAddress, serviceID string) <-chan struct{} {
	return groutine.GoDone(ctx, "characteristic-load", func(ctx context.Context) {
		l.Load(ctx, deviceAddress, serviceID)
	})
}

func (l *List) fetch(ctx context.Context, deviceAddress, serviceID string) ([]device.CharacteristicInfo, error) {
	handle, err := l.broker.ConnectToDevice(ctx, deviceAddress)
	if err != nil {
		return nil, err
	}
	resp, err := handle.GetCharacteristics(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	return resp.Characteristics, nil
}

// MarshalJSON renders the loaded items, or an empty array.
func (l *List) MarshalJSON() ([]byte, error) {
	items := l.Items()
	out := make([]json.Marshaler, 0, len(items))
	for _, item := range items {
		if m, ok := item.(json.Marshaler); ok {
			out = append(out, m)
		}
	}
	return json.Marshal(out)
}
