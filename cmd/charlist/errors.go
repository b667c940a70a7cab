package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/charlist/internal/characteristiclist"
	"github.com/srg/charlist/internal/device"
)

// Command-level errors
var (
	// ErrRetryDeclined indicates a load failed and no retry was accepted.
	ErrRetryDeclined = errors.New("retry declined")
)

// FormatUserError turns err into a one-line message for the terminal
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var fetchErr *characteristiclist.FetchError
	if errors.As(err, &fetchErr) {
		return fmt.Sprintf("could not load characteristics of service %s from %s: %s",
			fetchErr.ServiceID, fetchErr.Address, describe(fetchErr.Err))
	}
	return describe(err)
}

func describe(err error) string {
	var notFound *device.NotFoundError
	switch {
	case errors.As(err, &notFound):
		return notFound.Error() + " on device"
	case errors.Is(err, device.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "connection timed out (is the device powered on and in range?)"
	case errors.Is(err, device.ErrNotConnected):
		return "device disconnected"
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off"
	case errors.Is(err, device.ErrUnsupported):
		return "Bluetooth is not supported on this platform"
	default:
		return err.Error()
	}
}
