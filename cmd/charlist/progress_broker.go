package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/srg/charlist/internal/device"
)

// Progress phases of one load attempt
const (
	phaseConnecting = "Connecting"
	phaseReading    = "Reading characteristics"
)

// progressBroker shows a progress line for every load attempt, retries included.
// The line is cleared before the attempt returns so notifications print on a clean line.
type progressBroker struct {
	device.Broker
	out     io.Writer
	timeout time.Duration
}

func (b *progressBroker) ConnectToDevice(ctx context.Context, address string) (device.DeviceHandle, error) {
	progress := NewProgressPrinter(b.out, fmt.Sprintf("Loading characteristics from %s", address), phaseConnecting, b.timeout)
	progress.Start()

	h, err := b.Broker.ConnectToDevice(ctx, address)
	if err != nil {
		progress.Stop()
		return nil, err
	}
	progress.SetPhase(phaseReading)
	return &progressHandle{DeviceHandle: h, progress: progress}, nil
}

type progressHandle struct {
	device.DeviceHandle
	progress *ProgressPrinter
}

func (h *progressHandle) GetCharacteristics(ctx context.Context, serviceID string) (*device.CharacteristicsResponse, error) {
	defer h.progress.Stop()
	return h.DeviceHandle.GetCharacteristics(ctx, serviceID)
}
