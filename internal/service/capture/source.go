// Package capture defines the frame source contract and the exclusive
// device registry shared by all camera implementations.
package capture

import (
	"context"

	"facecapture/internal/model"
)

// FrameFunc receives one frame. It is called synchronously on the source's
// delivery goroutine; the next frame is not read until it returns.
type FrameFunc func(ctx context.Context, frame model.Frame)

// FatalFunc is called at most once when the source can no longer deliver
// frames (for example the device was unplugged).
type FatalFunc func(err error)

// Source wraps a live capture device.
//
// Start acquires the device and begins delivering frames. On failure the
// device is released before Start returns. Stop releases the device, waits
// for the delivery goroutine to exit and is idempotent.
type Source interface {
	Start(ctx context.Context, onFrame FrameFunc, onFatal FatalFunc) error
	Stop() error
}
