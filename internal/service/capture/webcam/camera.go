package webcam

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"facecapture/internal/logger"
	"facecapture/internal/model"
	"facecapture/internal/service/capture"
)

const readRetryDelay = 20 * time.Millisecond

// Options configures a Camera.
type Options struct {
	Target          string  // Device index ("0") or a path/URL understood by OpenCV
	Width           int     // Requested frame width
	Height          int     // Requested frame height
	TargetFPS       float64 // 0 keeps the device cadence
	MaxReadFailures int     // Consecutive failed reads before reporting a disconnect
}

// Camera is a capture.Source backed by an OpenCV VideoCapture.
type Camera struct {
	opts    Options
	devices *capture.Devices
	logger  *logger.Logger

	mu      sync.Mutex
	webcam  *gocv.VideoCapture
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewCamera creates a camera. Nothing is opened until Start.
func NewCamera(opts Options, devices *capture.Devices, logger *logger.Logger) *Camera {
	if opts.MaxReadFailures <= 0 {
		opts.MaxReadFailures = capture.DefaultMaxReadFailures
	}
	return &Camera{
		opts:    opts,
		devices: devices,
		logger:  logger,
	}
}

// Start opens the device and starts the delivery goroutine.
func (c *Camera) Start(ctx context.Context, onFrame capture.FrameFunc, onFatal capture.FatalFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return &capture.Error{Kind: capture.KindDeviceBusy, Target: c.opts.Target, Err: errors.New("already started")}
	}

	if err := c.devices.Acquire(c.opts.Target); err != nil {
		return err
	}

	webcam, err := c.open()
	if err != nil {
		c.devices.Release(c.opts.Target)
		return err
	}

	webcam.Set(gocv.VideoCaptureFrameWidth, float64(c.opts.Width))
	webcam.Set(gocv.VideoCaptureFrameHeight, float64(c.opts.Height))

	loopCtx, cancel := context.WithCancel(ctx)
	c.webcam = webcam
	c.cancel = cancel
	c.done = make(chan struct{})
	c.started = true

	go c.run(loopCtx, webcam, c.done, onFrame, onFatal)

	c.logger.Info("📷 Camera %s opened (%dx%d requested)", c.opts.Target, c.opts.Width, c.opts.Height)
	return nil
}

// Stop halts delivery and releases the device. Safe to call repeatedly.
// It must not be called from inside a FrameFunc or FatalFunc.
func (c *Camera) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return nil
	}

	c.cancel()
	<-c.done

	err := c.webcam.Close()
	c.webcam = nil
	c.started = false
	c.devices.Release(c.opts.Target)

	c.logger.Info("📷 Camera %s released", c.opts.Target)
	return err
}

func (c *Camera) open() (*gocv.VideoCapture, error) {
	if err := capture.ProbeDevice(c.opts.Target); err != nil {
		return nil, err
	}

	var device interface{} = c.opts.Target
	if index, err := strconv.Atoi(c.opts.Target); err == nil {
		device = index
	}

	webcam, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, &capture.Error{Kind: capture.KindDeviceUnavailable, Target: c.opts.Target, Err: err}
	}
	if !webcam.IsOpened() {
		webcam.Close()
		return nil, &capture.Error{Kind: capture.KindDeviceUnavailable, Target: c.opts.Target, Err: errors.New("device did not open")}
	}
	return webcam, nil
}

func (c *Camera) run(ctx context.Context, webcam *gocv.VideoCapture, done chan struct{}, onFrame capture.FrameFunc, onFatal capture.FatalFunc) {
	defer close(done)

	mat := gocv.NewMat()
	defer mat.Close()

	tracker := capture.NewReadTracker(c.opts.MaxReadFailures, c.opts.TargetFPS)
	var seq uint64

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if ok := webcam.Read(&mat); !ok || mat.Empty() {
			if tracker.Failed() {
				c.logger.Error("Camera %s: %d consecutive failed reads", c.opts.Target, tracker.Failures())
				if onFatal != nil {
					onFatal(&capture.Error{Kind: capture.KindDisconnected, Target: c.opts.Target})
				}
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(readRetryDelay):
			}
			continue
		}

		now := time.Now()
		if !tracker.Succeeded(now) {
			continue
		}

		buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
		if err != nil {
			c.logger.Warning("Camera %s: failed to encode frame: %v", c.opts.Target, err)
			continue
		}
		data := make([]byte, buf.Len())
		copy(data, buf.GetBytes())
		buf.Close()

		seq++
		onFrame(ctx, model.Frame{
			Seq:       seq,
			Timestamp: now,
			Width:     mat.Cols(),
			Height:    mat.Rows(),
			Data:      data,
		})
	}
}
