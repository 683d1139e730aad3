package capture

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/overlay"
)

// Surface is the display the controller binds while streaming.
type Surface interface {
	Presenter
	Attach(size image.Point)
	Detach()
}

// Controller owns the camera for one practice view. It opens the device,
// binds the display surface and runs the render loop until Stop.
type Controller struct {
	cam     Camera
	surface Surface
	sampler *Sampler
	logger  *zap.SugaredLogger

	streaming atomic.Bool
	run       atomic.Uint64

	mu      sync.Mutex
	lastErr error
	cancel  context.CancelFunc
	done    chan struct{}
	stopped chan struct{}
}

// NewController creates a controller for cam that presents onto surface and
// draws the detection in slot.
func NewController(cam Camera, surface Surface, slot *overlay.Slot, cfg SamplerConfig, logger *zap.SugaredLogger) *Controller {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	c := &Controller{
		cam:     cam,
		surface: surface,
		logger:  logger,
	}
	c.sampler = NewSampler(cam, surface, slot, c.streaming.Load, cfg, logger)
	return c
}

// Start opens the camera and starts the render loop. Cancelling ctx stops the
// controller as if Stop were called. A failure is returned as *DeviceError,
// recorded as LastError, and leaves nothing acquired.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.streaming.Load() {
		return nil
	}

	if err := c.cam.Open(); err != nil {
		c.cam.Close()
		var de *DeviceError
		if !errors.As(err, &de) {
			de = &DeviceError{Err: err}
		}
		c.lastErr = de
		c.logger.Warnw("camera start failed", "error", err)
		return de
	}

	c.lastErr = nil
	c.surface.Attach(c.cam.Size())
	c.run.Add(1)
	c.streaming.Store(true)

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	stopped := make(chan struct{})
	c.cancel, c.done, c.stopped = cancel, done, stopped

	go func() {
		defer close(done)
		c.sampler.Run(loopCtx)
	}()

	go func() {
		select {
		case <-ctx.Done():
			c.Stop()
		case <-stopped:
		}
	}()

	c.logger.Infow("camera started", "size", c.cam.Size(), "run", c.run.Load())
	return nil
}

// Stop halts the render loop, releases the camera and detaches the surface.
// It is safe to call at any time and more than once.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasStreaming := c.streaming.Swap(false)

	if c.cancel != nil {
		c.cancel()
		<-c.done
		close(c.stopped)
		c.cancel, c.done, c.stopped = nil, nil, nil
	}

	err := c.cam.Close()
	c.surface.Detach()
	c.sampler.Reset()

	if wasStreaming {
		c.logger.Infow("camera stopped", "run", c.run.Load())
	}
	return err
}

// IsStreaming reports whether the camera is live.
func (c *Controller) IsStreaming() bool {
	return c.streaming.Load()
}

// Run returns the current camera run number. It changes on every successful Start.
func (c *Controller) Run() uint64 {
	return c.run.Load()
}

// Live reports whether run is the current run and the camera is streaming.
func (c *Controller) Live(run uint64) bool {
	return c.streaming.Load() && c.run.Load() == run
}

// LastError returns the error of the last failed Start, or nil.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Still extracts a detection still from the latest frame.
func (c *Controller) Still() (*Still, error) {
	if !c.streaming.Load() {
		return nil, ErrCameraNotOpen
	}
	return c.sampler.Still()
}

// Close stops the controller and releases the sampler buffers.
func (c *Controller) Close() error {
	err := c.Stop()
	c.sampler.Close()
	return err
}
