package capture

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/overlay"
)

// ErrNoFrame is returned by Still before the first frame has been read.
var ErrNoFrame = errors.New("no frame captured yet")

// Sampler defaults
const (
	DefaultRefreshHz     = 30
	DefaultStillQuality  = 0.4
	DefaultStillMaxWidth = 320
	displayQuality       = 80
)

// Presenter receives the composed display frames.
type Presenter interface {
	Present(jpeg []byte)
}

// SamplerConfig controls the render loop and still extraction.
type SamplerConfig struct {
	// RefreshHz is the render loop rate.
	RefreshHz int
	// StillQuality is the JPEG quality of detection stills, between 0 and 1.
	StillQuality float64
	// StillMaxWidth caps the width of detection stills; 0 keeps native size.
	StillMaxWidth int
	// MotionThreshold enables the motion gate when above zero.
	MotionThreshold float64
}

// Still is a JPEG extracted for detection.
type Still struct {
	JPEG []byte
	Size image.Point
	// Moved is false only when the motion gate is on and the scene is unchanged.
	Moved bool
}

// Sampler runs the per-refresh render loop: read, composite overlay, present.
// It also keeps the latest raw frame for detection stills.
type Sampler struct {
	cam       Camera
	presenter Presenter
	slot      *overlay.Slot
	streaming func() bool
	cfg       SamplerConfig
	logger    *zap.SugaredLogger
	motion    *MotionDetector

	mu        sync.Mutex
	latest    gocv.Mat
	hasLatest bool
}

// NewSampler creates a sampler. streaming is consulted on every tick.
func NewSampler(cam Camera, presenter Presenter, slot *overlay.Slot, streaming func() bool, cfg SamplerConfig, logger *zap.SugaredLogger) *Sampler {
	if cfg.RefreshHz <= 0 {
		cfg.RefreshHz = DefaultRefreshHz
	}
	if cfg.StillQuality <= 0 || cfg.StillQuality > 1 {
		cfg.StillQuality = DefaultStillQuality
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	s := &Sampler{
		cam:       cam,
		presenter: presenter,
		slot:      slot,
		streaming: streaming,
		cfg:       cfg,
		logger:    logger,
		latest:    gocv.NewMat(),
	}
	if cfg.MotionThreshold > 0 {
		s.motion = NewMotionDetector(cfg.MotionThreshold)
	}
	return s
}

// Run steps the loop once per refresh until ctx is done.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.RefreshHz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Step(); err != nil {
				s.logger.Debugw("render step skipped", "error", err)
			}
		}
	}
}

// Step renders one frame. A failed or empty read skips the tick.
func (s *Sampler) Step() error {
	if !s.streaming() {
		return nil
	}

	frame, err := s.cam.ReadFrame()
	if err != nil {
		return err
	}
	defer frame.Close()

	s.mu.Lock()
	frame.CopyTo(&s.latest)
	s.hasLatest = true
	s.mu.Unlock()

	buf := frame.Clone()
	defer buf.Close()

	if s.slot != nil {
		if err := overlay.Render(&buf, s.slot.Load()); err != nil {
			return err
		}
	}

	encoded, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, buf, []int{gocv.IMWriteJpegQuality, displayQuality})
	if err != nil {
		return err
	}
	defer encoded.Close()

	out := make([]byte, encoded.Len())
	copy(out, encoded.GetBytes())

	// Re-check: Stop may have detached the surface while this frame was composed.
	if s.streaming() {
		s.presenter.Present(out)
	}
	return nil
}

// Still encodes the latest raw frame at the configured quality and width.
func (s *Sampler) Still() (*Still, error) {
	s.mu.Lock()
	if !s.hasLatest {
		s.mu.Unlock()
		return nil, ErrNoFrame
	}
	frame := s.latest.Clone()
	s.mu.Unlock()
	defer frame.Close()

	moved := true
	if s.motion != nil {
		moved, _ = s.motion.Detect(&frame)
	}

	still := frame
	if maxW := s.cfg.StillMaxWidth; maxW > 0 && frame.Cols() > maxW {
		resized := gocv.NewMat()
		defer resized.Close()
		h := frame.Rows() * maxW / frame.Cols()
		if err := gocv.Resize(frame, &resized, image.Pt(maxW, h), 0, 0, gocv.InterpolationArea); err != nil {
			return nil, err
		}
		still = resized
	}

	quality := int(s.cfg.StillQuality*100 + 0.5)
	encoded, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, still, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, err
	}
	defer encoded.Close()

	out := make([]byte, encoded.Len())
	copy(out, encoded.GetBytes())

	return &Still{
		JPEG:  out,
		Size:  image.Pt(still.Cols(), still.Rows()),
		Moved: moved,
	}, nil
}

// Reset forgets the latest frame and the motion baseline.
func (s *Sampler) Reset() {
	s.mu.Lock()
	s.hasLatest = false
	s.mu.Unlock()

	if s.motion != nil {
		s.motion.Reset()
	}
}

// Close releases the frame buffers.
func (s *Sampler) Close() {
	s.mu.Lock()
	s.latest.Close()
	s.latest = gocv.NewMat()
	s.hasLatest = false
	s.mu.Unlock()

	if s.motion != nil {
		s.motion.Close()
	}
}
