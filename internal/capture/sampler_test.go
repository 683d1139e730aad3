package capture

import (
	"errors"
	"image"
	"sync/atomic"
	"testing"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/detect"
	"github.com/ayusman/mudra/internal/match"
	"github.com/ayusman/mudra/internal/overlay"
)

type recordingPresenter struct {
	frames atomic.Int32
	last   atomic.Pointer[[]byte]
}

func (p *recordingPresenter) Present(jpeg []byte) {
	p.frames.Add(1)
	p.last.Store(&jpeg)
}

func TestSampler_StepSkipsWhenNotStreaming(t *testing.T) {
	cam := NewMockCamera(nil, false)
	p := &recordingPresenter{}
	s := NewSampler(cam, p, nil, func() bool { return false }, SamplerConfig{}, nil)
	defer s.Close()

	if err := s.Step(); err != nil {
		t.Errorf("Step() error = %v, want nil when not streaming", err)
	}
	if p.frames.Load() != 0 {
		t.Error("nothing should be presented when not streaming")
	}
}

func TestSampler_StepReadFailure(t *testing.T) {
	cam := NewMockCamera(nil, false)
	p := &recordingPresenter{}
	s := NewSampler(cam, p, nil, func() bool { return true }, SamplerConfig{}, nil)
	defer s.Close()

	if err := s.Step(); err == nil {
		t.Error("Step() should report a failed read")
	}
	if p.frames.Load() != 0 {
		t.Error("a failed read should present nothing")
	}
	if _, err := s.Still(); !errors.Is(err, ErrNoFrame) {
		t.Errorf("Still() error = %v, want ErrNoFrame", err)
	}
}

func TestSampler_StepDrawsOverlay(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 240, 320, gocv.MatTypeCV8UC3)
	defer frame.Close()

	cam := NewMockCamera([]*gocv.Mat{&frame}, true)
	cam.Open()
	defer cam.Close()

	slot := &overlay.Slot{}
	slot.Store(&overlay.Frame{
		Detections: []detect.Detection{{ClassID: "1", ClassName: "ban", Confidence: 0.9, BBox: detect.BBox{X1: 40, Y1: 40, X2: 120, Y2: 120}}},
		Outcome:    match.Correct,
		Size:       image.Pt(160, 120),
	})

	p := &recordingPresenter{}
	s := NewSampler(cam, p, slot, func() bool { return true }, SamplerConfig{}, nil)
	defer s.Close()

	if err := s.Step(); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if p.frames.Load() != 1 {
		t.Fatalf("presented %d frames, want 1", p.frames.Load())
	}

	decoded, err := gocv.IMDecode(*p.last.Load(), gocv.IMReadColor)
	if err != nil {
		t.Fatalf("decode presented frame: %v", err)
	}
	defer decoded.Close()

	if decoded.Cols() != 320 || decoded.Rows() != 240 {
		t.Errorf("presented frame is %dx%d, want native 320x240", decoded.Cols(), decoded.Rows())
	}

	// The scaled box edge at (80, 160) should be green after JPEG round trip.
	v := decoded.GetVecbAt(160, 80)
	if v[1] < 120 || v[2] > 100 {
		t.Errorf("pixel on box edge = %v, want mostly green", v)
	}

	// The raw frame kept for stills has no overlay.
	still, err := s.Still()
	if err != nil {
		t.Fatalf("Still() error = %v", err)
	}
	raw, err := gocv.IMDecode(still.JPEG, gocv.IMReadColor)
	if err != nil {
		t.Fatalf("decode still: %v", err)
	}
	defer raw.Close()
	if v := raw.GetVecbAt(80, 80); v[1] > 40 {
		t.Errorf("still pixel = %v, want the raw black frame", v)
	}
}

func TestSampler_MotionGate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(10, 10, 10, 0), 240, 320, gocv.MatTypeCV8UC3)
	defer frame.Close()

	cam := NewMockCamera([]*gocv.Mat{&frame}, true)
	cam.Open()
	defer cam.Close()

	s := NewSampler(cam, &recordingPresenter{}, nil, func() bool { return true }, SamplerConfig{MotionThreshold: 1}, nil)
	defer s.Close()

	s.Step()
	first, err := s.Still()
	if err != nil {
		t.Fatalf("Still() error = %v", err)
	}
	if !first.Moved {
		t.Error("first still should count as moved")
	}

	s.Step()
	second, err := s.Still()
	if err != nil {
		t.Fatalf("Still() error = %v", err)
	}
	if second.Moved {
		t.Error("unchanged scene should not count as moved")
	}

	s.Reset()
	if _, err := s.Still(); !errors.Is(err, ErrNoFrame) {
		t.Errorf("Still() after Reset error = %v, want ErrNoFrame", err)
	}
}
