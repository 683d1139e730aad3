package capture

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/display"
	"github.com/ayusman/mudra/internal/overlay"
)

func newTestController(t *testing.T, cam Camera) (*Controller, *display.Surface) {
	t.Helper()

	surface := display.New()
	c := NewController(cam, surface, &overlay.Slot{}, SamplerConfig{RefreshHz: 100, StillMaxWidth: 160}, zaptest.NewLogger(t).Sugar())
	t.Cleanup(func() { c.Close() })
	return c, surface
}

func testFrames(t *testing.T) []*gocv.Mat {
	t.Helper()

	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 80, 120, 0), 240, 320, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { frame.Close() })
	return []*gocv.Mat{&frame}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestController_StartPresentsFrames(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	cam := NewMockCamera(testFrames(t), true)
	c, surface := newTestController(t, cam)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !c.IsStreaming() {
		t.Fatal("controller should be streaming after Start")
	}
	if surface.Size() != image.Pt(320, 240) {
		t.Errorf("surface size = %v, want 320x240", surface.Size())
	}

	waitFor(t, "a presented frame", func() bool { return surface.Frames() > 0 })

	still, err := c.Still()
	if err != nil {
		t.Fatalf("Still() error = %v", err)
	}
	if still.Size.X != 160 || still.Size.Y != 120 {
		t.Errorf("still size = %v, want 160x120", still.Size)
	}
	if len(still.JPEG) < 2 || still.JPEG[0] != 0xff || still.JPEG[1] != 0xd8 {
		t.Error("still should be a JPEG")
	}
	if !still.Moved {
		t.Error("Moved should be true when the motion gate is off")
	}
}

func TestController_StopReleasesEverything(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	cam := NewMockCamera(testFrames(t), true)
	c, surface := newTestController(t, cam)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "a presented frame", func() bool { return surface.Frames() > 0 })

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if cam.ActiveTracks() != 0 {
		t.Errorf("ActiveTracks() = %d after Stop, want 0", cam.ActiveTracks())
	}
	if surface.Attached() {
		t.Error("surface should be detached after Stop")
	}
	if c.IsStreaming() {
		t.Error("controller should not be streaming after Stop")
	}

	// No further frames are presented once Stop has returned.
	frames := surface.Frames()
	time.Sleep(50 * time.Millisecond)
	if surface.Frames() != frames {
		t.Errorf("render loop kept presenting after Stop: %d -> %d", frames, surface.Frames())
	}

	if _, err := c.Still(); !errors.Is(err, ErrCameraNotOpen) {
		t.Errorf("Still() after Stop error = %v, want ErrCameraNotOpen", err)
	}

	// Stop is idempotent.
	if err := c.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestController_StopWithoutStart(t *testing.T) {
	cam := NewMockCamera(nil, false)
	c, _ := newTestController(t, cam)

	if err := c.Stop(); err != nil {
		t.Errorf("Stop() without Start error = %v", err)
	}
}

func TestController_PermissionDenied(t *testing.T) {
	cam := NewMockCamera(nil, false)
	cam.OpenErr = &DeviceError{DeviceID: 0, Err: ErrPermissionDenied}
	c, surface := newTestController(t, cam)

	err := c.Start(context.Background())
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Start() error = %v, want ErrPermissionDenied", err)
	}

	var de *DeviceError
	if !errors.As(c.LastError(), &de) {
		t.Fatalf("LastError() = %v, want *DeviceError", c.LastError())
	}
	if de.UserMessage() == "" {
		t.Error("device error should carry a learner-facing message")
	}
	if c.IsStreaming() {
		t.Error("controller should not be streaming after a failed Start")
	}
	if surface.Attached() {
		t.Error("surface should not be attached after a failed Start")
	}
	if cam.ActiveTracks() != 0 {
		t.Error("no tracks should be held after a failed Start")
	}
}

func TestController_PlainOpenErrorIsWrapped(t *testing.T) {
	cam := NewMockCamera(nil, false)
	cam.OpenErr = errors.New("device busy")
	c, _ := newTestController(t, cam)

	err := c.Start(context.Background())
	var de *DeviceError
	if !errors.As(err, &de) {
		t.Fatalf("Start() error = %T, want *DeviceError", err)
	}
}

func TestController_ContextCancelStops(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	cam := NewMockCamera(testFrames(t), true)
	c, surface := newTestController(t, cam)

	ctx, cancel := context.WithCancel(context.Background())
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	cancel()
	waitFor(t, "stop after cancel", func() bool { return !c.IsStreaming() && cam.ActiveTracks() == 0 })
	waitFor(t, "surface detach", func() bool { return !surface.Attached() })
}

func TestController_RunChangesOnRestart(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	cam := NewMockCamera(testFrames(t), true)
	c, _ := newTestController(t, cam)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	first := c.Run()
	if !c.Live(first) {
		t.Error("current run should be live")
	}

	c.Stop()
	if c.Live(first) {
		t.Error("run should not be live after Stop")
	}

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("restart error = %v", err)
	}
	if c.Live(first) {
		t.Error("an old run must not be live after a restart")
	}
	if !c.Live(c.Run()) {
		t.Error("new run should be live")
	}
	if cam.Opens() != 2 {
		t.Errorf("Opens() = %d, want 2", cam.Opens())
	}
}
