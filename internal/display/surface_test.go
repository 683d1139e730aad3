package display

import (
	"image"
	"testing"
	"time"
)

func TestSurface_DropsWhileDetached(t *testing.T) {
	s := New()

	s.Present([]byte("a"))
	if _, ok := s.Latest(); ok {
		t.Error("frames presented while detached should be dropped")
	}
	if s.Frames() != 0 {
		t.Errorf("Frames() = %d, want 0", s.Frames())
	}

	s.Attach(image.Pt(640, 480))
	s.Present([]byte("b"))
	got, ok := s.Latest()
	if !ok || string(got) != "b" {
		t.Errorf("Latest() = %q, %v; want \"b\", true", got, ok)
	}
	if s.Size() != image.Pt(640, 480) {
		t.Errorf("Size() = %v", s.Size())
	}

	s.Detach()
	s.Detach()
	if s.Attached() {
		t.Error("surface should be detached")
	}
	if _, ok := s.Latest(); ok {
		t.Error("Detach should clear the last frame")
	}
}

func TestSurface_WatchReceivesNewest(t *testing.T) {
	s := New()
	s.Attach(image.Pt(320, 240))

	ch, cancel := s.Watch()
	defer cancel()

	// A slow viewer only sees the newest frame.
	s.Present([]byte("1"))
	s.Present([]byte("2"))
	s.Present([]byte("3"))

	select {
	case f := <-ch:
		if string(f) != "3" {
			t.Errorf("viewer got %q, want newest frame \"3\"", f)
		}
	case <-time.After(time.Second):
		t.Fatal("viewer received nothing")
	}
}

func TestSurface_WatchGetsCurrentFrame(t *testing.T) {
	s := New()
	s.Attach(image.Pt(320, 240))
	s.Present([]byte("now"))

	ch, cancel := s.Watch()
	defer cancel()

	select {
	case f := <-ch:
		if string(f) != "now" {
			t.Errorf("viewer got %q, want %q", f, "now")
		}
	default:
		t.Fatal("a new viewer should get the current frame immediately")
	}
}

func TestSurface_CancelStopsDelivery(t *testing.T) {
	s := New()
	s.Attach(image.Pt(320, 240))

	ch, cancel := s.Watch()
	cancel()
	cancel()

	s.Present([]byte("x"))
	select {
	case <-ch:
		t.Error("cancelled viewer should not receive frames")
	default:
	}
}
