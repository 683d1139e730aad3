// Package display holds the presented practice view and fans it out to viewers.
package display

import (
	"image"
	"sync"
)

// Surface is the on-screen view of the camera. Frames presented while detached are dropped.
// Viewers receive only the newest frame; slow viewers skip frames.
type Surface struct {
	mu       sync.Mutex
	attached bool
	size     image.Point
	latest   []byte
	frames   uint64
	viewers  map[chan []byte]struct{}
}

// New creates a detached surface.
func New() *Surface {
	return &Surface{viewers: make(map[chan []byte]struct{})}
}

// Attach binds the surface to a stream of the given size.
func (s *Surface) Attach(size image.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attached = true
	s.size = size
	s.latest = nil
}

// Detach unbinds the surface and clears the last frame. It is safe to call more than once.
func (s *Surface) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attached = false
	s.latest = nil
}

// Present publishes an encoded JPEG frame.
func (s *Surface) Present(jpeg []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.attached {
		return
	}
	s.latest = jpeg
	s.frames++

	for ch := range s.viewers {
		select {
		case ch <- jpeg:
		default:
			// Replace the stale frame the viewer has not read yet.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- jpeg:
			default:
			}
		}
	}
}

// Latest returns the most recent frame, if any.
func (s *Surface) Latest() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.latest, s.latest != nil
}

// Attached reports whether a stream is bound.
func (s *Surface) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.attached
}

// Size returns the bound stream size.
func (s *Surface) Size() image.Point {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.size
}

// Frames returns how many frames were presented since creation.
func (s *Surface) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.frames
}

// Watch registers a viewer. The returned cancel func must be called when done.
func (s *Surface) Watch() (<-chan []byte, func()) {
	ch := make(chan []byte, 1)

	s.mu.Lock()
	s.viewers[ch] = struct{}{}
	if s.latest != nil {
		ch <- s.latest
	}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.viewers, ch)
			s.mu.Unlock()
		})
	}
}
