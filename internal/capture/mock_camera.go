package capture

import (
	"errors"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// MockCamera plays back pre-recorded frames for testing.
type MockCamera struct {
	frames []*gocv.Mat
	index  int
	loop   bool
	size   image.Point

	// OpenErr, when set, is returned by Open and the camera stays closed.
	OpenErr error

	mu      sync.Mutex
	running bool
	opens   int
}

// NewMockCamera creates a camera that replays frames, optionally looping.
func NewMockCamera(frames []*gocv.Mat, loop bool) *MockCamera {
	size := image.Pt(DefaultWidth, DefaultHeight)
	if len(frames) > 0 && !frames[0].Empty() {
		size = image.Pt(frames[0].Cols(), frames[0].Rows())
	}
	return &MockCamera{
		frames: frames,
		loop:   loop,
		size:   size,
	}
}

func (c *MockCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.OpenErr != nil {
		return c.OpenErr
	}
	c.running = true
	c.index = 0
	c.opens++
	return nil
}

func (c *MockCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.running = false
	return nil
}

func (c *MockCamera) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil, ErrCameraNotOpen
	}

	if len(c.frames) == 0 {
		return nil, errors.New("no frames available")
	}

	if c.index >= len(c.frames) {
		if c.loop {
			c.index = 0
		} else {
			return nil, errors.New("no more frames")
		}
	}

	// Clone the frame so the original isn't modified
	frame := c.frames[c.index].Clone()
	c.index++

	return &frame, nil
}

func (c *MockCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *MockCamera) Size() image.Point {
	return c.size
}

// ActiveTracks reports how many device tracks are currently held: 1 while open, else 0.
func (c *MockCamera) ActiveTracks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return 1
	}
	return 0
}

// Opens returns how many times the camera was successfully opened.
func (c *MockCamera) Opens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}

// SetFrames replaces the frame sequence
func (c *MockCamera) SetFrames(frames []*gocv.Mat) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = frames
	c.index = 0
}
