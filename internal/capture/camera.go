// Package capture owns the camera device and the render loop that feeds the display.
package capture

import (
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"

	"gocv.io/x/gocv"
)

// Default camera settings
const (
	DefaultFPS    = 30
	DefaultWidth  = 640
	DefaultHeight = 480
)

var (
	// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrNoDevice is returned when no camera matches the constraints.
	ErrNoDevice = errors.New("no camera device found")
	// ErrPermissionDenied is returned when the OS refuses camera access.
	ErrPermissionDenied = errors.New("camera permission denied")
)

// Facing selects a front or rear camera where the platform distinguishes them.
type Facing string

const (
	FacingUser        Facing = "user"
	FacingEnvironment Facing = "environment"
)

// Constraints describe the stream requested from the device.
type Constraints struct {
	DeviceID int
	Width    int
	Height   int
	FPS      int
	Facing   Facing
}

// DefaultConstraints returns the front camera at 640x480, 30 fps.
func DefaultConstraints() Constraints {
	return Constraints{
		DeviceID: 0,
		Width:    DefaultWidth,
		Height:   DefaultHeight,
		FPS:      DefaultFPS,
		Facing:   FacingUser,
	}
}

// DeviceError wraps a failure to acquire the camera.
type DeviceError struct {
	DeviceID int
	Err      error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("camera %d: %v", e.DeviceID, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// UserMessage is a learner-facing explanation that suggests a retry.
func (e *DeviceError) UserMessage() string {
	switch {
	case errors.Is(e.Err, ErrPermissionDenied):
		return "Camera access was denied. Allow camera access and press start again."
	case errors.Is(e.Err, ErrNoDevice):
		return "No camera was found. Connect a camera and press start again."
	default:
		return "The camera could not be started. Check that no other app is using it and try again."
	}
}

// classifyOpenError maps an OpenCV open failure onto the device sentinels.
func classifyOpenError(deviceID int, err error) *DeviceError {
	var de *DeviceError
	if errors.As(err, &de) {
		return de
	}
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrNoDevice) {
		return &DeviceError{DeviceID: deviceID, Err: err}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission"), strings.Contains(msg, "not authorized"), strings.Contains(msg, "access denied"):
		return &DeviceError{DeviceID: deviceID, Err: fmt.Errorf("%w: %v", ErrPermissionDenied, err)}
	case strings.Contains(msg, "no such"), strings.Contains(msg, "not found"), strings.Contains(msg, "can't open"), strings.Contains(msg, "unable to open"):
		return &DeviceError{DeviceID: deviceID, Err: fmt.Errorf("%w: %v", ErrNoDevice, err)}
	}
	return &DeviceError{DeviceID: deviceID, Err: err}
}

// Camera is a revocable handle on a video device.
type Camera interface {
	Open() error
	Close() error
	// ReadFrame returns the next frame. The caller is responsible for closing it.
	ReadFrame() (*gocv.Mat, error)
	IsOpen() bool
	// Size is the negotiated frame size, valid while open.
	Size() image.Point
}

// cameraImpl manages video capture from a camera device using GoCV.
type cameraImpl struct {
	constraints Constraints
	capture     *gocv.VideoCapture
	size        image.Point
	mu          sync.Mutex
	running     bool
}

// NewCamera creates a Camera for the given constraints.
// OpenCV has no notion of facing, so DeviceID alone selects the device.
func NewCamera(c Constraints) Camera {
	if c.Width <= 0 || c.Height <= 0 {
		c.Width, c.Height = DefaultWidth, DefaultHeight
	}
	if c.FPS <= 0 {
		c.FPS = DefaultFPS
	}
	return &cameraImpl{constraints: c}
}

// Open opens the device and applies the requested resolution and frame rate.
// Failures are returned as *DeviceError.
func (c *cameraImpl) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	capture, err := gocv.OpenVideoCapture(c.constraints.DeviceID)
	if err != nil {
		return classifyOpenError(c.constraints.DeviceID, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return &DeviceError{DeviceID: c.constraints.DeviceID, Err: ErrNoDevice}
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(c.constraints.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(c.constraints.Height))
	capture.Set(gocv.VideoCaptureFPS, float64(c.constraints.FPS))

	// The driver may round the resolution; report what it chose.
	w := int(capture.Get(gocv.VideoCaptureFrameWidth))
	h := int(capture.Get(gocv.VideoCaptureFrameHeight))
	if w <= 0 || h <= 0 {
		w, h = c.constraints.Width, c.constraints.Height
	}

	c.capture = capture
	c.size = image.Pt(w, h)
	c.running = true

	return nil
}

// Close closes the camera and releases resources. It is safe to call more than once.
func (c *cameraImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false

	return err
}

// ReadFrame reads a single frame from the camera.
func (c *cameraImpl) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok {
		mat.Close()
		return nil, errors.New("failed to read frame from camera")
	}

	if mat.Empty() {
		mat.Close()
		return nil, errors.New("captured frame is empty")
	}

	return &mat, nil
}

// IsOpen returns true if the camera is currently open and running.
func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}

// Size returns the negotiated frame size.
func (c *cameraImpl) Size() image.Point {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.size == (image.Point{}) {
		return image.Pt(c.constraints.Width, c.constraints.Height)
	}
	return c.size
}
