package capture

import (
	"testing"

	"gocv.io/x/gocv"
)

func solidFrame(rows, cols int, v float64) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, v, v, 0), rows, cols, gocv.MatTypeCV8UC3)
}

func TestNewMotionDetector(t *testing.T) {
	tests := []struct {
		name      string
		threshold float64
		want      float64
	}{
		{
			name:      "explicit threshold",
			threshold: 5.0,
			want:      5.0,
		},
		{
			name:      "zero uses default",
			threshold: 0,
			want:      DefaultMotionThreshold,
		},
		{
			name:      "negative uses default",
			threshold: -1,
			want:      DefaultMotionThreshold,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := NewMotionDetector(tt.threshold)
			defer md.Close()

			if md.threshold != tt.want {
				t.Errorf("threshold = %f, want %f", md.threshold, tt.want)
			}
			if md.initialized {
				t.Error("motion detector should not be initialized initially")
			}
		})
	}
}

func TestMotionDetector_FirstFrameCountsAsMotion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	md := NewMotionDetector(1.0)
	defer md.Close()

	frame := solidFrame(240, 320, 0)
	defer frame.Close()

	if moved, _ := md.Detect(&frame); !moved {
		t.Error("first frame should count as motion so the first still is sent")
	}
}

func TestMotionDetector_NoMotion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	md := NewMotionDetector(1.0)
	defer md.Close()

	frame1 := solidFrame(480, 640, 0)
	defer frame1.Close()
	frame2 := solidFrame(480, 640, 0)
	defer frame2.Close()

	md.Detect(&frame1)
	moved, changePercent := md.Detect(&frame2)
	if moved {
		t.Errorf("identical frames should not detect motion, changePercent = %f", changePercent)
	}
}

func TestMotionDetector_WithMotion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	md := NewMotionDetector(1.0)
	defer md.Close()

	black := solidFrame(480, 640, 0)
	defer black.Close()
	white := solidFrame(480, 640, 255)
	defer white.Close()

	md.Detect(&black)
	moved, changePercent := md.Detect(&white)
	if !moved {
		t.Errorf("black to white should detect motion, changePercent = %f", changePercent)
	}
	if changePercent < 50.0 {
		t.Errorf("changePercent = %f, expected > 50%% for black to white transition", changePercent)
	}
}

func TestMotionDetector_SizeChangeResetsBaseline(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	md := NewMotionDetector(1.0)
	defer md.Close()

	large := solidFrame(480, 640, 0)
	defer large.Close()
	tall := solidFrame(480, 320, 0)
	defer tall.Close()

	md.Detect(&large)
	md.Detect(&large)

	if moved, _ := md.Detect(&tall); !moved {
		t.Error("a frame with a different aspect ratio should start a new baseline")
	}
	if moved, _ := md.Detect(&tall); moved {
		t.Error("second identical frame after resize should not detect motion")
	}
}

func TestMotionDetector_Reset(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	md := NewMotionDetector(1.0)
	defer md.Close()

	frame := solidFrame(240, 320, 0)
	defer frame.Close()

	md.Detect(&frame)
	if !md.initialized {
		t.Error("detector should be initialized after first Detect")
	}

	md.Reset()
	if md.initialized {
		t.Error("detector should not be initialized after Reset")
	}
	if moved, _ := md.Detect(&frame); !moved {
		t.Error("first frame after Reset should count as motion")
	}
}

func TestMotionDetector_Close_Multiple(t *testing.T) {
	md := NewMotionDetector(1.0)

	// Close multiple times should not panic
	md.Close()
	md.Close()
}

func TestMotionDetector_EmptyFrame(t *testing.T) {
	md := NewMotionDetector(1.0)
	defer md.Close()

	if moved, pct := md.Detect(nil); moved || pct != 0 {
		t.Errorf("nil frame = (%v, %f), want (false, 0)", moved, pct)
	}
}
