// Package detect talks to the sign detection backends.
package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"math"
	"sort"
	"strconv"
)

var (
	// ErrTimeout is returned when a detection request exceeds its deadline.
	ErrTimeout = errors.New("detection timed out")
	// ErrRemote is returned when the backend answers with success=false.
	ErrRemote = errors.New("detection failed")
)

// ClassID is the detector's label. It decodes from a JSON number or string.
type ClassID string

// UnmarshalJSON accepts 7, 7.0 and "7". Fractional numbers are rejected.
func (c *ClassID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = ClassID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("class_id: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*c = ClassID(strconv.FormatInt(i, 10))
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("class_id: %w", err)
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return fmt.Errorf("class_id: %s is not an integer", n)
	}
	*c = ClassID(strconv.FormatInt(int64(f), 10))
	return nil
}

// BBox is a box in the pixel space of the image that was sent for detection.
type BBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Rect converts the box to an integer rectangle.
func (b BBox) Rect() image.Rectangle {
	return image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2))
}

// Detection is one candidate sign found in a still.
type Detection struct {
	ClassID    ClassID `json:"class_id"`
	ClassName  string  `json:"class_name"`
	Confidence float64 `json:"confidence"`
	BBox       BBox    `json:"bbox"`
}

// Result is the outcome of one detection request.
type Result struct {
	Success    bool        `json:"success"`
	Count      int         `json:"count"`
	Detections []Detection `json:"detections"`
	Error      string      `json:"error,omitempty"`
}

// Primary returns the highest-confidence detection, or nil when there is none.
func (r *Result) Primary() *Detection {
	if r == nil || len(r.Detections) == 0 {
		return nil
	}
	return &r.Detections[0]
}

// SortDetections orders detections by descending confidence.
func SortDetections(ds []Detection) {
	sort.SliceStable(ds, func(i, j int) bool {
		return ds[i].Confidence > ds[j].Confidence
	})
}

// Detector finds signs in a JPEG still.
type Detector interface {
	// Detect returns detections with confidence at or above threshold,
	// ordered by descending confidence.
	Detect(ctx context.Context, jpeg []byte, threshold float64) (*Result, error)
}
