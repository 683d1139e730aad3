// Package overlay draws detection boxes and labels onto display frames.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/detect"
	"github.com/ayusman/mudra/internal/match"
)

// Drawing constants
const (
	BoxThickness  = 3
	FontScale     = 0.6
	FontThickness = 2
	LabelPadding  = 4
	labelFontFace = gocv.FontHersheySimplex
)

var (
	// ColorCorrect is used for the primary box of a correct match.
	ColorCorrect = color.RGBA{R: 0, G: 200, B: 0, A: 0}
	// ColorOther is used for every other box.
	ColorOther = color.RGBA{R: 255, G: 140, B: 0, A: 0}
	// ColorText is the label text color.
	ColorText = color.RGBA{R: 255, G: 255, B: 255, A: 0}
)

// Frame is one completed detection, ready to be drawn.
type Frame struct {
	Detections []detect.Detection
	Outcome    match.Outcome
	// Size is the pixel size of the still the boxes refer to.
	Size image.Point
	At   time.Time
}

// Slot holds the latest completed detection. Writers replace, never queue.
type Slot struct {
	p atomic.Pointer[Frame]
}

// Store replaces the current frame.
func (s *Slot) Store(f *Frame) {
	s.p.Store(f)
}

// Load returns the current frame, or nil.
func (s *Slot) Load() *Frame {
	return s.p.Load()
}

// Clear removes the current frame.
func (s *Slot) Clear() {
	s.p.Store(nil)
}

// Scale maps a box from an image of size from to an image of size to.
// A zero from size leaves the box unchanged.
func Scale(b detect.BBox, from, to image.Point) detect.BBox {
	if from.X <= 0 || from.Y <= 0 || from == to {
		return b
	}
	sx := float64(to.X) / float64(from.X)
	sy := float64(to.Y) / float64(from.Y)
	return detect.BBox{X1: b.X1 * sx, Y1: b.Y1 * sy, X2: b.X2 * sx, Y2: b.Y2 * sy}
}

// Label is the text shown above a box.
func Label(d detect.Detection) string {
	return fmt.Sprintf("%s %d%%", d.ClassName, int(d.Confidence*100+0.5))
}

// ColorFor returns the box color for the i-th detection of a frame.
func ColorFor(outcome match.Outcome, i int) color.RGBA {
	if outcome == match.Correct && i == 0 {
		return ColorCorrect
	}
	return ColorOther
}

// Render draws the frame's detections onto dst, scaled to dst's size.
func Render(dst *gocv.Mat, f *Frame) error {
	if f == nil || dst == nil || dst.Empty() {
		return nil
	}
	size := image.Pt(dst.Cols(), dst.Rows())

	for i, d := range f.Detections {
		c := ColorFor(f.Outcome, i)
		r := Scale(d.BBox, f.Size, size).Rect().Intersect(image.Rect(0, 0, size.X, size.Y))
		if r.Empty() {
			continue
		}

		if err := gocv.Rectangle(dst, r, c, BoxThickness); err != nil {
			return fmt.Errorf("draw box: %w", err)
		}

		text := Label(d)
		ts := gocv.GetTextSize(text, labelFontFace, FontScale, FontThickness)

		top := r.Min.Y - ts.Y - 2*LabelPadding
		if top < 0 {
			top = r.Min.Y
		}
		bg := image.Rect(r.Min.X, top, r.Min.X+ts.X+2*LabelPadding, top+ts.Y+2*LabelPadding)
		if err := gocv.Rectangle(dst, bg, c, -1); err != nil {
			return fmt.Errorf("draw label background: %w", err)
		}

		origin := image.Pt(bg.Min.X+LabelPadding, bg.Max.Y-LabelPadding)
		if err := gocv.PutText(dst, text, origin, labelFontFace, FontScale, ColorText, FontThickness); err != nil {
			return fmt.Errorf("draw label: %w", err)
		}
	}
	return nil
}
