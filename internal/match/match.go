// Package match decides whether a detection result shows the expected sign.
package match

import (
	"github.com/ayusman/mudra/internal/detect"
	"github.com/ayusman/mudra/internal/vocab"
)

// DefaultFloor is the minimum confidence a correct match needs.
const DefaultFloor = 0.3

// Outcome is the verdict for one detection result.
type Outcome int

const (
	// None means nothing was detected. It is not scored.
	None Outcome = iota
	// Correct means the primary detection is the expected sign.
	Correct
	// Incorrect means something was detected but it is not the expected sign.
	Incorrect
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case Correct:
		return "correct"
	case Incorrect:
		return "incorrect"
	default:
		return "none"
	}
}

// Evaluator compares detections with the expected item by class id.
type Evaluator struct {
	// Floor is the inclusive confidence floor for a correct match.
	Floor float64
}

// New creates an evaluator with the given floor.
func New(floor float64) Evaluator {
	return Evaluator{Floor: floor}
}

// Evaluate classifies the result against expected.
func (e Evaluator) Evaluate(result *detect.Result, expected vocab.Item) Outcome {
	primary := result.Primary()
	if primary == nil {
		return None
	}
	if string(primary.ClassID) == expected.ClassID && primary.Confidence >= e.Floor {
		return Correct
	}
	return Incorrect
}
