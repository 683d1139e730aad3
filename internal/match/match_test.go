package match

import (
	"testing"

	"github.com/ayusman/mudra/internal/detect"
	"github.com/ayusman/mudra/internal/vocab"
)

func result(ds ...detect.Detection) *detect.Result {
	return &detect.Result{Success: true, Count: len(ds), Detections: ds}
}

func TestEvaluate(t *testing.T) {
	expected := vocab.Item{ID: "xin_chao", ClassID: "15", ClassName: "xin_chao"}
	e := New(DefaultFloor)

	tests := []struct {
		name   string
		result *detect.Result
		want   Outcome
	}{
		{"nil result", nil, None},
		{"no detections", result(), None},
		{"matching class above floor", result(detect.Detection{ClassID: "15", Confidence: 0.82}), Correct},
		{"matching class at floor", result(detect.Detection{ClassID: "15", Confidence: 0.3}), Correct},
		{"matching class below floor", result(detect.Detection{ClassID: "15", Confidence: 0.29}), Incorrect},
		{"other class", result(detect.Detection{ClassID: "5", Confidence: 0.7}), Incorrect},
		{"only primary counts", result(
			detect.Detection{ClassID: "5", Confidence: 0.9},
			detect.Detection{ClassID: "15", Confidence: 0.8},
		), Incorrect},
		{"same name other id", result(detect.Detection{ClassID: "16", ClassName: "xin_chao", Confidence: 0.9}), Incorrect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Evaluate(tt.result, expected); got != tt.want {
				t.Errorf("Evaluate = %v, want %v", got, tt.want)
			}
		})
	}
}

// Correct holds exactly when the primary class equals the expected class and
// confidence is at or above the floor.
func TestEvaluate_Property(t *testing.T) {
	classes := []string{"0", "1", "15"}
	confidences := []float64{0, 0.1, 0.29, 0.3, 0.31, 0.5, 0.99, 1}
	floors := []float64{0, 0.3, 0.5, 1}

	for _, floor := range floors {
		e := New(floor)
		for _, want := range classes {
			expected := vocab.Item{ClassID: want}
			for _, got := range classes {
				for _, conf := range confidences {
					out := e.Evaluate(result(detect.Detection{ClassID: detect.ClassID(got), Confidence: conf}), expected)
					isCorrect := got == want && conf >= floor
					if (out == Correct) != isCorrect {
						t.Errorf("floor=%v expected=%s got=%s conf=%v: outcome %v", floor, want, got, conf, out)
					}
					if out == None {
						t.Errorf("a detection must never yield None")
					}
				}
			}
		}
	}
}

func TestOutcome_String(t *testing.T) {
	if None.String() != "none" || Correct.String() != "correct" || Incorrect.String() != "incorrect" {
		t.Error("unexpected outcome names")
	}
}
