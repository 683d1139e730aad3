package app

import (
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/detect"
	"github.com/ayusman/mudra/internal/session"
)

// EventType names what changed.
type EventType string

// Event types
const (
	EventSession   EventType = "session"
	EventDetection EventType = "detection"
	EventCamera    EventType = "camera"
	EventCompleted EventType = "completed"
	EventStatus    EventType = "status"
)

// Event is pushed to subscribers whenever the practice view changes.
type Event struct {
	Type      EventType         `json:"type"`
	Session   *session.Snapshot `json:"session,omitempty"`
	Detection *DetectionEvent   `json:"detection,omitempty"`
	Summary   *session.Summary  `json:"summary,omitempty"`
	Status    string            `json:"status,omitempty"`
	Streaming bool              `json:"streaming"`
	Error     string            `json:"error,omitempty"`
	At        time.Time         `json:"at"`
}

// DetectionEvent describes one completed detection.
type DetectionEvent struct {
	Detections []detect.Detection `json:"detections"`
	Outcome    string             `json:"outcome"`
	Expected   string             `json:"expected,omitempty"`
	Index      int                `json:"index"`
	Applied    bool               `json:"applied"`
}

const subscriberBuffer = 32

// hub fans events out to subscribers. A full subscriber misses events.
type hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[chan Event]struct{})}
}

func (h *hub) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
			h.mu.Unlock()
		})
	}
}

func (h *hub) publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
