package detect

import (
	"context"
	"sync"
	"sync/atomic"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results and to hold calls open.
type MockDetector struct {
	mu     sync.Mutex
	result *Result
	err    error
	gate   chan struct{}

	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

// NewMockDetector creates a new MockDetector that reports no detections.
func NewMockDetector() *MockDetector {
	return &MockDetector{result: &Result{Success: true}}
}

// SetDetections sets the detections returned by Detect.
func (m *MockDetector) SetDetections(ds ...Detection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = &Result{Success: true, Count: len(ds), Detections: ds}
	m.err = nil
}

// SetError sets the error returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Hold makes subsequent calls block until Release or context cancellation.
func (m *MockDetector) Hold() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = make(chan struct{})
}

// Release unblocks held calls.
func (m *MockDetector) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate != nil {
		close(m.gate)
		m.gate = nil
	}
}

// Calls returns the number of Detect calls made.
func (m *MockDetector) Calls() int {
	return int(m.calls.Load())
}

// MaxConcurrent returns the highest number of simultaneous Detect calls seen.
func (m *MockDetector) MaxConcurrent() int {
	return int(m.maxSeen.Load())
}

// Detect returns the pre-configured result or error.
func (m *MockDetector) Detect(ctx context.Context, jpeg []byte, threshold float64) (*Result, error) {
	m.calls.Add(1)
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		seen := m.maxSeen.Load()
		if n <= seen || m.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	m.mu.Lock()
	gate := m.gate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	res := *m.result
	res.Detections = append([]Detection(nil), m.result.Detections...)
	return &res, nil
}
