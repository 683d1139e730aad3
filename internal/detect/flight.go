package detect

import "sync/atomic"

// Flight guards the single outstanding detection request. A caller that fails
// TryAcquire drops its sample.
type Flight struct {
	busy atomic.Bool
}

// TryAcquire marks a request outstanding. It reports false if one already is.
func (f *Flight) TryAcquire() bool {
	return f.busy.CompareAndSwap(false, true)
}

// Release clears the outstanding request.
func (f *Flight) Release() {
	f.busy.Store(false)
}

// InFlight reports whether a request is outstanding.
func (f *Flight) InFlight() bool {
	return f.busy.Load()
}
