package plugin

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/match"
)

// Dispatcher forwards practice events to subscribed plugins.
type Dispatcher struct {
	manager  *Manager
	executor *Executor
	logger   *zap.SugaredLogger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(m *Manager, e *Executor, logger *zap.SugaredLogger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Dispatcher{manager: m, executor: e, logger: logger}
}

// Run consumes events until ctx is done or the channel closes. Plugins run one
// at a time; events that arrive meanwhile wait in the subscription buffer.
func (d *Dispatcher) Run(ctx context.Context, events <-chan app.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			req, ok := RequestFor(e)
			if !ok {
				continue
			}
			d.Dispatch(ctx, req)
		}
	}
}

// Dispatch runs every plugin subscribed to req.Event. Failures are logged.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) {
	for _, p := range d.manager.For(req.Event) {
		start := time.Now()
		resp, err := d.executor.Execute(ctx, p, req)
		switch {
		case err != nil:
			d.logger.Warnw("plugin failed", "plugin", p.Manifest.Name, "event", req.Event, "error", err)
		case !resp.Success:
			d.logger.Warnw("plugin reported failure", "plugin", p.Manifest.Name, "event", req.Event, "error", resp.Error)
		default:
			d.logger.Debugw("plugin ran", "plugin", p.Manifest.Name, "event", req.Event, "took", time.Since(start))
		}
	}
}

// RequestFor maps a practice event to a plugin request. Only scored
// detections, completions and camera failures are forwarded.
func RequestFor(e app.Event) (Request, bool) {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}

	switch e.Type {
	case app.EventDetection:
		if e.Detection == nil || !e.Detection.Applied {
			return Request{}, false
		}
		req := Request{Sign: e.Detection.Expected, At: at}
		switch e.Detection.Outcome {
		case match.Correct.String():
			req.Event = EventCorrect
		case match.Incorrect.String():
			req.Event = EventIncorrect
		default:
			return Request{}, false
		}
		return req, true
	case app.EventCompleted:
		if e.Summary == nil {
			return Request{}, false
		}
		return Request{Event: EventCompleted, Summary: e.Summary, At: at}, true
	case app.EventCamera:
		if e.Error == "" {
			return Request{}, false
		}
		return Request{Event: EventCameraError, Error: e.Error, At: at}, true
	}
	return Request{}, false
}
