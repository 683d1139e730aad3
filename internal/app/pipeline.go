package app

import (
	"context"
	"errors"
	"time"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detect"
	"github.com/ayusman/mudra/internal/match"
	"github.com/ayusman/mudra/internal/overlay"
	"github.com/ayusman/mudra/internal/vocab"
)

// target is the item expected when a sample was taken.
type target struct {
	item   vocab.Item
	index  int
	active bool
}

// detectLoop samples a still every interval and sends it to the detector.
// Ticks that arrive while a request is outstanding are dropped. A request
// may outlive its run; its answer is then discarded.
func (a *App) detectLoop(ctx context.Context, run uint64) {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tick(ctx, run)
		}
	}
}

func (a *App) tick(ctx context.Context, run uint64) {
	if !a.controller.Live(run) {
		return
	}
	if !a.flight.TryAcquire() {
		a.dropped.Add(1)
		a.logger.Debugw("detection in flight, sample dropped", "run", run)
		return
	}

	still, err := a.controller.Still()
	if err != nil {
		a.flight.Release()
		if !errors.Is(err, capture.ErrNoFrame) {
			a.logger.Warnw("failed to extract still", "error", err)
		}
		return
	}
	if a.cfg.SkipStill && !still.Moved {
		a.flight.Release()
		return
	}

	var t target
	t.item, t.index, t.active = a.machine.Current()
	a.setStatus(StatusProcessing)

	a.inflight.Add(1)
	go func() {
		defer a.inflight.Done()
		defer a.flight.Release()
		a.detect(ctx, run, still, t)
	}()
}

// detect runs one request and applies its result if the run is still live.
func (a *App) detect(ctx context.Context, run uint64, still *capture.Still, t target) {
	res, err := a.cfg.Detector.Detect(ctx, still.JPEG, a.cfg.Threshold)

	if !a.controller.Live(run) || ctx.Err() != nil {
		a.logger.Debugw("discarding stale detection", "run", run)
		return
	}

	if err != nil {
		status := StatusError
		if errors.Is(err, detect.ErrTimeout) {
			status = StatusTimeout
		}
		a.logger.Warnw("detection failed", "error", err, "run", run)
		a.setStatus(status)
		return
	}

	outcome := match.None
	if t.active {
		outcome = a.evaluator.Evaluate(res, t.item)
	}

	a.slot.Store(&overlay.Frame{
		Detections: res.Detections,
		Outcome:    outcome,
		Size:       still.Size,
		At:         time.Now(),
	})

	if p := res.Primary(); p != nil {
		a.setStatus(p.ClassName)
	} else {
		a.setStatus(StatusNoDetection)
	}

	applied := t.active && a.machine.Apply(t.index, outcome)

	ev := &DetectionEvent{
		Detections: res.Detections,
		Outcome:    outcome.String(),
		Index:      t.index,
		Applied:    applied,
	}
	if t.active {
		ev.Expected = t.item.ClassName
	}
	a.events.publish(Event{Type: EventDetection, Detection: ev, Status: a.Status(), Streaming: true})
}
