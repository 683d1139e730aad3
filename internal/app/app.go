// Package app wires the camera, detector and practice session into the practice loop.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/auth"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detect"
	"github.com/ayusman/mudra/internal/display"
	"github.com/ayusman/mudra/internal/match"
	"github.com/ayusman/mudra/internal/overlay"
	"github.com/ayusman/mudra/internal/progress"
	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/vocab"
)

// DefaultInterval is the default time between detection samples.
const DefaultInterval = 2500 * time.Millisecond

// Status labels shown next to the camera view.
const (
	StatusWaiting     = "waiting"
	StatusProcessing  = "processing"
	StatusNoDetection = "no detection"
	StatusTimeout     = "timeout - retry"
	StatusError       = "error - retry"
)

// Config holds the collaborators and tuning of the practice loop.
type Config struct {
	Vocabulary vocab.Source
	Camera     capture.Camera
	Detector   detect.Detector
	// Progress is optional; without it nothing is persisted.
	Progress progress.Backend
	Mode     store.SessionMode

	Sampler capture.SamplerConfig
	// Threshold and Floor are used as given; zero accepts any confidence.
	Threshold float64
	Floor     float64
	Interval  time.Duration
	// SkipStill skips a detection sample when the scene has not moved.
	SkipStill bool

	CorrectDelay   time.Duration
	IncorrectDelay time.Duration
	AfterFunc      session.AfterFunc

	Logger *zap.SugaredLogger
}

// State is the combined view of the practice loop.
type State struct {
	Session     session.Snapshot `json:"session"`
	Streaming   bool             `json:"streaming"`
	Detecting   bool             `json:"detecting"`
	Status      string           `json:"status"`
	CameraError string           `json:"cameraError,omitempty"`
	Run         uint64           `json:"run"`
}

// App orchestrates one practice view: camera, detection loop, session and reporting.
type App struct {
	cfg    Config
	logger *zap.SugaredLogger

	surface    *display.Surface
	slot       *overlay.Slot
	controller *capture.Controller
	evaluator  match.Evaluator
	machine    *session.Machine
	reporter   *progress.Reporter
	flight     detect.Flight
	events     *hub

	status  atomic.Value
	dropped atomic.Uint64

	// inflight tracks detection requests, which may outlive their run.
	inflight sync.WaitGroup

	mu         sync.Mutex
	loopCancel context.CancelFunc
	loopDone   chan struct{}
	closed     bool
}

// New creates an App. The camera is not opened until StartCamera.
func New(cfg Config) *App {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Mode == "" {
		cfg.Mode = store.ModePractice
	}

	a := &App{
		cfg:       cfg,
		logger:    cfg.Logger,
		surface:   display.New(),
		slot:      &overlay.Slot{},
		evaluator: match.New(cfg.Floor),
		events:    newHub(),
	}
	a.status.Store(StatusWaiting)
	a.controller = capture.NewController(cfg.Camera, a.surface, a.slot, cfg.Sampler, cfg.Logger.Named("capture"))
	a.reporter = progress.New(cfg.Progress, progress.Config{Mode: cfg.Mode}, cfg.Logger.Named("progress"))
	a.machine = session.New(session.Config{
		CorrectDelay:   cfg.CorrectDelay,
		IncorrectDelay: cfg.IncorrectDelay,
		Recorder:       a.reporter,
		AfterFunc:      cfg.AfterFunc,
		Logger:         cfg.Logger.Named("session"),
	})

	a.machine.OnFinish(func() {
		if err := a.StopCamera(); err != nil {
			a.logger.Warnw("failed to stop camera on completion", "error", err)
		}
	})
	a.machine.OnChange(func(s Snapshot) {
		a.events.publish(Event{Type: EventSession, Session: &s, Streaming: a.controller.IsStreaming()})
	})
	a.machine.OnComplete(func(sum session.Summary) {
		a.events.publish(Event{Type: EventCompleted, Summary: &sum})
	})

	return a
}

// Snapshot is the session state published with session events.
type Snapshot = session.Snapshot

// Surface returns the display surface the camera presents to.
func (a *App) Surface() *display.Surface {
	return a.surface
}

// Detector returns the detection backend.
func (a *App) Detector() detect.Detector {
	return a.cfg.Detector
}

// Vocabulary returns the vocabulary source.
func (a *App) Vocabulary() vocab.Source {
	return a.cfg.Vocabulary
}

// LoadVocabulary returns the ordered practice items.
func (a *App) LoadVocabulary(ctx context.Context) ([]vocab.Item, error) {
	if a.cfg.Vocabulary == nil {
		return nil, session.ErrNoItems
	}
	items, err := a.cfg.Vocabulary.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load vocabulary: %w", err)
	}
	return items, nil
}

// StartPractice begins a session over the whole vocabulary for id and starts the
// camera. A camera failure is returned but leaves the session active so the
// learner can retry StartCamera.
func (a *App) StartPractice(ctx context.Context, id auth.Identity) error {
	items, err := a.LoadVocabulary(ctx)
	if err != nil {
		return err
	}
	if err := a.machine.Begin(items, id.UserID); err != nil {
		return err
	}
	return a.StartCamera(ctx)
}

// StartCamera opens the camera and starts the detection loop for the new run.
// ctx bounds the run: cancelling it stops the camera.
func (a *App) StartCamera(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return errors.New("app is closed")
	}
	if a.controller.IsStreaming() {
		return nil
	}
	a.stopLoopLocked()

	if err := a.controller.Start(ctx); err != nil {
		a.events.publish(Event{Type: EventCamera, Error: userMessage(err)})
		return err
	}

	run := a.controller.Run()
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	a.loopCancel, a.loopDone = cancel, done

	go func() {
		defer close(done)
		a.detectLoop(loopCtx, run)
	}()

	a.setStatus(StatusWaiting)
	a.events.publish(Event{Type: EventCamera, Streaming: true})
	return nil
}

// StopCamera stops the detection loop, releases the camera and clears the overlay.
// It is safe to call at any time.
func (a *App) StopCamera() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	wasStreaming := a.controller.IsStreaming()
	a.stopLoopLocked()
	err := a.controller.Stop()
	a.slot.Clear()
	a.setStatus(StatusWaiting)

	if wasStreaming {
		a.events.publish(Event{Type: EventCamera, Streaming: false})
	}
	return err
}

func (a *App) stopLoopLocked() {
	if a.loopCancel == nil {
		return
	}
	a.loopCancel()
	<-a.loopDone
	a.loopCancel, a.loopDone = nil, nil
}

// Skip moves to the next item without scoring.
func (a *App) Skip() {
	a.machine.Skip()
}

// Exit stops the camera and abandons the session.
func (a *App) Exit() error {
	err := a.StopCamera()
	a.machine.Teardown()
	return err
}

// Close exits, waits for outstanding detections, releases the camera buffers
// and flushes pending progress reports.
func (a *App) Close() error {
	err := a.Exit()

	a.mu.Lock()
	if !a.closed {
		a.closed = true
		if cerr := a.controller.Close(); err == nil {
			err = cerr
		}
	}
	a.mu.Unlock()

	a.inflight.Wait()
	a.reporter.Close()
	a.events.close()
	return err
}

// State returns the combined session and camera state.
func (a *App) State() State {
	s := State{
		Session:   a.machine.Snapshot(),
		Streaming: a.controller.IsStreaming(),
		Detecting: a.flight.InFlight(),
		Status:    a.Status(),
		Run:       a.controller.Run(),
	}
	if err := a.controller.LastError(); err != nil {
		s.CameraError = userMessage(err)
	}
	return s
}

// Status returns the latest detection label.
func (a *App) Status() string {
	return a.status.Load().(string)
}

// Dropped returns how many samples were dropped because a detection was in flight.
func (a *App) Dropped() uint64 {
	return a.dropped.Load()
}

// Subscribe returns a channel of events and a func that cancels the subscription.
func (a *App) Subscribe() (<-chan Event, func()) {
	return a.events.subscribe()
}

func (a *App) setStatus(s string) {
	if a.Status() == s {
		return
	}
	a.status.Store(s)
	a.events.publish(Event{Type: EventStatus, Status: s, Streaming: a.controller.IsStreaming()})
}

func userMessage(err error) string {
	var de *capture.DeviceError
	if errors.As(err, &de) {
		return de.UserMessage()
	}
	return err.Error()
}
