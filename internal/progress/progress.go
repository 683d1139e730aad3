// Package progress reports practice attempts and sessions to storage without blocking the caller.
package progress

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/store"
)

// Reporter defaults
const (
	DefaultQueueSize = 64
	DefaultTimeout   = 5 * time.Second
)

// Backend stores progress.
type Backend interface {
	RecordAttempt(ctx context.Context, userID, itemID string, success bool) error
	StartSession(ctx context.Context, userID string, mode store.SessionMode) (string, error)
	CompleteSession(ctx context.Context, sessionID string, attempts, successes int) error
}

// StoreBackend writes progress to the SQLite store.
type StoreBackend struct {
	store *store.Store
}

// NewStoreBackend creates a backend over s.
func NewStoreBackend(s *store.Store) *StoreBackend {
	return &StoreBackend{store: s}
}

func (b *StoreBackend) RecordAttempt(ctx context.Context, userID, itemID string, success bool) error {
	_, err := b.store.Progress().RecordAttempt(ctx, userID, itemID, success)
	return err
}

func (b *StoreBackend) StartSession(ctx context.Context, userID string, mode store.SessionMode) (string, error) {
	sess := &store.PracticeSession{
		ID:     uuid.NewString(),
		UserID: userID,
		Mode:   mode,
	}
	if err := b.store.Sessions().Create(ctx, sess); err != nil {
		return "", err
	}
	return sess.ID, nil
}

func (b *StoreBackend) CompleteSession(ctx context.Context, sessionID string, attempts, successes int) error {
	return b.store.Sessions().Complete(ctx, sessionID, attempts, successes)
}

// Config controls the reporter queue.
type Config struct {
	QueueSize int
	Timeout   time.Duration
	Mode      store.SessionMode
}

type job struct {
	name string
	run  func(ctx context.Context) error
}

// Reporter queues progress writes for a single worker goroutine.
// A full queue drops the write; failures are logged and never returned.
// A nil Reporter, or one without a backend, does nothing.
type Reporter struct {
	backend Backend
	cfg     Config
	logger  *zap.SugaredLogger

	mu     sync.Mutex
	closed bool
	jobs   chan job
	done   chan struct{}
}

// New creates a reporter and starts its worker. backend may be nil.
func New(backend Backend, cfg Config, logger *zap.SugaredLogger) *Reporter {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Mode == "" {
		cfg.Mode = store.ModePractice
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	r := &Reporter{
		backend: backend,
		cfg:     cfg,
		logger:  logger,
		done:    make(chan struct{}),
	}
	if backend == nil {
		close(r.done)
		return r
	}

	r.jobs = make(chan job, cfg.QueueSize)
	go r.worker()
	return r
}

// StartSession opens a session record for userID and calls deliver with its id on success.
func (r *Reporter) StartSession(userID string, deliver func(sessionID string)) {
	if userID == "" {
		return
	}
	mode := r.mode()
	r.enqueue("start session", func(ctx context.Context) error {
		id, err := r.backend.StartSession(ctx, userID, mode)
		if err != nil {
			return err
		}
		if deliver != nil {
			deliver(id)
		}
		return nil
	})
}

// RecordAttempt counts one attempt on itemID.
func (r *Reporter) RecordAttempt(userID, itemID string, success bool) {
	if userID == "" {
		return
	}
	r.enqueue("record attempt", func(ctx context.Context) error {
		return r.backend.RecordAttempt(ctx, userID, itemID, success)
	})
}

// CompleteSession closes a session record with its final counters.
func (r *Reporter) CompleteSession(sessionID string, attempts, successes int) {
	if sessionID == "" {
		return
	}
	r.enqueue("complete session", func(ctx context.Context) error {
		return r.backend.CompleteSession(ctx, sessionID, attempts, successes)
	})
}

// Close stops accepting work, drains the queue and waits for the worker.
func (r *Reporter) Close() {
	if r == nil {
		return
	}

	r.mu.Lock()
	if !r.closed {
		r.closed = true
		if r.jobs != nil {
			close(r.jobs)
		}
	}
	r.mu.Unlock()

	<-r.done
}

func (r *Reporter) mode() store.SessionMode {
	if r == nil {
		return store.ModePractice
	}
	return r.cfg.Mode
}

func (r *Reporter) enqueue(name string, run func(ctx context.Context) error) {
	if r == nil || r.backend == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		r.logger.Debugw("progress reporter closed, dropping", "job", name)
		return
	}

	select {
	case r.jobs <- job{name: name, run: run}:
	default:
		r.logger.Warnw("progress queue full, dropping", "job", name)
	}
}

func (r *Reporter) worker() {
	defer close(r.done)

	for j := range r.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
		if err := j.run(ctx); err != nil {
			r.logger.Warnw("progress write failed", "job", j.name, "error", err)
		}
		cancel()
	}
}
