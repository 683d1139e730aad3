// Package session implements the practice session state machine:
// attempt, feedback, delayed advance, completion.
package session

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/match"
	"github.com/ayusman/mudra/internal/vocab"
)

// Default feedback delays
const (
	DefaultCorrectDelay   = 2 * time.Second
	DefaultIncorrectDelay = 1500 * time.Millisecond
)

var (
	// ErrNoItems is returned when a session is begun without vocabulary.
	ErrNoItems = errors.New("no vocabulary items to practise")
	// ErrActive is returned when Begin is called on a running session.
	ErrActive = errors.New("practice session already active")
)

// State is the lifecycle state of a session.
type State string

const (
	StateIdle      State = "idle"
	StateActive    State = "active"
	StateCompleted State = "completed"
)

// Feedback is what the learner is currently shown for the last attempt.
type Feedback string

const (
	FeedbackNone      Feedback = "none"
	FeedbackCorrect   Feedback = "correct"
	FeedbackIncorrect Feedback = "incorrect"
)

// Recorder persists progress. Calls must not block.
type Recorder interface {
	// StartSession opens a session record and later calls deliver with its id.
	StartSession(userID string, deliver func(sessionID string))
	RecordAttempt(userID, itemID string, success bool)
	CompleteSession(sessionID string, attempts, successes int)
}

// Timer is a pending delayed transition.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Config holds the machine's delays and collaborators.
type Config struct {
	CorrectDelay   time.Duration
	IncorrectDelay time.Duration
	Recorder       Recorder
	// AfterFunc replaces time.AfterFunc, for tests.
	AfterFunc AfterFunc
	Logger    *zap.SugaredLogger
}

// Snapshot is a copy of the machine's observable state.
type Snapshot struct {
	State          State        `json:"state"`
	Items          []vocab.Item `json:"items,omitempty"`
	Index          int          `json:"index"`
	Current        *vocab.Item  `json:"current,omitempty"`
	Attempts       int          `json:"attempts"`
	Successes      int          `json:"successes"`
	Feedback       Feedback     `json:"feedback"`
	AdvancePending bool         `json:"advancePending"`
	SessionID      string       `json:"sessionId,omitempty"`
	UserID         string       `json:"userId,omitempty"`
}

// Summary is reported when the last item is completed.
type Summary struct {
	SessionID   string        `json:"sessionId,omitempty"`
	Items       int           `json:"items"`
	Attempts    int           `json:"attempts"`
	Successes   int           `json:"successes"`
	SuccessRate float64       `json:"successRate"`
	Duration    time.Duration `json:"duration"`
}

// Machine is the practice session state machine. It is safe for concurrent use.
// Transition hooks run outside the lock.
type Machine struct {
	cfg    Config
	logger *zap.SugaredLogger

	mu        sync.Mutex
	state     State
	items     []vocab.Item
	index     int
	attempts  int
	successes int
	feedback  Feedback
	sessionID string
	userID    string
	startedAt time.Time

	// gen changes on Begin and Teardown; seq changes whenever timers are cancelled.
	gen          uint64
	seq          uint64
	advanceTimer Timer
	revertTimer  Timer
	// completeOnDeliver holds final counters when completion beat the session id.
	completeOnDeliver *[2]int

	onChange   []func(Snapshot)
	onComplete []func(Summary)
	onFinish   []func()
}

// New creates an idle machine.
func New(cfg Config) *Machine {
	if cfg.CorrectDelay <= 0 {
		cfg.CorrectDelay = DefaultCorrectDelay
	}
	if cfg.IncorrectDelay <= 0 {
		cfg.IncorrectDelay = DefaultIncorrectDelay
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = realAfterFunc
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Machine{
		cfg:      cfg,
		logger:   cfg.Logger,
		state:    StateIdle,
		feedback: FeedbackNone,
	}
}

// OnChange registers a hook called after every state change.
func (m *Machine) OnChange(f func(Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, f)
}

// OnComplete registers a hook called with the summary when the last item is done.
func (m *Machine) OnComplete(f func(Summary)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onComplete = append(m.onComplete, f)
}

// OnFinish registers a hook called on completion before OnComplete, used to stop the camera.
func (m *Machine) OnFinish(f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFinish = append(m.onFinish, f)
}

// Begin starts a session over items for userID. An empty userID is anonymous.
func (m *Machine) Begin(items []vocab.Item, userID string) error {
	if len(items) == 0 {
		return ErrNoItems
	}

	m.mu.Lock()
	if m.state == StateActive {
		m.mu.Unlock()
		return ErrActive
	}

	m.cancelTimersLocked()
	m.gen++
	m.state = StateActive
	m.items = append([]vocab.Item(nil), items...)
	m.index = 0
	m.attempts = 0
	m.successes = 0
	m.feedback = FeedbackNone
	m.sessionID = ""
	m.userID = userID
	m.startedAt = time.Now()
	m.completeOnDeliver = nil

	gen := m.gen
	var effects []func()
	if rec := m.cfg.Recorder; rec != nil && userID != "" {
		effects = append(effects, func() {
			rec.StartSession(userID, func(id string) { m.deliverSessionID(gen, id) })
		})
	}
	effects = append(effects, m.changedLocked())
	m.mu.Unlock()

	m.logger.Infow("practice session started", "items", len(items), "user", userID)
	run(effects)
	return nil
}

// Current returns the expected item and its index while Active.
func (m *Machine) Current() (vocab.Item, int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateActive {
		return vocab.Item{}, 0, false
	}
	return m.items[m.index], m.index, true
}

// Apply scores an outcome for the item at index. It is ignored unless the
// session is Active, index is still current, and no advance is pending.
// It reports whether the outcome was applied.
func (m *Machine) Apply(index int, outcome match.Outcome) bool {
	m.mu.Lock()

	if m.state != StateActive || index != m.index || m.advanceTimer != nil || outcome == match.None {
		m.mu.Unlock()
		return false
	}

	item := m.items[m.index]
	var effects []func()

	switch outcome {
	case match.Correct:
		m.cancelTimersLocked()
		m.attempts++
		m.successes++
		m.feedback = FeedbackCorrect
		gen, seq := m.gen, m.seq
		m.advanceTimer = m.cfg.AfterFunc(m.cfg.CorrectDelay, func() { m.delayedAdvance(gen, seq) })
	case match.Incorrect:
		m.cancelTimersLocked()
		m.attempts++
		m.feedback = FeedbackIncorrect
		gen, seq := m.gen, m.seq
		m.revertTimer = m.cfg.AfterFunc(m.cfg.IncorrectDelay, func() { m.revertFeedback(gen, seq) })
	}

	if rec := m.cfg.Recorder; rec != nil && m.userID != "" {
		userID, success := m.userID, outcome == match.Correct
		effects = append(effects, func() { rec.RecordAttempt(userID, item.ID, success) })
	}
	effects = append(effects, m.changedLocked())
	m.mu.Unlock()

	m.logger.Debugw("attempt scored", "item", item.ClassName, "outcome", outcome.String())
	run(effects)
	return true
}

// Skip moves to the next item without scoring, cancelling any pending transition.
func (m *Machine) Skip() {
	m.mu.Lock()
	if m.state != StateActive {
		m.mu.Unlock()
		return
	}
	effects := m.advanceLocked()
	m.mu.Unlock()

	run(effects)
}

// Teardown cancels pending transitions, invalidates late callbacks, and resets to Idle.
func (m *Machine) Teardown() {
	m.mu.Lock()
	m.cancelTimersLocked()
	m.gen++
	wasIdle := m.state == StateIdle
	m.state = StateIdle
	m.items = nil
	m.index = 0
	m.attempts = 0
	m.successes = 0
	m.feedback = FeedbackNone
	m.sessionID = ""
	m.userID = ""
	m.completeOnDeliver = nil

	var effects []func()
	if !wasIdle {
		effects = append(effects, m.changedLocked())
	}
	m.mu.Unlock()

	run(effects)
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) delayedAdvance(gen, seq uint64) {
	m.mu.Lock()
	if gen != m.gen || seq != m.seq || m.state != StateActive {
		m.mu.Unlock()
		return
	}
	effects := m.advanceLocked()
	m.mu.Unlock()

	run(effects)
}

func (m *Machine) revertFeedback(gen, seq uint64) {
	m.mu.Lock()
	if gen != m.gen || seq != m.seq || m.state != StateActive || m.feedback != FeedbackIncorrect {
		m.mu.Unlock()
		return
	}
	m.revertTimer = nil
	m.feedback = FeedbackNone
	effects := []func(){m.changedLocked()}
	m.mu.Unlock()

	run(effects)
}

func (m *Machine) deliverSessionID(gen uint64, id string) {
	m.mu.Lock()
	if gen != m.gen || id == "" {
		m.mu.Unlock()
		return
	}
	m.sessionID = id

	var effects []func()
	if counts := m.completeOnDeliver; counts != nil && m.cfg.Recorder != nil {
		m.completeOnDeliver = nil
		rec := m.cfg.Recorder
		effects = append(effects, func() { rec.CompleteSession(id, counts[0], counts[1]) })
	}
	effects = append(effects, m.changedLocked())
	m.mu.Unlock()

	run(effects)
}

// advanceLocked is the only place the index moves and the only bounds check.
func (m *Machine) advanceLocked() []func() {
	m.cancelTimersLocked()

	if m.index+1 < len(m.items) {
		m.index++
		m.feedback = FeedbackNone
		return []func(){m.changedLocked()}
	}

	m.state = StateCompleted
	m.feedback = FeedbackNone

	summary := Summary{
		SessionID: m.sessionID,
		Items:     len(m.items),
		Attempts:  m.attempts,
		Successes: m.successes,
		Duration:  time.Since(m.startedAt),
	}
	if m.attempts > 0 {
		summary.SuccessRate = float64(m.successes) / float64(m.attempts)
	}

	effects := append([]func(){}, m.onFinish...)
	if rec := m.cfg.Recorder; rec != nil && m.userID != "" {
		if m.sessionID != "" {
			id, attempts, successes := m.sessionID, m.attempts, m.successes
			effects = append(effects, func() { rec.CompleteSession(id, attempts, successes) })
		} else {
			m.completeOnDeliver = &[2]int{m.attempts, m.successes}
		}
	}
	effects = append(effects, m.changedLocked())
	for _, f := range m.onComplete {
		f := f
		effects = append(effects, func() { f(summary) })
	}

	m.logger.Infow("practice session completed",
		"attempts", summary.Attempts, "successes", summary.Successes, "duration", summary.Duration)
	return effects
}

func (m *Machine) cancelTimersLocked() {
	if m.advanceTimer != nil {
		m.advanceTimer.Stop()
		m.advanceTimer = nil
	}
	if m.revertTimer != nil {
		m.revertTimer.Stop()
		m.revertTimer = nil
	}
	m.seq++
}

func (m *Machine) changedLocked() func() {
	snap := m.snapshotLocked()
	hooks := append(([]func(Snapshot))(nil), m.onChange...)
	return func() {
		for _, f := range hooks {
			f(snap)
		}
	}
}

func (m *Machine) snapshotLocked() Snapshot {
	s := Snapshot{
		State:          m.state,
		Items:          append([]vocab.Item(nil), m.items...),
		Index:          m.index,
		Attempts:       m.attempts,
		Successes:      m.successes,
		Feedback:       m.feedback,
		AdvancePending: m.advanceTimer != nil,
		SessionID:      m.sessionID,
		UserID:         m.userID,
	}
	if m.state == StateActive {
		cur := m.items[m.index]
		s.Current = &cur
	}
	return s
}

func run(effects []func()) {
	for _, f := range effects {
		f()
	}
}
