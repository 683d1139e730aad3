package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SessionMode is the kind of practice a session record describes.
type SessionMode string

const (
	// ModePractice is a guided run through the vocabulary.
	ModePractice SessionMode = "practice"
	// ModeRealtime is free-form detection without an expected sign.
	ModeRealtime SessionMode = "realtime"
)

// PracticeSession represents a practice run stored in the database.
type PracticeSession struct {
	ID          string
	UserID      string
	Mode        SessionMode
	SignID      string
	Attempts    int
	Successes   int
	SuccessRate float64
	Duration    time.Duration
	StartedAt   time.Time
	CompletedAt *time.Time
}

// Completed reports whether the session has been closed.
func (p *PracticeSession) Completed() bool {
	return p.CompletedAt != nil
}

// SessionRepository provides access to practice sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Create inserts a new open session.
func (r *SessionRepository) Create(ctx context.Context, p *PracticeSession) error {
	if p.StartedAt.IsZero() {
		p.StartedAt = time.Now()
	}
	if p.Mode == "" {
		p.Mode = ModePractice
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO practice_sessions (id, user_id, mode, sign_id, started_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.UserID, string(p.Mode), p.SignID, p.StartedAt,
	)
	return err
}

// Complete closes a session with its final counters. The duration is measured from
// the recorded start time.
func (r *SessionRepository) Complete(ctx context.Context, id string, attempts, successes int) error {
	p, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now()
	rate := 0.0
	if attempts > 0 {
		rate = float64(successes) / float64(attempts)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE practice_sessions SET attempts = ?, successes = ?, success_rate = ?, duration_ms = ?, completed_at = ?
		 WHERE id = ?`,
		attempts, successes, rate, now.Sub(p.StartedAt).Milliseconds(), now, id,
	)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*PracticeSession, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, mode, sign_id, attempts, successes, success_rate, duration_ms, started_at, completed_at
		 FROM practice_sessions WHERE id = ?`, id)
	return scanSession(row)
}

// ListByUser retrieves a user's sessions, newest first.
func (r *SessionRepository) ListByUser(ctx context.Context, userID string) ([]*PracticeSession, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, mode, sign_id, attempts, successes, success_rate, duration_ms, started_at, completed_at
		 FROM practice_sessions WHERE user_id = ? ORDER BY started_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*PracticeSession
	for rows.Next() {
		p, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func scanSession(row rowScanner) (*PracticeSession, error) {
	p := &PracticeSession{}
	var mode string
	var durationMs int64
	var completedAt sql.NullTime

	err := row.Scan(&p.ID, &p.UserID, &mode, &p.SignID, &p.Attempts, &p.Successes, &p.SuccessRate, &durationMs, &p.StartedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	p.Mode = SessionMode(mode)
	p.Duration = time.Duration(durationMs) * time.Millisecond
	if completedAt.Valid {
		t := completedAt.Time
		p.CompletedAt = &t
	}
	return p, nil
}
