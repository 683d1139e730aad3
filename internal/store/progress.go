package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Proficiency is the learner's level for a single sign.
type Proficiency string

const (
	// ProficiencyLearning is the level before the first successful attempt.
	ProficiencyLearning Proficiency = "learning"
	// ProficiencyPracticing is the level once the sign has been performed correctly.
	ProficiencyPracticing Proficiency = "practicing"
	// ProficiencyMastered is the level after repeated, mostly correct attempts.
	ProficiencyMastered Proficiency = "mastered"
)

// Mastery thresholds.
const (
	MasteredMinSuccesses = 5
	MasteredMinRate      = 0.8
)

// Progress represents a learner's counters for one sign.
type Progress struct {
	ID            string
	UserID        string
	SignID        string
	Attempts      int
	SuccessCount  int
	Proficiency   Proficiency
	LastPracticed time.Time
	CreatedAt     time.Time
}

// ProficiencyFor derives the proficiency level from attempt counters.
func ProficiencyFor(attempts, successes int) Proficiency {
	if successes == 0 || attempts == 0 {
		return ProficiencyLearning
	}
	if successes >= MasteredMinSuccesses && float64(successes)/float64(attempts) >= MasteredMinRate {
		return ProficiencyMastered
	}
	return ProficiencyPracticing
}

// ProgressRepository provides access to per-sign progress.
type ProgressRepository struct {
	db *sql.DB
}

// Progress returns the progress repository for this store.
func (s *Store) Progress() *ProgressRepository {
	return &ProgressRepository{db: s.db}
}

// RecordAttempt adds one attempt for the user and sign, creating the row on first use.
// It returns the updated counters.
func (r *ProgressRepository) RecordAttempt(ctx context.Context, userID, signID string, success bool) (*Progress, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	p, err := getProgress(ctx, tx, userID, signID)
	if errors.Is(err, ErrNotFound) {
		p = &Progress{
			ID:        uuid.NewString(),
			UserID:    userID,
			SignID:    signID,
			CreatedAt: time.Now(),
		}
	} else if err != nil {
		return nil, err
	}

	p.Attempts++
	if success {
		p.SuccessCount++
	}
	p.Proficiency = ProficiencyFor(p.Attempts, p.SuccessCount)
	p.LastPracticed = time.Now()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO user_progress (id, user_id, sign_id, attempts, success_count, proficiency, last_practiced, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, sign_id) DO UPDATE SET
			attempts = excluded.attempts,
			success_count = excluded.success_count,
			proficiency = excluded.proficiency,
			last_practiced = excluded.last_practiced`,
		p.ID, p.UserID, p.SignID, p.Attempts, p.SuccessCount, string(p.Proficiency), p.LastPracticed, p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return p, nil
}

// Get retrieves the progress of one user on one sign.
func (r *ProgressRepository) Get(ctx context.Context, userID, signID string) (*Progress, error) {
	return getProgress(ctx, r.db, userID, signID)
}

// ListByUser retrieves all progress rows for a user, most recently practised first.
func (r *ProgressRepository) ListByUser(ctx context.Context, userID string) ([]*Progress, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, sign_id, attempts, success_count, proficiency, last_practiced, created_at
		 FROM user_progress WHERE user_id = ? ORDER BY last_practiced DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*Progress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getProgress(ctx context.Context, q queryer, userID, signID string) (*Progress, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, user_id, sign_id, attempts, success_count, proficiency, last_practiced, created_at
		 FROM user_progress WHERE user_id = ? AND sign_id = ?`,
		userID, signID,
	)
	return scanProgress(row)
}

func scanProgress(row rowScanner) (*Progress, error) {
	p := &Progress{}
	var proficiency string

	err := row.Scan(&p.ID, &p.UserID, &p.SignID, &p.Attempts, &p.SuccessCount, &proficiency, &p.LastPracticed, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	p.Proficiency = Proficiency(proficiency)
	return p, nil
}
