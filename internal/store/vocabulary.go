package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Difficulty is the difficulty tier of a sign.
type Difficulty string

const (
	// DifficultyBeginner marks signs suitable for a first session.
	DifficultyBeginner Difficulty = "beginner"
	// DifficultyIntermediate marks signs with compound hand shapes.
	DifficultyIntermediate Difficulty = "intermediate"
	// DifficultyAdvanced marks signs that need motion or two hands.
	DifficultyAdvanced Difficulty = "advanced"
)

// Valid reports whether d is one of the known tiers.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return true
	}
	return false
}

// Sign represents a vocabulary entry stored in the database.
type Sign struct {
	ID          string
	ClassID     string
	ClassName   string
	DisplayName string
	Description string
	Category    string
	Difficulty  Difficulty
	CreatedAt   time.Time
}

// VocabularyRepository provides CRUD operations for sign vocabulary.
type VocabularyRepository struct {
	db *sql.DB
}

// Vocabulary returns the vocabulary repository for this store.
func (s *Store) Vocabulary() *VocabularyRepository {
	return &VocabularyRepository{db: s.db}
}

const signColumns = `id, class_id, class_name, display_name, description, category, difficulty, created_at`

// Create inserts a new sign into the database.
func (r *VocabularyRepository) Create(ctx context.Context, sg *Sign) error {
	sg.CreatedAt = time.Now()
	if sg.Difficulty == "" {
		sg.Difficulty = DifficultyBeginner
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sign_vocabulary (`+signColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sg.ID, sg.ClassID, sg.ClassName, sg.DisplayName, sg.Description, sg.Category, string(sg.Difficulty), sg.CreatedAt,
	)
	return err
}

// GetByID retrieves a sign by its ID.
func (r *VocabularyRepository) GetByID(ctx context.Context, id string) (*Sign, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+signColumns+` FROM sign_vocabulary WHERE id = ?`, id)
	return scanSign(row)
}

// GetByClassID retrieves a sign by the class label the detector emits.
func (r *VocabularyRepository) GetByClassID(ctx context.Context, classID string) (*Sign, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+signColumns+` FROM sign_vocabulary WHERE class_id = ?`, classID)
	return scanSign(row)
}

// List retrieves all signs ordered by class id, numerically where the id is a number.
func (r *VocabularyRepository) List(ctx context.Context) ([]*Sign, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+signColumns+` FROM sign_vocabulary
		 ORDER BY CAST(class_id AS INTEGER), class_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signs []*Sign
	for rows.Next() {
		sg, err := scanSign(rows)
		if err != nil {
			return nil, err
		}
		signs = append(signs, sg)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return signs, nil
}

// Count returns the number of stored signs.
func (r *VocabularyRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sign_vocabulary`).Scan(&n)
	return n, err
}

// Update updates an existing sign in the database.
func (r *VocabularyRepository) Update(ctx context.Context, sg *Sign) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sign_vocabulary SET class_id = ?, class_name = ?, display_name = ?, description = ?, category = ?, difficulty = ?
		 WHERE id = ?`,
		sg.ClassID, sg.ClassName, sg.DisplayName, sg.Description, sg.Category, string(sg.Difficulty), sg.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// Delete removes a sign from the database by its ID.
func (r *VocabularyRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sign_vocabulary WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSign(row rowScanner) (*Sign, error) {
	sg := &Sign{}
	var difficulty string

	err := row.Scan(&sg.ID, &sg.ClassID, &sg.ClassName, &sg.DisplayName, &sg.Description, &sg.Category, &difficulty, &sg.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	sg.Difficulty = Difficulty(difficulty)
	return sg, nil
}

// requireAffected maps an update or delete that touched no rows to ErrNotFound.
func requireAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
