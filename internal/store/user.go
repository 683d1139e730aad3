package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// User represents a learner who can record progress.
type User struct {
	ID        string
	Name      string
	Token     string
	CreatedAt time.Time
}

// UserRepository provides access to learners.
type UserRepository struct {
	db *sql.DB
}

// Users returns the user repository for this store.
func (s *Store) Users() *UserRepository {
	return &UserRepository{db: s.db}
}

// Create inserts a new user into the database.
func (r *UserRepository) Create(ctx context.Context, u *User) error {
	u.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, token, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Name, u.Token, u.CreatedAt,
	)
	return err
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	return r.get(ctx, `SELECT id, name, token, created_at FROM users WHERE id = ?`, id)
}

// GetByToken retrieves the user owning the given bearer token.
func (r *UserRepository) GetByToken(ctx context.Context, token string) (*User, error) {
	return r.get(ctx, `SELECT id, name, token, created_at FROM users WHERE token = ?`, token)
}

func (r *UserRepository) get(ctx context.Context, query string, arg string) (*User, error) {
	u := &User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Name, &u.Token, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}
