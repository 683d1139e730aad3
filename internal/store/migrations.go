package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Users table - learners that may record progress
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			token TEXT NOT NULL UNIQUE,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Sign vocabulary table - one row per class the detector can emit
		`CREATE TABLE IF NOT EXISTS sign_vocabulary (
			id TEXT PRIMARY KEY,
			class_id TEXT NOT NULL UNIQUE,
			class_name TEXT NOT NULL,
			display_name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			difficulty TEXT NOT NULL DEFAULT 'beginner'
				CHECK(difficulty IN ('beginner', 'intermediate', 'advanced')),
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// User progress table - per-user, per-sign attempt counters
		`CREATE TABLE IF NOT EXISTS user_progress (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			sign_id TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			success_count INTEGER NOT NULL DEFAULT 0,
			proficiency TEXT NOT NULL DEFAULT 'learning'
				CHECK(proficiency IN ('learning', 'practicing', 'mastered')),
			last_practiced DATETIME DEFAULT CURRENT_TIMESTAMP,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, sign_id)
		)`,

		// Practice sessions table - one row per practice run
		`CREATE TABLE IF NOT EXISTS practice_sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			mode TEXT NOT NULL CHECK(mode IN ('practice', 'realtime')),
			sign_id TEXT NOT NULL DEFAULT '',
			attempts INTEGER NOT NULL DEFAULT 0,
			successes INTEGER NOT NULL DEFAULT 0,
			success_rate REAL NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			started_at DATETIME NOT NULL,
			completed_at DATETIME
		)`,

		// Indexes for better query performance
		`CREATE INDEX IF NOT EXISTS idx_user_progress_user_id ON user_progress(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_practice_sessions_user_id ON practice_sessions(user_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
