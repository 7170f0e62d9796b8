package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/pavelanni/autograde/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if strings.HasPrefix(dbPath, ":memory:") {
		// Every pooled connection would otherwise open its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'student',
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS exams (
		id TEXT PRIMARY KEY,
		owner_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		subject TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		difficulty TEXT NOT NULL DEFAULT 'medium',
		time_limit INTEGER NOT NULL DEFAULT 60,
		status TEXT NOT NULL DEFAULT 'draft',
		created_at DATETIME NOT NULL,
		published_at DATETIME,
		FOREIGN KEY (owner_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		exam_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		type TEXT NOT NULL,
		text TEXT NOT NULL,
		options TEXT NOT NULL DEFAULT '[]',
		correct_answer TEXT NOT NULL DEFAULT '',
		rubric TEXT NOT NULL DEFAULT '',
		keywords TEXT NOT NULL DEFAULT '[]',
		max_points INTEGER NOT NULL DEFAULT 10,
		FOREIGN KEY (exam_id) REFERENCES exams(id)
	);

	CREATE TABLE IF NOT EXISTS exam_results (
		id TEXT PRIMARY KEY,
		exam_id TEXT NOT NULL,
		student_id INTEGER NOT NULL,
		total_score REAL NOT NULL,
		max_score REAL NOT NULL,
		percentage INTEGER NOT NULL,
		grade TEXT NOT NULL,
		completed_at DATETIME NOT NULL,
		time_taken INTEGER NOT NULL DEFAULT 0,
		overall_feedback TEXT NOT NULL DEFAULT '',
		needs_review BOOLEAN NOT NULL DEFAULT 0,
		reviewed_score REAL,
		FOREIGN KEY (exam_id) REFERENCES exams(id),
		FOREIGN KEY (student_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS question_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		result_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		question_id TEXT NOT NULL,
		type TEXT NOT NULL,
		text TEXT NOT NULL,
		student_answer TEXT NOT NULL DEFAULT '',
		correct_answer TEXT NOT NULL DEFAULT '',
		is_correct BOOLEAN NOT NULL DEFAULT 0,
		score REAL NOT NULL DEFAULT 0,
		max_score REAL NOT NULL DEFAULT 0,
		feedback TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (result_id) REFERENCES exam_results(id)
	);

	CREATE TABLE IF NOT EXISTS submissions (
		id TEXT PRIMARY KEY,
		exam_id TEXT NOT NULL,
		result_id TEXT NOT NULL UNIQUE,
		student_id INTEGER NOT NULL,
		submitted_at DATETIME NOT NULL,
		score REAL NOT NULL,
		max_score REAL NOT NULL,
		percentage INTEGER NOT NULL,
		status TEXT NOT NULL,
		time_taken INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (exam_id) REFERENCES exams(id),
		FOREIGN KEY (result_id) REFERENCES exam_results(id)
	);

	CREATE INDEX IF NOT EXISTS idx_questions_exam ON questions(exam_id, position);
	CREATE INDEX IF NOT EXISTS idx_results_student ON exam_results(student_id);
	CREATE INDEX IF NOT EXISTS idx_submissions_exam ON submissions(exam_id);

	CREATE TABLE IF NOT EXISTS exam_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// notFound converts sql.ErrNoRows into a NotFoundError for kind and id.
func notFound(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return &model.NotFoundError{Kind: kind, ID: id}
	}
	return err
}
