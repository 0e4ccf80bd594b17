package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB wraps sql.DB for the scheduling service.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

// NewDB opens the sqlite database at path and runs migrations.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL lets readers proceed while a booking insert holds the write lock;
	// busy_timeout makes concurrent writers wait instead of failing.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{DB: db, path: path, logger: logger}
	if err := instance.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if logger != nil {
		logger.Info().Str("path", path).Msg("Database initialized")
	}
	return instance, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS doctor_availability (
			doctor_id TEXT PRIMARY KEY,
			consultation_minutes INTEGER NOT NULL CHECK (consultation_minutes > 0),
			-- Bumped on every replace; caches compare it before overwriting.
			version INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// One row per weekday the doctor works; start/end are minutes since midnight.
		`CREATE TABLE IF NOT EXISTS doctor_windows (
			doctor_id TEXT NOT NULL,
			weekday INTEGER NOT NULL CHECK (weekday BETWEEN 1 AND 7),
			start_minute INTEGER NOT NULL,
			end_minute INTEGER NOT NULL,
			PRIMARY KEY (doctor_id, weekday),
			CHECK (start_minute < end_minute),
			FOREIGN KEY (doctor_id) REFERENCES doctor_availability(doctor_id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS clinic_holidays (
			date TEXT PRIMARY KEY,
			name TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS appointments (
			id TEXT PRIMARY KEY,
			doctor_id TEXT NOT NULL,
			branch_id TEXT NOT NULL,
			date TEXT NOT NULL,
			time_slot INTEGER NOT NULL,
			patient_name TEXT NOT NULL,
			patient_contact TEXT NOT NULL,
			patient_age INTEGER,
			patient_gender TEXT,
			patient_address TEXT,
			patient_email TEXT,
			referred_doctor_id TEXT,
			notes TEXT,
			status TEXT NOT NULL DEFAULT 'confirmed',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		// At most one confirmed appointment per doctor/date/slot. Cancelled and
		// completed rows are outside the index, so the slot can be booked again.
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_appointments_confirmed_slot
			ON appointments(doctor_id, date, time_slot) WHERE status = 'confirmed'`,

		`CREATE INDEX IF NOT EXISTS idx_appointments_doctor_date ON appointments(doctor_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_date ON appointments(date)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_status ON appointments(status)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// IsUniqueViolation reports whether err is a sqlite UNIQUE constraint failure.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint &&
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

func (db *DB) Close() error {
	return db.DB.Close()
}
