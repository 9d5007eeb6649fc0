package resolver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// CounterStore hands out counters from a sqlite row per pattern. A counter is
// consumed even if the file write fails, so a name is never issued twice.
type CounterStore struct {
	dir     string
	pattern Pattern
	db      *sql.DB
}

// OpenCounterStore opens (or creates) the counter database at dbPath.
func OpenCounterStore(dir string, p Pattern, dbPath string) (*CounterStore, error) {
	if dbPath == "" {
		dbPath = filepath.Join(dir, ".counters.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create counter database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open counter database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	ctx := context.Background()
	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		`CREATE TABLE IF NOT EXISTS counters (
			pattern TEXT PRIMARY KEY,
			value INTEGER NOT NULL
		)`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize counter database: %w", err)
		}
	}

	log.Printf("resolver: counter database at %s", dbPath)
	return &CounterStore{dir: dir, pattern: p, db: db}, nil
}

// Next atomically increments and returns the counter for the pattern. The
// first call seeds it from the files already in the directory.
func (s *CounterStore) Next(ctx context.Context) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current int
	err = tx.QueryRowContext(ctx, "SELECT value FROM counters WHERE pattern = ?", s.pattern.String()).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		names, err := listNames(s.dir)
		if err != nil {
			return 0, err
		}
		seed := s.pattern.MaxIndex(names)
		current = seed
		if _, err := tx.ExecContext(ctx, "INSERT INTO counters (pattern, value) VALUES (?, ?)", s.pattern.String(), seed); err != nil {
			return 0, fmt.Errorf("failed to seed counter: %w", err)
		}
		log.Printf("resolver: seeded counter for %s at %d", s.pattern, seed)
	} else if err != nil {
		return 0, fmt.Errorf("failed to read counter: %w", err)
	}
	if current >= math.MaxInt {
		return 0, fmt.Errorf("%w: %s", ErrCounterExhausted, s.pattern)
	}

	var next int
	if err := tx.QueryRowContext(ctx,
		"UPDATE counters SET value = value + 1 WHERE pattern = ? RETURNING value",
		s.pattern.String()).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit counter: %w", err)
	}
	return next, nil
}

func (s *CounterStore) Save(ctx context.Context, data []byte) (string, error) {
	if s.pattern.Fixed() {
		return writeFixed(s.dir, s.pattern.String(), data)
	}
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		n, err := s.Next(ctx)
		if err != nil {
			return "", err
		}
		name := s.pattern.Format(strconv.Itoa(n))
		err = writeExclusive(s.dir, name, data)
		if errors.Is(err, os.ErrExist) {
			log.Printf("resolver: %s already exists, skipping counter %d", name, n)
			continue
		}
		if err != nil {
			return "", err
		}
		return name, nil
	}
	return "", ErrTooManyCollisions
}

func (s *CounterStore) Close() error {
	return s.db.Close()
}
