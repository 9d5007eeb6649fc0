package resolver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

const (
	StrategyScan    = "scan"
	StrategyCounter = "counter"
	StrategyUUID    = "uuid"

	maxCreateAttempts = 100
)

var ErrTooManyCollisions = errors.New("could not find a free file name")

// Store persists an upload under a freshly resolved name and returns it.
type Store interface {
	Save(ctx context.Context, data []byte) (string, error)
	Close() error
}

// Options selects and configures a Store.
type Options struct {
	Dir       string
	Pattern   Pattern
	Strategy  string
	CounterDB string
}

func Open(opts Options) (Store, error) {
	if err := os.MkdirAll(opts.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	switch opts.Strategy {
	case StrategyScan, "":
		return NewScanStore(opts.Dir, opts.Pattern), nil
	case StrategyUUID:
		return NewUUIDStore(opts.Dir, opts.Pattern), nil
	case StrategyCounter:
		return OpenCounterStore(opts.Dir, opts.Pattern, opts.CounterDB)
	default:
		return nil, fmt.Errorf("unknown naming strategy %q", opts.Strategy)
	}
}

// ScanStore lists the directory for every upload. Names are claimed with
// O_EXCL so concurrent writers, in or out of process, never share one.
type ScanStore struct {
	dir     string
	pattern Pattern
	mu      sync.Mutex
}

func NewScanStore(dir string, p Pattern) *ScanStore {
	return &ScanStore{dir: dir, pattern: p}
}

func (s *ScanStore) Save(ctx context.Context, data []byte) (string, error) {
	if s.pattern.Fixed() {
		return writeFixed(s.dir, s.pattern.String(), data)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		names, err := listNames(s.dir)
		if err != nil {
			return "", err
		}
		name, err := Resolve(s.pattern, names)
		if err != nil {
			return "", err
		}
		err = writeExclusive(s.dir, name, data)
		if errors.Is(err, os.ErrExist) {
			log.Printf("resolver: %s appeared concurrently, rescanning", name)
			continue
		}
		if err != nil {
			return "", err
		}
		return name, nil
	}
	return "", ErrTooManyCollisions
}

func (s *ScanStore) Close() error { return nil }

// UUIDStore substitutes a random uuid for the placeholder.
type UUIDStore struct {
	dir     string
	pattern Pattern
}

func NewUUIDStore(dir string, p Pattern) *UUIDStore {
	return &UUIDStore{dir: dir, pattern: p}
}

func (s *UUIDStore) Save(ctx context.Context, data []byte) (string, error) {
	if s.pattern.Fixed() {
		return writeFixed(s.dir, s.pattern.String(), data)
	}
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		name := s.pattern.Format(uuid.NewString())
		err := writeExclusive(s.dir, name, data)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		return name, nil
	}
	return "", ErrTooManyCollisions
}

func (s *UUIDStore) Close() error { return nil }

// listNames returns every entry name in dir. Subdirectories count too: they
// occupy a name just like a file does.
func listNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list upload directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// writeExclusive fails with os.ErrExist if name is taken.
func writeExclusive(dir, name string, data []byte) error {
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return f.Close()
}

// writeFixed replaces name atomically so readers never see a partial file.
func writeFixed(dir, name string, data []byte) (string, error) {
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		log.Printf("resolver: chmod %s: %v", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return name, nil
}
