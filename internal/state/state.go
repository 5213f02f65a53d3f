// Package state remembers which report was last delivered so that a rerun
// in the same week does not mail it twice.
package state

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Store records delivered reports.
type Store interface {
	// LastSent returns the URL of the most recently delivered report, or ""
	// when nothing has been sent yet.
	LastSent(ctx context.Context) (string, error)
	MarkSent(ctx context.Context, url string, at time.Time) error
	Close() error
}

// Entry is one delivered report.
type Entry struct {
	URL    string
	SentAt time.Time
}

// ErrReadOnly is returned by MarkSent on stores opened with OpenReadOnly.
var ErrReadOnly = errors.New("state: store is read-only")

// Open picks the backend from the file extension: .db, .sqlite and .sqlite3
// use SQLite, anything else the JSON file.
func Open(ctx context.Context, path string) (Store, error) {
	if !isSQLite(path) {
		return NewJSONStore(path), nil
	}
	s, err := OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// OpenReadOnly opens path for lookups without creating or migrating anything.
// A missing file reads as an empty history.
func OpenReadOnly(ctx context.Context, path string) (Store, error) {
	if !isSQLite(path) {
		return &JSONStore{path: path, readOnly: true}, nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return emptyStore{}, nil
	}
	s, err := openSQLiteReadOnly(ctx, path)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func isSQLite(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return true
	}
	return false
}

type emptyStore struct{}

func (emptyStore) LastSent(context.Context) (string, error)          { return "", nil }
func (emptyStore) MarkSent(context.Context, string, time.Time) error { return ErrReadOnly }
func (emptyStore) History(context.Context, int) ([]Entry, error)     { return nil, nil }
func (emptyStore) Close() error                                      { return nil }

// Historian is implemented by stores that can list past deliveries.
type Historian interface {
	History(ctx context.Context, limit int) ([]Entry, error)
}
