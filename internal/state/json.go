package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// JSONStore keeps the last delivered report in a small JSON file.
type JSONStore struct {
	path     string
	readOnly bool
}

type jsonState struct {
	LastPDFURL string    `json:"last_pdf_url"`
	SentAt     time.Time `json:"sent_at,omitzero"`
}

func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

func (s *JSONStore) LastSent(context.Context) (string, error) {
	st, err := s.load()
	return st.LastPDFURL, err
}

// History returns at most the single last delivery; the file keeps no more.
func (s *JSONStore) History(_ context.Context, limit int) ([]Entry, error) {
	st, err := s.load()
	if err != nil || st.LastPDFURL == "" || limit < 0 {
		return nil, err
	}
	return []Entry{{URL: st.LastPDFURL, SentAt: st.SentAt}}, nil
}

func (s *JSONStore) load() (jsonState, error) {
	var st jsonState
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("state: read %s: %w", s.path, err)
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return jsonState{}, fmt.Errorf("state: parse %s: %w", s.path, err)
	}
	return st, nil
}

// MarkSent replaces the file atomically.
func (s *JSONStore) MarkSent(_ context.Context, url string, at time.Time) error {
	if s.readOnly {
		return ErrReadOnly
	}
	data, err := json.MarshalIndent(jsonState{LastPDFURL: url, SentAt: at.UTC()}, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("state: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("state: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("state: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("state: replace %s: %w", s.path, err)
	}
	return nil
}

func (s *JSONStore) Close() error { return nil }
