package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	week41 = "https://www.ecdc.europa.eu/sites/default/files/documents/communicable-disease-threats-report-2026-week-41.pdf"
	week42 = "https://www.ecdc.europa.eu/sites/default/files/documents/communicable-disease-threats-report-2026-week-42.pdf"
)

func TestOpenPicksBackend(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	js, err := Open(ctx, filepath.Join(dir, ".agent_state.json"))
	require.NoError(t, err)
	assert.IsType(t, &JSONStore{}, js)
	require.NoError(t, js.Close())

	db, err := Open(ctx, filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, db)
	require.NoError(t, db.Close())
}

func TestStores(t *testing.T) {
	open := map[string]func(t *testing.T, dir string) Store{
		"json": func(t *testing.T, dir string) Store {
			return NewJSONStore(filepath.Join(dir, "state.json"))
		},
		"sqlite": func(t *testing.T, dir string) Store {
			s, err := OpenSQLite(context.Background(), filepath.Join(dir, "state.sqlite"))
			require.NoError(t, err)
			return s
		},
	}

	for name, openStore := range open {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := openStore(t, t.TempDir())
			defer s.Close()

			got, err := s.LastSent(ctx)
			require.NoError(t, err)
			assert.Empty(t, got)

			now := time.Date(2026, 10, 12, 8, 0, 0, 0, time.UTC)
			require.NoError(t, s.MarkSent(ctx, week41, now))
			require.NoError(t, s.MarkSent(ctx, week42, now.Add(7*24*time.Hour)))

			got, err = s.LastSent(ctx)
			require.NoError(t, err)
			assert.Equal(t, week42, got)
		})
	}
}

func TestJSONStoreFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".agent_state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"last_pdf_url": "`+week41+`"}`), 0o644))

	s := NewJSONStore(path)
	got, err := s.LastSent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, week41, got)

	require.NoError(t, s.MarkSent(context.Background(), week42, time.Now()))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"last_pdf_url": "`+week42+`"`)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestJSONStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewJSONStore(path).LastSent(context.Background())
	assert.ErrorContains(t, err, "state: parse")
}

func TestSQLiteHistory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	first := time.Date(2026, 10, 5, 9, 30, 0, 0, time.UTC)
	require.NoError(t, s.MarkSent(ctx, week41, first))
	require.NoError(t, s.Close())

	// Reopening applies no new migrations and keeps the rows.
	s, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.MarkSent(ctx, week42, first.Add(7*24*time.Hour)))

	got, err := s.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, week42, got[0].URL)
	assert.Equal(t, first, got[1].SentAt)

	got, err = s.History(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestJSONStoreHistory(t *testing.T) {
	ctx := context.Background()
	s := NewJSONStore(filepath.Join(t.TempDir(), "state.json"))

	got, err := s.History(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	at := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.MarkSent(ctx, week42, at))

	got, err = s.History(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []Entry{{URL: week42, SentAt: at}}, got)
}

func TestOpenReadOnlyMissingFiles(t *testing.T) {
	ctx := context.Background()

	for _, name := range []string{"state.db", "state.sqlite3", ".agent_state.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			s, err := OpenReadOnly(ctx, path)
			require.NoError(t, err)

			got, err := s.LastSent(ctx)
			require.NoError(t, err)
			assert.Empty(t, got)
			assert.ErrorIs(t, s.MarkSent(ctx, week42, time.Now()), ErrReadOnly)

			h, ok := s.(Historian)
			require.True(t, ok)
			entries, err := h.History(ctx, 0)
			require.NoError(t, err)
			assert.Empty(t, entries)

			require.NoError(t, s.Close())
			_, err = os.Stat(path)
			assert.True(t, os.IsNotExist(err), "read-only open must not create %s", name)
		})
	}
}

func TestOpenReadOnlySQLiteLeavesFileUntouched(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	rw, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, rw.MarkSent(ctx, week41, time.Date(2026, 10, 12, 8, 0, 0, 0, time.UTC)))
	require.NoError(t, rw.Close())
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	s, err := OpenReadOnly(ctx, path)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)

	got, err := s.LastSent(ctx)
	require.NoError(t, err)
	assert.Equal(t, week41, got)
	assert.ErrorIs(t, s.MarkSent(ctx, week42, time.Now()), ErrReadOnly)
	require.NoError(t, s.Close())

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
