package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/uirecorder/internal/script"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesAndReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "open #%d", i)
		require.NoError(t, s.Close())
	}
	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestOpen_WALMode(t *testing.T) {
	s := openTestStore(t)
	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.BeginSession(ctx, "s1", "notepad", start))
	require.NoError(t, s.BeginSession(ctx, "s1", "ignored", start.Add(time.Hour)))

	sink := s.Sink("s1")
	require.NoError(t, sink.Append(ctx, script.Fragment{Seq: 2, Pattern: "invoke", Line: "b.invoke()", At: start.Add(2 * time.Second)}))
	require.NoError(t, sink.Append(ctx, script.Fragment{Seq: 1, Pattern: "mouse_click", Line: "a.click_input()", At: start.Add(time.Second)}))
	// Duplicate sequence numbers are dropped.
	require.NoError(t, sink.Append(ctx, script.Fragment{Seq: 1, Pattern: "mouse_click", Line: "other"}))

	require.NoError(t, s.EndSession(ctx, "s1", "process_gone", start.Add(time.Minute)))

	sess, err := s.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, Session{
		ID:        "s1",
		Scenario:  "notepad",
		StartedAt: start,
		EndedAt:   start.Add(time.Minute),
		EndReason: "process_gone",
		Fragments: 2,
	}, sess)

	frags, err := s.Script(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, frags, 2)
	assert.Equal(t, uint64(1), frags[0].Seq)
	assert.Equal(t, "a.click_input()", frags[0].Line)
	assert.Equal(t, start.Add(time.Second), frags[0].At)
	assert.Equal(t, "b.invoke()", frags[1].Line)
}

func TestSessions_NewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.BeginSession(ctx, "old", "", t0))
	require.NoError(t, s.BeginSession(ctx, "new", "", t0.Add(time.Hour)))

	got, err := s.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].ID)
	assert.Equal(t, "old", got[1].ID)
	assert.True(t, got[0].EndedAt.IsZero())
	assert.Empty(t, got[0].EndReason)
}

func TestSessions_Empty(t *testing.T) {
	got, err := openTestStore(t).Sessions(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestUnknownSession(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Session(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Script(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	err = s.EndSession(ctx, "ghost", "stopped", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)

	// Fragments need a session row.
	err = s.AppendFragment(ctx, "ghost", script.Fragment{Seq: 1, Line: "x"})
	assert.Error(t, err)
}
