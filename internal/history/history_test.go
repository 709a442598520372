package history

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/JonMunkholm/csvescape/internal/core"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRun(t *testing.T) {
	run := NewRun("http", "escape", "excel", 42)

	assert.NotEqual(t, uuid.Nil, run.ID)
	assert.Equal(t, StatusOK, run.Status)
	assert.Equal(t, 42, run.InputBytes)
	assert.WithinDuration(t, time.Now(), run.CreatedAt, time.Minute)

	other := NewRun("http", "escape", "excel", 42)
	assert.NotEqual(t, run.ID, other.ID)
}

func TestRun_Complete(t *testing.T) {
	res, err := core.Process(core.Request{
		Mode:    core.ModeSanitize,
		Profile: core.ProfileAISafety,
		Text:    "a,b\n1\n",
	})
	require.NoError(t, err)

	run := NewRun("cli", "sanitize", "", 6)
	run.Complete(res, 1500*time.Millisecond)

	assert.Equal(t, StatusOK, run.Status)
	assert.Equal(t, core.ProfileAISafety, run.Profile)
	assert.Equal(t, len(res.CSVText), run.OutputBytes)
	assert.Equal(t, 2, run.Rows)
	assert.Equal(t, 1, run.IssuesFixed)
	assert.Equal(t, 1, run.IssuesUnfixed)
	assert.Equal(t, int64(1500), run.DurationMS)
}

func TestRun_Fail(t *testing.T) {
	run := NewRun("http", "escape", "excel", 0)
	run.Fail("INVALID_BASE64", time.Millisecond)

	assert.Equal(t, StatusError, run.Status)
	assert.Equal(t, "INVALID_BASE64", run.ErrorCode)
}

func TestNopStore(t *testing.T) {
	var s Store = NopStore{}
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, NewRun("http", "escape", "excel", 1)))

	runs, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)

	n, err := s.Purge(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryStore_RecentNewestFirst(t *testing.T) {
	s := NewMemoryStore(10)
	ctx := context.Background()

	for _, mode := range []string{"escape", "sanitize", "analyze"} {
		require.NoError(t, s.Record(ctx, NewRun("http", mode, "excel", 1)))
	}

	runs, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "analyze", runs[0].Mode)
	assert.Equal(t, "sanitize", runs[1].Mode)

	all, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemoryStore_Capacity(t *testing.T) {
	s := NewMemoryStore(2)
	ctx := context.Background()

	for _, mode := range []string{"a", "b", "c"} {
		require.NoError(t, s.Record(ctx, Run{Mode: mode, CreatedAt: time.Now()}))
	}

	assert.Equal(t, 2, s.Len())
	runs, _ := s.Recent(ctx, 10)
	assert.Equal(t, "c", runs[0].Mode)
	assert.Equal(t, "b", runs[1].Mode)
}

func TestMemoryStore_Purge(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, Run{Mode: "old", CreatedAt: time.Now().Add(-2 * time.Hour)}))
	require.NoError(t, s.Record(ctx, Run{Mode: "new", CreatedAt: time.Now()}))

	n, err := s.Purge(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	runs, _ := s.Recent(ctx, 10)
	require.Len(t, runs, 1)
	assert.Equal(t, "new", runs[0].Mode)
}

func TestStartRetentionScheduler(t *testing.T) {
	s := NewMemoryStore(0)
	require.NoError(t, s.Record(context.Background(), Run{CreatedAt: time.Now().Add(-48 * time.Hour)}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		StartRetentionScheduler(ctx, s, RetentionConfig{Retention: time.Hour, CheckInterval: 10 * time.Millisecond})
		close(done)
	}()

	require.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)

	// Runs recorded later are purged on a following tick.
	require.NoError(t, s.Record(context.Background(), Run{CreatedAt: time.Now().Add(-2 * time.Hour)}))
	require.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}

func TestRetentionConfig_Defaults(t *testing.T) {
	cfg := RetentionConfig{}.withDefaults()
	assert.Equal(t, 30*24*time.Hour, cfg.Retention)
	assert.Equal(t, 24*time.Hour, cfg.CheckInterval)
}

// TestPgStore runs against a real database when CSVESCAPE_TEST_DATABASE_URL is set.
func TestPgStore(t *testing.T) {
	url := os.Getenv("CSVESCAPE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CSVESCAPE_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store, err := NewPgStore(ctx, pool)
	require.NoError(t, err)

	run := NewRun("test", "escape", "excel", 10)
	run.RequestID = "req-1"
	require.NoError(t, store.Record(ctx, run))

	runs, err := store.Recent(ctx, 50)
	require.NoError(t, err)

	var found bool
	for _, r := range runs {
		if r.ID == run.ID {
			found = true
			assert.Equal(t, "req-1", r.RequestID)
			assert.Equal(t, "excel", r.Profile)
		}
	}
	assert.True(t, found, "recorded run not returned")

	old := NewRun("test", "analyze", "custom", 1)
	old.CreatedAt = time.Now().Add(-72 * time.Hour)
	require.NoError(t, store.Record(ctx, old))

	n, err := store.Purge(ctx, 48*time.Hour)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))
}
