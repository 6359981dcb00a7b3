package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "testpilot-test.db")
	db, err := InitDB(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestInitDBIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "twice.db")
	for i := 0; i < 2; i++ {
		db, err := InitDB(dbPath)
		require.NoError(t, err, "run %d", i)
		db.Close()
	}
}

func TestKVGetMissing(t *testing.T) {
	kv := NewKV(newTestDB(t))
	val, ok, err := kv.Get(context.Background(), "testpilot_history")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, val)
}

func TestKVSetOverwrites(t *testing.T) {
	ctx := context.Background()
	kv := NewKV(newTestDB(t))

	require.NoError(t, kv.Set(ctx, "k", []byte(`[{"id":"a"}]`)))
	require.NoError(t, kv.Set(ctx, "k", []byte(`[]`)))
	require.NoError(t, kv.Set(ctx, "other", []byte(`x`)))

	val, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "[]", string(val))
}

func TestKVClosedDBReturnsError(t *testing.T) {
	db := newTestDB(t)
	kv := NewKV(db)
	db.Close()

	_, _, err := kv.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.Error(t, kv.Set(context.Background(), "k", []byte("v")))
}

func TestRunsInsertAndRecent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	base := time.Now().UTC().Truncate(time.Second)

	runs := []Run{
		{EntryID: "old", Provider: "llm", Outcome: "accepted", StartedAt: base.Add(-48 * time.Hour)},
		{EntryID: "e1", Provider: "llm", Outcome: "accepted", Duration: 1500 * time.Millisecond, StartedAt: base.Add(-time.Hour)},
		{Provider: "http", Outcome: "rejected", Detail: "no reports", StartedAt: base},
	}
	for _, r := range runs {
		require.NoError(t, InsertRun(ctx, db, r))
	}

	got, err := RecentRuns(ctx, db, base.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "rejected", got[0].Outcome)
	assert.Equal(t, "no reports", got[0].Detail)
	assert.Equal(t, "e1", got[1].EntryID)
	assert.Equal(t, 1500*time.Millisecond, got[1].Duration)
	assert.True(t, got[1].StartedAt.Equal(base.Add(-time.Hour)), "started_at = %s", got[1].StartedAt)
}
