package turnlog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	r := NewRecorder(db, nil, nil)
	require.NoError(t, r.Migrate())
	return r
}

func TestRecorder_RecordAndList(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()

	reformulated := "What is the income cutoff for a family of 4?"
	entries := []*Entry{
		{TurnID: "t-2", ThreadID: "thread-a", TurnIndex: 1, Route: "rag", Outcome: "answer",
			RawQuery: "What is the income cutoff for that family?", ReformulatedQuery: &reformulated,
			ValidationPassed: true, Sources: []Source{{Document: "Eligibility Manual", Page: 12}}},
		{TurnID: "t-1", ThreadID: "thread-a", TurnIndex: 0, Route: "rag", Outcome: "answer",
			RawQuery: "What is the SMI for a family of 4?", ValidationPassed: true, FilterFallback: true},
		{TurnID: "t-3", ThreadID: "thread-b", TurnIndex: 0, Route: "location", Outcome: "answer",
			RawQuery: "Where is the downtown office?"},
	}
	for _, e := range entries {
		require.NoError(t, r.Record(ctx, e))
		assert.NotZero(t, e.ID)
		assert.False(t, e.CreatedAt.IsZero())
	}

	got, err := r.ListByThread(ctx, "thread-a", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t-1", got[0].TurnID)
	assert.True(t, got[0].FilterFallback)
	assert.Equal(t, "t-2", got[1].TurnID)
	require.NotNil(t, got[1].ReformulatedQuery)
	assert.Contains(t, *got[1].ReformulatedQuery, "family of 4")
	assert.Equal(t, []Source{{Document: "Eligibility Manual", Page: 12}}, got[1].Sources)

	limited, err := r.ListByThread(ctx, "thread-a", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	counts, err := r.CountByRoute(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"rag": 2, "location": 1}, counts)
}

func TestRecorder_DuplicateTurnIDRejected(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()

	require.NoError(t, r.Record(ctx, &Entry{TurnID: "dup", Route: "rag", Outcome: "answer", RawQuery: "q"}))
	err := r.Record(ctx, &Entry{TurnID: "dup", Route: "rag", Outcome: "answer", RawQuery: "q"})
	assert.Error(t, err)
}

func TestRecorder_KeepsExplicitTimestamp(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, r.Record(ctx, &Entry{TurnID: "x", ThreadID: "t", Route: "rag", Outcome: "fallback", RawQuery: "q", CreatedAt: at}))

	got, err := r.ListByThread(ctx, "t", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, at.Equal(got[0].CreatedAt.UTC()))
	assert.Equal(t, "fallback", got[0].Outcome)
}

func TestRecorder_CancelledContext(t *testing.T) {
	r := newTestRecorder(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Record(ctx, &Entry{TurnID: "c", Route: "rag", Outcome: "answer", RawQuery: "q"})
	assert.Error(t, err)
}
