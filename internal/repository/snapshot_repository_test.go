package repository

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"jarvis/internal/models"
	"jarvis/pkg/postgres"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

func sampleSnapshot(version int64) *models.Snapshot {
	now := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)
	improved := now.Add(-time.Minute)
	return &models.Snapshot{
		Version: version,
		SavedAt: now,
		Entries: []models.KnowledgeEntry{
			{
				ID:               uuid.New(),
				Pattern:          "hello jarvis",
				ResponseTemplate: "Hello! How can I help?",
				Score:            0.8,
				BaselineScore:    0.75,
				UsageCount:       4,
				CreatedAt:        now.Add(-time.Hour),
				LastUpdated:      now,
			},
			{
				ID:               uuid.New(),
				Pattern:          "what can you do",
				ResponseTemplate: "I can answer questions and learn from your ratings.",
				Score:            0.875,
				BaselineScore:    0.875,
				UsageCount:       3,
				CreatedAt:        now,
				LastUpdated:      now,
			},
		},
		LearningState: models.LearningState{
			InteractionCounter: 3,
			TotalInteractions:  42,
			TotalFeedback:      10,
			PositiveFeedback:   7,
			NegativeFeedback:   2,
			SuccessRate:        0.675,
			ImprovementCycles:  5,
			LastImprovementAt:  &improved,
		},
	}
}

// assertSnapshotEqual compares field by field so time zones and monotonic readings do not matter.
func assertSnapshotEqual(t *testing.T, want, got *models.Snapshot) {
	t.Helper()

	assert.Equal(t, want.Version, got.Version)
	assert.True(t, want.SavedAt.Equal(got.SavedAt), "saved_at: want %v got %v", want.SavedAt, got.SavedAt)

	ws, gs := want.LearningState, got.LearningState
	assert.Equal(t, ws.InteractionCounter, gs.InteractionCounter)
	assert.Equal(t, ws.TotalInteractions, gs.TotalInteractions)
	assert.Equal(t, ws.TotalFeedback, gs.TotalFeedback)
	assert.Equal(t, ws.PositiveFeedback, gs.PositiveFeedback)
	assert.Equal(t, ws.NegativeFeedback, gs.NegativeFeedback)
	assert.Equal(t, ws.SuccessRate, gs.SuccessRate)
	assert.Equal(t, ws.ImprovementCycles, gs.ImprovementCycles)
	if ws.LastImprovementAt == nil {
		assert.Nil(t, gs.LastImprovementAt)
	} else {
		require.NotNil(t, gs.LastImprovementAt)
		assert.True(t, ws.LastImprovementAt.Equal(*gs.LastImprovementAt))
	}

	require.Len(t, got.Entries, len(want.Entries))
	byID := make(map[uuid.UUID]models.KnowledgeEntry, len(got.Entries))
	for _, e := range got.Entries {
		byID[e.ID] = e
	}
	for _, w := range want.Entries {
		g, ok := byID[w.ID]
		require.True(t, ok, "entry %s missing", w.ID)
		assert.Equal(t, w.Pattern, g.Pattern)
		assert.Equal(t, w.ResponseTemplate, g.ResponseTemplate)
		assert.Equal(t, w.Score, g.Score)
		assert.Equal(t, w.BaselineScore, g.BaselineScore)
		assert.Equal(t, w.UsageCount, g.UsageCount)
		assert.True(t, w.CreatedAt.Equal(g.CreatedAt))
		assert.True(t, w.LastUpdated.Equal(g.LastUpdated))
	}
}

func exerciseRepository(t *testing.T, repo SnapshotRepository) {
	ctx := context.Background()

	_, err := repo.Load(ctx)
	require.ErrorIs(t, err, ErrSnapshotNotFound)

	first := sampleSnapshot(1)
	require.NoError(t, repo.Save(ctx, first))

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assertSnapshotEqual(t, first, loaded)

	// A later save fully replaces the entry set.
	second := sampleSnapshot(2)
	second.Entries = second.Entries[:1]
	second.LearningState.LastImprovementAt = nil
	require.NoError(t, repo.Save(ctx, second))

	loaded, err = repo.Load(ctx)
	require.NoError(t, err)
	assertSnapshotEqual(t, second, loaded)
}

func TestFileSnapshotRepository(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "knowledge_base.json")
	exerciseRepository(t, NewFileSnapshotRepository(path, zap.NewNop()))

	// No temporary files are left behind after successful writes.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "knowledge_base.json", entries[0].Name())
}

func TestFileSnapshotRepository_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knowledge_base.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 3, "entries": [`), 0o600))

	_, err := NewFileSnapshotRepository(path, zap.NewNop()).Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSnapshotNotFound)
}

func TestFileSnapshotRepository_CancelledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knowledge_base.json")
	repo := NewFileSnapshotRepository(path, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, repo.Save(ctx, sampleSnapshot(1)))

	_, err := repo.Load(context.Background())
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestSQLiteSnapshotRepository(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "jarvis.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	repo, err := NewSQLiteSnapshotRepository(context.Background(), db, zap.NewNop())
	require.NoError(t, err)
	defer repo.Close()

	exerciseRepository(t, repo)
}

func TestPostgresSnapshotRepository(t *testing.T) {
	dsn := os.Getenv("JARVIS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("JARVIS_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	pool, err := postgres.NewPoolFromDSN(ctx, dsn)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, "DROP TABLE IF EXISTS knowledge_entries, learning_state")
	require.NoError(t, err)

	repo, err := NewPostgresSnapshotRepository(ctx, pool, zap.NewNop())
	require.NoError(t, err)
	defer repo.Close()

	exerciseRepository(t, repo)
}

func TestBatchEntries(t *testing.T) {
	entries := make([]models.KnowledgeEntry, 7)
	batches := batchEntries(entries, 3)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 3)
	assert.Len(t, batches[2], 1)
	assert.Empty(t, batchEntries(nil, 3))
}
