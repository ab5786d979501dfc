package repository

import (
	"context"
	"errors"

	"jarvis/internal/models"
)

// ErrSnapshotNotFound is returned by Load when nothing has been persisted yet.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotRepository persists the knowledge entries and the learning state as one unit.
// Save must be atomic: after a crash, Load returns either the previous or the new snapshot.
type SnapshotRepository interface {
	Load(ctx context.Context) (*models.Snapshot, error)
	Save(ctx context.Context, snapshot *models.Snapshot) error
	Close() error
}

var knowledgeColumns = []string{
	"id", "pattern", "response_template", "score", "baseline_score", "usage_count", "created_at", "last_updated",
}

var learningStateColumns = []string{
	"id", "version", "saved_at", "interaction_counter", "total_interactions", "total_feedback",
	"positive_feedback", "negative_feedback", "success_rate", "improvement_cycles", "last_improvement_at",
}

// learningStateRowID pins the single learning_state row.
const learningStateRowID = 1

// insertBatchSize keeps multi-row inserts well under the bind parameter limits of both SQL backends.
const insertBatchSize = 500

func batchEntries(entries []models.KnowledgeEntry, size int) [][]models.KnowledgeEntry {
	var batches [][]models.KnowledgeEntry
	for len(entries) > 0 {
		n := min(size, len(entries))
		batches = append(batches, entries[:n])
		entries = entries[n:]
	}
	return batches
}
