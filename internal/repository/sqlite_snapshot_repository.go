package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"jarvis/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS knowledge_entries (
    id                TEXT PRIMARY KEY,
    pattern           TEXT NOT NULL UNIQUE,
    response_template TEXT NOT NULL,
    score             REAL NOT NULL CHECK (score >= 0 AND score <= 1),
    baseline_score    REAL NOT NULL,
    usage_count       INTEGER NOT NULL CHECK (usage_count >= 0),
    created_at        INTEGER NOT NULL,
    last_updated      INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS learning_state (
    id                  INTEGER PRIMARY KEY CHECK (id = 1),
    version             INTEGER NOT NULL,
    saved_at            INTEGER NOT NULL,
    interaction_counter INTEGER NOT NULL,
    total_interactions  INTEGER NOT NULL,
    total_feedback      INTEGER NOT NULL,
    positive_feedback   INTEGER NOT NULL,
    negative_feedback   INTEGER NOT NULL,
    success_rate        REAL NOT NULL,
    improvement_cycles  INTEGER NOT NULL,
    last_improvement_at INTEGER
);`

// SQLiteSnapshotRepository stores the snapshot in two tables written inside one transaction.
// Timestamps are stored as Unix nanoseconds.
type SQLiteSnapshotRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLiteSnapshotRepository(ctx context.Context, db *sql.DB, logger *zap.Logger) (*SQLiteSnapshotRepository, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("failed to create sqlite schema: %w", err)
	}
	return &SQLiteSnapshotRepository{
		db:     db,
		logger: logger,
	}, nil
}

func (r *SQLiteSnapshotRepository) Load(ctx context.Context) (*models.Snapshot, error) {
	stateQuery := squirrel.Select(learningStateColumns...).
		From("learning_state").
		Where(squirrel.Eq{"id": learningStateRowID})

	query, args, err := stateQuery.ToSql()
	if err != nil {
		return nil, err
	}

	var (
		id          int
		savedAt     int64
		lastImprove sql.NullInt64
		snapshot    models.Snapshot
		state       = &snapshot.LearningState
	)
	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&id, &snapshot.Version, &savedAt, &state.InteractionCounter, &state.TotalInteractions,
		&state.TotalFeedback, &state.PositiveFeedback, &state.NegativeFeedback, &state.SuccessRate,
		&state.ImprovementCycles, &lastImprove,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load learning state: %w", err)
	}
	snapshot.SavedAt = fromUnixNano(savedAt)
	if lastImprove.Valid {
		t := fromUnixNano(lastImprove.Int64)
		state.LastImprovementAt = &t
	}

	entriesQuery := squirrel.Select(knowledgeColumns...).
		From("knowledge_entries").
		OrderBy("pattern ASC")

	query, args, err = entriesQuery.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load knowledge entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			entry                  models.KnowledgeEntry
			rawID                  string
			createdAt, lastUpdated int64
		)
		if err := rows.Scan(
			&rawID, &entry.Pattern, &entry.ResponseTemplate, &entry.Score, &entry.BaselineScore,
			&entry.UsageCount, &createdAt, &lastUpdated,
		); err != nil {
			return nil, err
		}
		if entry.ID, err = uuid.Parse(rawID); err != nil {
			return nil, fmt.Errorf("corrupt knowledge entry id %q: %w", rawID, err)
		}
		entry.CreatedAt = fromUnixNano(createdAt)
		entry.LastUpdated = fromUnixNano(lastUpdated)
		snapshot.Entries = append(snapshot.Entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &snapshot, nil
}

func (r *SQLiteSnapshotRepository) Save(ctx context.Context, snapshot *models.Snapshot) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM knowledge_entries"); err != nil {
		return fmt.Errorf("failed to clear knowledge entries: %w", err)
	}

	for _, batch := range batchEntries(snapshot.Entries, insertBatchSize) {
		insert := squirrel.Insert("knowledge_entries").Columns(knowledgeColumns...)
		for _, e := range batch {
			insert = insert.Values(
				e.ID.String(), e.Pattern, e.ResponseTemplate, e.Score, e.BaselineScore,
				e.UsageCount, e.CreatedAt.UnixNano(), e.LastUpdated.UnixNano(),
			)
		}
		query, args, buildErr := insert.ToSql()
		if buildErr != nil {
			err = buildErr
			return err
		}
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert knowledge entries: %w", err)
		}
	}

	state := snapshot.LearningState
	var lastImprove sql.NullInt64
	if state.LastImprovementAt != nil {
		lastImprove = sql.NullInt64{Int64: state.LastImprovementAt.UnixNano(), Valid: true}
	}

	upsert := squirrel.Insert("learning_state").
		Columns(learningStateColumns...).
		Values(
			learningStateRowID, snapshot.Version, snapshot.SavedAt.UnixNano(), state.InteractionCounter,
			state.TotalInteractions, state.TotalFeedback, state.PositiveFeedback, state.NegativeFeedback,
			state.SuccessRate, state.ImprovementCycles, lastImprove,
		).
		Options("OR REPLACE")

	query, args, err := upsert.ToSql()
	if err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to write learning state: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	r.logger.Debug("Snapshot committed to sqlite",
		zap.Int64("version", snapshot.Version),
		zap.Int("entries", len(snapshot.Entries)),
	)
	return nil
}

func (r *SQLiteSnapshotRepository) Close() error {
	return r.db.Close()
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
