package repository

import (
	"context"
	"errors"
	"fmt"

	"jarvis/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS knowledge_entries (
    id                UUID PRIMARY KEY,
    pattern           TEXT NOT NULL UNIQUE,
    response_template TEXT NOT NULL,
    score             DOUBLE PRECISION NOT NULL CHECK (score >= 0 AND score <= 1),
    baseline_score    DOUBLE PRECISION NOT NULL,
    usage_count       INTEGER NOT NULL CHECK (usage_count >= 0),
    created_at        TIMESTAMPTZ NOT NULL,
    last_updated      TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS learning_state (
    id                  INTEGER PRIMARY KEY CHECK (id = 1),
    version             BIGINT NOT NULL,
    saved_at            TIMESTAMPTZ NOT NULL,
    interaction_counter INTEGER NOT NULL,
    total_interactions  BIGINT NOT NULL,
    total_feedback      BIGINT NOT NULL,
    positive_feedback   BIGINT NOT NULL,
    negative_feedback   BIGINT NOT NULL,
    success_rate        DOUBLE PRECISION NOT NULL,
    improvement_cycles  BIGINT NOT NULL,
    last_improvement_at TIMESTAMPTZ
);`

type PostgresSnapshotRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgresSnapshotRepository(ctx context.Context, db *pgxpool.Pool, logger *zap.Logger) (*PostgresSnapshotRepository, error) {
	if _, err := db.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("failed to create postgres schema: %w", err)
	}
	return &PostgresSnapshotRepository{
		db:     db,
		logger: logger,
	}, nil
}

func (r *PostgresSnapshotRepository) Load(ctx context.Context) (*models.Snapshot, error) {
	query := squirrel.Select(learningStateColumns...).
		From("learning_state").
		Where(squirrel.Eq{"id": learningStateRowID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var (
		id       int
		snapshot models.Snapshot
		state    = &snapshot.LearningState
	)
	err = r.db.QueryRow(ctx, sql, args...).Scan(
		&id, &snapshot.Version, &snapshot.SavedAt, &state.InteractionCounter, &state.TotalInteractions,
		&state.TotalFeedback, &state.PositiveFeedback, &state.NegativeFeedback, &state.SuccessRate,
		&state.ImprovementCycles, &state.LastImprovementAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load learning state: %w", err)
	}

	entriesQuery := squirrel.Select(knowledgeColumns...).
		From("knowledge_entries").
		OrderBy("pattern ASC").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err = entriesQuery.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load knowledge entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entry models.KnowledgeEntry
		if err := rows.Scan(
			&entry.ID, &entry.Pattern, &entry.ResponseTemplate, &entry.Score, &entry.BaselineScore,
			&entry.UsageCount, &entry.CreatedAt, &entry.LastUpdated,
		); err != nil {
			return nil, err
		}
		snapshot.Entries = append(snapshot.Entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &snapshot, nil
}

// Save replaces both tables inside a single transaction.
func (r *PostgresSnapshotRepository) Save(ctx context.Context, snapshot *models.Snapshot) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM knowledge_entries"); err != nil {
		return fmt.Errorf("failed to clear knowledge entries: %w", err)
	}

	for _, batch := range batchEntries(snapshot.Entries, insertBatchSize) {
		insert := squirrel.Insert("knowledge_entries").
			Columns(knowledgeColumns...).
			PlaceholderFormat(squirrel.Dollar)
		for _, e := range batch {
			insert = insert.Values(
				e.ID, e.Pattern, e.ResponseTemplate, e.Score, e.BaselineScore,
				e.UsageCount, e.CreatedAt, e.LastUpdated,
			)
		}

		sql, args, err := insert.ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("failed to insert knowledge entries: %w", err)
		}
	}

	state := snapshot.LearningState
	upsert := squirrel.Insert("learning_state").
		Columns(learningStateColumns...).
		Values(
			learningStateRowID, snapshot.Version, snapshot.SavedAt, state.InteractionCounter,
			state.TotalInteractions, state.TotalFeedback, state.PositiveFeedback, state.NegativeFeedback,
			state.SuccessRate, state.ImprovementCycles, state.LastImprovementAt,
		).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			version = EXCLUDED.version,
			saved_at = EXCLUDED.saved_at,
			interaction_counter = EXCLUDED.interaction_counter,
			total_interactions = EXCLUDED.total_interactions,
			total_feedback = EXCLUDED.total_feedback,
			positive_feedback = EXCLUDED.positive_feedback,
			negative_feedback = EXCLUDED.negative_feedback,
			success_rate = EXCLUDED.success_rate,
			improvement_cycles = EXCLUDED.improvement_cycles,
			last_improvement_at = EXCLUDED.last_improvement_at`).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := upsert.ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to write learning state: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	r.logger.Debug("Snapshot committed to postgres",
		zap.Int64("version", snapshot.Version),
		zap.Int("entries", len(snapshot.Entries)),
	)
	return nil
}

func (r *PostgresSnapshotRepository) Close() error {
	r.db.Close()
	return nil
}
