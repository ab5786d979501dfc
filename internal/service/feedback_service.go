package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"jarvis/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxFeedbackCommentLength = 2000

// CycleTrigger receives the request to run an improvement cycle. It must not block.
type CycleTrigger interface {
	Schedule()
}

// FeedbackCollector validates star ratings, stores FeedbackRecords and applies
// them to the knowledge entry that produced the rated response.
type FeedbackCollector struct {
	mu      sync.RWMutex
	records []models.FeedbackRecord
	offset  uint64

	interactions *InteractionLog
	store        *KnowledgeStore
	tracker      *LearningTracker
	sessions     *SessionTracker
	trigger      CycleTrigger
	alpha        float64
	retention    int
	now          func() time.Time
	logger       *zap.Logger
}

func NewFeedbackCollector(
	interactions *InteractionLog,
	store *KnowledgeStore,
	tracker *LearningTracker,
	sessions *SessionTracker,
	trigger CycleTrigger,
	alpha float64,
	retention int,
	logger *zap.Logger,
) *FeedbackCollector {
	return &FeedbackCollector{
		interactions: interactions,
		store:        store,
		tracker:      tracker,
		sessions:     sessions,
		trigger:      trigger,
		alpha:        alpha,
		retention:    retention,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger,
	}
}

// Submit records a rating for messageID. Validation errors are returned to the caller;
// nothing is recorded when they occur.
func (c *FeedbackCollector) Submit(ctx context.Context, sessionID, messageID string, rating int, comment string) (*models.FeedbackRecord, error) {
	if rating < models.MinRating || rating > models.MaxRating {
		return nil, fmt.Errorf("%w: %d is outside %d-%d", ErrInvalidRating, rating, models.MinRating, models.MaxRating)
	}
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}

	msgID, err := uuid.Parse(messageID)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, messageID)
	}
	interaction, ok := c.interactions.Get(msgID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, messageID)
	}

	comment = strings.TrimSpace(sanitizeUTF8(comment))
	if len(comment) > maxFeedbackCommentLength {
		comment = comment[:maxFeedbackCommentLength]
	}

	now := c.now()
	record := models.FeedbackRecord{
		ID:        uuid.New(),
		SessionID: sessionID,
		MessageID: msgID,
		Rating:    rating,
		Comment:   comment,
		Timestamp: now,
	}

	// A record becomes visible to Since only after its live score update.
	var (
		entry models.KnowledgeEntry
		found bool
	)
	c.mu.Lock()
	if interaction.KnowledgeEntryID != nil {
		entry, found = c.store.ApplyFeedback(*interaction.KnowledgeEntryID, record.Normalized(), c.alpha, now)
	}
	record.Seq = c.offset + uint64(len(c.records))
	c.records = append(c.records, record)
	c.mu.Unlock()

	if interaction.KnowledgeEntryID != nil {
		if found {
			c.logger.Debug("Knowledge entry score updated",
				zap.String("entry_id", entry.ID.String()),
				zap.Float64("score", entry.Score),
				zap.Int("usage_count", entry.UsageCount),
			)
		} else {
			c.logger.Info("Rated response references a pruned knowledge entry",
				zap.String("entry_id", interaction.KnowledgeEntryID.String()),
				zap.String("message_id", messageID),
			)
		}
	}

	if c.sessions != nil {
		c.sessions.RecordFeedback(sessionID, now)
	}

	if c.tracker.RecordFeedback(rating) {
		c.trigger.Schedule()
	}

	c.logger.Info("Feedback received",
		zap.String("session_id", sessionID),
		zap.String("message_id", messageID),
		zap.Int("rating", rating),
	)
	return &record, nil
}

// Since returns feedback records with sequence >= from in submission order and the
// sequence the next call should start at.
func (c *FeedbackCollector) Since(from uint64) ([]models.FeedbackRecord, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	next := c.offset + uint64(len(c.records))
	if from < c.offset {
		from = c.offset
	}
	if from >= next {
		return nil, next
	}
	segment := c.records[from-c.offset:]
	out := make([]models.FeedbackRecord, len(segment))
	copy(out, segment)
	return out, next
}

// Compact drops consolidated records older than before, keeping at least retention.
func (c *FeedbackCollector) Compact(before uint64) int {
	if c.retention <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	drop := 0
	for drop < len(c.records) && len(c.records)-drop > c.retention && c.offset+uint64(drop) < before {
		drop++
	}
	if drop == 0 {
		return 0
	}
	kept := make([]models.FeedbackRecord, len(c.records)-drop)
	copy(kept, c.records[drop:])
	c.records = kept
	c.offset += uint64(drop)
	return drop
}
