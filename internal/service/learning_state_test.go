package service

import (
	"testing"
	"time"

	"jarvis/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLearningTracker_TriggersEveryInterval(t *testing.T) {
	tr := NewLearningTracker(models.LearningState{}, 3)

	assert.False(t, tr.RecordInteraction())
	assert.False(t, tr.RecordFeedback(4))
	assert.True(t, tr.RecordInteraction())
	assert.Equal(t, 0, tr.Snapshot().InteractionCounter)

	assert.False(t, tr.RecordInteraction())
	assert.Equal(t, 1, tr.Snapshot().InteractionCounter)
}

func TestLearningTracker_FeedbackCounters(t *testing.T) {
	tr := NewLearningTracker(models.LearningState{}, 7)

	tr.RecordFeedback(5)
	tr.RecordFeedback(1)
	tr.RecordFeedback(3)

	s := tr.Snapshot()
	assert.Equal(t, int64(3), s.TotalFeedback)
	assert.Equal(t, int64(1), s.PositiveFeedback)
	assert.Equal(t, int64(1), s.NegativeFeedback)
	assert.InDelta(t, 0.5, s.SuccessRate, 1e-9)
	assert.Equal(t, int64(0), s.TotalInteractions)
}

func TestLearningTracker_RestoresState(t *testing.T) {
	tr := NewLearningTracker(models.LearningState{InteractionCounter: 9, TotalFeedback: 4, SuccessRate: 0.75}, 7)
	assert.Equal(t, 0, tr.Snapshot().InteractionCounter)

	tr.RecordFeedback(5)
	assert.InDelta(t, 0.8, tr.Snapshot().SuccessRate, 1e-9)

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	tr.MarkImprovement(at)

	s := tr.Snapshot()
	require.NotNil(t, s.LastImprovementAt)
	assert.True(t, at.Equal(*s.LastImprovementAt))
	assert.Equal(t, int64(1), s.ImprovementCycles)

	// The snapshot is a copy.
	*s.LastImprovementAt = at.Add(time.Hour)
	assert.True(t, at.Equal(*tr.Snapshot().LastImprovementAt))
}
