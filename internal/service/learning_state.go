package service

import (
	"sync"
	"time"

	"jarvis/internal/models"
)

// LearningTracker guards the process-wide LearningState. The interaction counter
// counts chat interactions and feedback events since the last improvement trigger.
type LearningTracker struct {
	mu       sync.Mutex
	state    models.LearningState
	interval int
}

func NewLearningTracker(initial models.LearningState, interval int) *LearningTracker {
	if initial.InteractionCounter < 0 || initial.InteractionCounter >= interval {
		initial.InteractionCounter = 0
	}
	return &LearningTracker{
		state:    initial,
		interval: interval,
	}
}

// RecordInteraction counts one chat interaction and reports whether the
// improvement threshold was reached. The counter is reset when it is.
func (t *LearningTracker) RecordInteraction() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state.TotalInteractions++
	return t.tick()
}

// RecordFeedback folds one rating into the success rate (running mean of
// normalized ratings) and advances the trigger counter.
func (t *LearningTracker) RecordFeedback(rating int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state.TotalFeedback++
	switch {
	case rating >= 4:
		t.state.PositiveFeedback++
	case rating <= 2:
		t.state.NegativeFeedback++
	}
	n := float64(t.state.TotalFeedback)
	t.state.SuccessRate += (models.NormalizedRating(rating) - t.state.SuccessRate) / n
	return t.tick()
}

func (t *LearningTracker) tick() bool {
	t.state.InteractionCounter++
	if t.state.InteractionCounter >= t.interval {
		t.state.InteractionCounter = 0
		return true
	}
	return false
}

func (t *LearningTracker) MarkImprovement(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state.ImprovementCycles++
	t.state.LastImprovementAt = &at
}

// Snapshot returns a copy of the current state.
func (t *LearningTracker) Snapshot() models.LearningState {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.state
	if s.LastImprovementAt != nil {
		at := *s.LastImprovementAt
		s.LastImprovementAt = &at
	}
	return s
}

func (t *LearningTracker) Interval() int {
	return t.interval
}
