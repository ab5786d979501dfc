package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"jarvis/internal/models"
	"jarvis/internal/repository"
	"jarvis/pkg/config"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CycleReport struct {
	EntriesUpdated      int `json:"entries_updated"`
	EntriesPruned       int `json:"entries_pruned"`
	EntriesCreated      int `json:"entries_created"`
	InteractionsScanned int `json:"interactions_scanned"`
	FeedbackScanned     int `json:"feedback_scanned"`
}

// ImprovementCycle consolidates the feedback gathered since the previous run into
// the knowledge store and persists a snapshot. Runs are serialized.
type ImprovementCycle struct {
	mu sync.Mutex

	store        *KnowledgeStore
	interactions *InteractionLog
	feedback     *FeedbackCollector
	tracker      *LearningTracker
	repo         repository.SnapshotRepository
	cfg          config.LearningConfig
	now          func() time.Time
	logger       *zap.Logger

	interactionCursor uint64
	feedbackCursor    uint64
	version           int64
	// dirty is set when in-memory state changed but the last persist failed.
	dirty     bool
	lastError error
	errMu     sync.RWMutex
}

func NewImprovementCycle(
	store *KnowledgeStore,
	interactions *InteractionLog,
	feedback *FeedbackCollector,
	tracker *LearningTracker,
	repo repository.SnapshotRepository,
	cfg config.LearningConfig,
	version int64,
	logger *zap.Logger,
) *ImprovementCycle {
	return &ImprovementCycle{
		store:        store,
		interactions: interactions,
		feedback:     feedback,
		tracker:      tracker,
		repo:         repo,
		cfg:          cfg,
		version:      version,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger,
	}
}

// Run executes one cycle. With no new interactions or feedback since the last
// run it changes nothing. A persistence failure is returned wrapped in
// ErrPersistence; the in-memory result is kept and the next run retries the write.
func (c *ImprovementCycle) Run(ctx context.Context) (CycleReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.run(ctx)
}

func (c *ImprovementCycle) run(ctx context.Context) (CycleReport, error) {
	interactions, nextInteraction := c.interactions.Since(c.interactionCursor)
	feedback, nextFeedback := c.feedback.Since(c.feedbackCursor)

	var report CycleReport
	if len(interactions) == 0 && len(feedback) == 0 {
		if !c.dirty {
			return report, nil
		}
		return report, c.persist(ctx)
	}

	now := c.now()
	report.InteractionsScanned = len(interactions)
	report.FeedbackScanned = len(feedback)

	err := c.store.Update(func(tx *KnowledgeTx) error {
		c.consolidate(tx, interactions, feedback, now, &report)
		return nil
	})
	if err != nil {
		return report, err
	}

	c.interactionCursor = nextInteraction
	c.feedbackCursor = nextFeedback
	c.tracker.MarkImprovement(now)
	c.dirty = true

	c.interactions.Compact(nextInteraction)
	c.feedback.Compact(nextFeedback)

	return report, c.persist(ctx)
}

// Flush runs a cycle over the pending window and writes a snapshot even when the
// window is empty. Unconsolidated feedback lives only in memory.
func (c *ImprovementCycle) Flush(ctx context.Context) (CycleReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty = true
	return c.run(ctx)
}

// LastError returns the error of the most recent persist attempt, or nil.
func (c *ImprovementCycle) LastError() error {
	c.errMu.RLock()
	defer c.errMu.RUnlock()
	return c.lastError
}

func (c *ImprovementCycle) persist(ctx context.Context) error {
	snapshot := &models.Snapshot{
		Version:       c.version + 1,
		SavedAt:       c.now(),
		Entries:       c.store.List(),
		LearningState: c.tracker.Snapshot(),
	}

	err := c.repo.Save(ctx, snapshot)

	c.errMu.Lock()
	c.lastError = err
	c.errMu.Unlock()

	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	c.version = snapshot.Version
	c.dirty = false
	return nil
}

type patternGroup struct {
	interactions []models.Interaction
	ratings      []float64
}

func (c *ImprovementCycle) consolidate(
	tx *KnowledgeTx,
	window []models.Interaction,
	feedback []models.FeedbackRecord,
	now time.Time,
	report *CycleReport,
) {
	known := make(map[uuid.UUID]models.Interaction, len(window))
	for _, in := range window {
		known[in.ID] = in
	}
	resolve := func(id uuid.UUID) (models.Interaction, bool) {
		if in, ok := known[id]; ok {
			return in, true
		}
		in, ok := c.interactions.Get(id)
		if ok {
			known[id] = in
		}
		return in, ok
	}

	sort.SliceStable(feedback, func(i, j int) bool {
		if !feedback[i].Timestamp.Equal(feedback[j].Timestamp) {
			return feedback[i].Timestamp.Before(feedback[j].Timestamp)
		}
		return feedback[i].Seq < feedback[j].Seq
	})

	groups := make(map[string]*patternGroup)
	group := func(pattern string) *patternGroup {
		g, ok := groups[pattern]
		if !ok {
			g = &patternGroup{}
			groups[pattern] = g
		}
		return g
	}
	seen := make(map[uuid.UUID]bool, len(window))
	for _, in := range window {
		group(in.Pattern).interactions = append(group(in.Pattern).interactions, in)
		seen[in.ID] = true
	}

	touched := make(map[uuid.UUID][]float64)
	for _, f := range feedback {
		in, ok := resolve(f.MessageID)
		if !ok {
			c.logger.Debug("Skipping feedback for compacted interaction", zap.String("message_id", f.MessageID.String()))
			continue
		}
		g := group(in.Pattern)
		if !seen[in.ID] {
			g.interactions = append(g.interactions, in)
			seen[in.ID] = true
		}
		g.ratings = append(g.ratings, f.Normalized())
		if in.KnowledgeEntryID != nil {
			touched[*in.KnowledgeEntryID] = append(touched[*in.KnowledgeEntryID], f.Normalized())
		}
	}

	// Rescore touched entries by replaying this window's feedback from the score they had after the last cycle.
	touchedIDs := make([]uuid.UUID, 0, len(touched))
	for id := range touched {
		touchedIDs = append(touchedIDs, id)
	}
	sort.Slice(touchedIDs, func(i, j int) bool { return touchedIDs[i].String() < touchedIDs[j].String() })

	for _, id := range touchedIDs {
		entry, ok := tx.Get(id)
		if !ok {
			continue
		}
		score := entry.BaselineScore
		for _, r := range touched[id] {
			score = ema(score, r, c.cfg.Alpha)
		}
		entry.Score = score
		entry.BaselineScore = score
		entry.LastUpdated = now
		tx.Save(entry)
		report.EntriesUpdated++
	}

	patterns := make([]string, 0, len(groups))
	for p := range groups {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)

	created := make(map[uuid.UUID]bool)
	for _, pattern := range patterns {
		g := groups[pattern]
		if pattern == "" || len(g.ratings) == 0 || !anyAtLeast(g.ratings, c.cfg.AcceptThreshold) {
			continue
		}
		if _, exists := tx.FindByPattern(pattern); exists {
			continue
		}

		seed := mean(g.ratings)
		entry := models.KnowledgeEntry{
			ID:               uuid.New(),
			Pattern:          pattern,
			ResponseTemplate: mostUsedResponse(g.interactions),
			Score:            seed,
			BaselineScore:    seed,
			UsageCount:       len(g.ratings),
			CreatedAt:        now,
			LastUpdated:      now,
		}
		if err := tx.Create(entry); err != nil {
			if !errors.Is(err, ErrDuplicatePattern) {
				c.logger.Error("Failed to create knowledge entry", zap.String("pattern", pattern), zap.Error(err))
			}
			continue
		}
		created[entry.ID] = true
		report.EntriesCreated++
	}

	for _, entry := range tx.Entries() {
		if created[entry.ID] {
			continue
		}
		if entry.Score < c.cfg.PruneThreshold && entry.UsageCount > c.cfg.MinSamples {
			tx.Delete(entry.ID)
			report.EntriesPruned++
			c.logger.Info("Pruned knowledge entry",
				zap.String("pattern", entry.Pattern),
				zap.Float64("score", entry.Score),
				zap.Int("usage_count", entry.UsageCount),
			)
		}
	}
}

// mostUsedResponse returns the response text that occurs most often; ties go to
// the one seen first.
func mostUsedResponse(interactions []models.Interaction) string {
	counts := make(map[string]int, len(interactions))
	best, bestCount := "", 0
	for _, in := range interactions {
		counts[in.ResponseText]++
	}
	for _, in := range interactions {
		if n := counts[in.ResponseText]; n > bestCount {
			best, bestCount = in.ResponseText, n
		}
	}
	return best
}

func anyAtLeast(values []float64, threshold float64) bool {
	for _, v := range values {
		if v >= threshold {
			return true
		}
	}
	return false
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// CycleScheduler runs improvement cycles on a background goroutine. Schedule never
// blocks; requests made while a run is pending collapse into that run.
type CycleScheduler struct {
	cycle   *ImprovementCycle
	pending chan struct{}
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	timeout time.Duration
	logger  *zap.Logger
	// onComplete, when set, is called after every background run.
	onComplete func(CycleReport, error)
}

func NewCycleScheduler(cycle *ImprovementCycle, timeout time.Duration, logger *zap.Logger) *CycleScheduler {
	return &CycleScheduler{
		cycle:   cycle,
		pending: make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		timeout: timeout,
		logger:  logger,
	}
}

func (s *CycleScheduler) Start() {
	go s.loop()
}

func (s *CycleScheduler) Schedule() {
	select {
	case s.pending <- struct{}{}:
	default:
	}
}

// Stop waits for an in-flight run to finish and stops the worker. Safe to call twice.
func (s *CycleScheduler) Stop() {
	s.once.Do(func() {
		close(s.stop)
		<-s.done
	})
}

func (s *CycleScheduler) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case <-s.pending:
			s.runOnce()
		}
	}
}

func (s *CycleScheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	report, err := s.cycle.Run(ctx)
	if err != nil {
		s.logger.Error("Improvement cycle failed", zap.Error(err))
	} else {
		s.logger.Info("Improvement cycle completed",
			zap.Int("entries_created", report.EntriesCreated),
			zap.Int("entries_updated", report.EntriesUpdated),
			zap.Int("entries_pruned", report.EntriesPruned),
			zap.Int("interactions_scanned", report.InteractionsScanned),
			zap.Int("feedback_scanned", report.FeedbackScanned),
			zap.Duration("duration", time.Since(start)),
		)
	}
	if s.onComplete != nil {
		s.onComplete(report, err)
	}
}
