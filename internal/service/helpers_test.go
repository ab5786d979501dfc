package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"jarvis/internal/models"
	"jarvis/internal/repository"
	"jarvis/pkg/config"

	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig() *config.Config {
	return &config.Config{
		GigaChat: config.GigaChatConfig{
			Timeout: 100 * time.Millisecond,
		},
		Learning: config.LearningConfig{
			Interval:        7,
			Alpha:           0.2,
			AcceptThreshold: 0.6,
			PruneThreshold:  0.15,
			MinSamples:      5,
			DefaultResponse: config.DefaultResponse,
			Retention:       10000,
			SessionLimit:    1000,
		},
	}
}

// memoryRepository keeps the last saved snapshot in memory.
type memoryRepository struct {
	mu       sync.Mutex
	snapshot *models.Snapshot
	saves    int
	failWith error
}

func (r *memoryRepository) Load(context.Context) (*models.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snapshot == nil {
		return nil, repository.ErrSnapshotNotFound
	}
	s := *r.snapshot
	s.Entries = append([]models.KnowledgeEntry(nil), r.snapshot.Entries...)
	return &s, nil
}

func (r *memoryRepository) Save(_ context.Context, snapshot *models.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	s := *snapshot
	s.Entries = append([]models.KnowledgeEntry(nil), snapshot.Entries...)
	r.snapshot = &s
	r.saves++
	return nil
}

func (r *memoryRepository) Close() error { return nil }

func (r *memoryRepository) setFailure(err error) {
	r.mu.Lock()
	r.failWith = err
	r.mu.Unlock()
}

func (r *memoryRepository) saveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

type countingTrigger struct {
	calls atomic.Int32
}

func (t *countingTrigger) Schedule() { t.calls.Add(1) }

// stubProvider answers with text after delay, honouring ctx.
type stubProvider struct {
	text  string
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Generate(ctx context.Context, _ string) (string, error) {
	p.calls.Add(1)
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return p.text, p.err
}

func (p *stubProvider) HealthCheck(context.Context) error { return p.err }

func (p *stubProvider) Close() error { return nil }

// learningFixture wires the core components without the background worker so
// cycles can be run step by step.
type learningFixture struct {
	store    *KnowledgeStore
	log      *InteractionLog
	tracker  *LearningTracker
	sessions *SessionTracker
	feedback *FeedbackCollector
	router   *GenerationRouter
	cycle    *ImprovementCycle
	repo     *memoryRepository
	trigger  *countingTrigger
}

func newLearningFixture(t *testing.T, provider Provider) *learningFixture {
	t.Helper()

	cfg := testConfig()
	logger := zap.NewNop()
	f := &learningFixture{
		store:    NewKnowledgeStore(logger),
		log:      NewInteractionLog(cfg.Learning.Retention),
		tracker:  NewLearningTracker(models.LearningState{}, cfg.Learning.Interval),
		sessions: NewSessionTracker(cfg.Learning.SessionLimit),
		repo:     &memoryRepository{},
		trigger:  &countingTrigger{},
	}
	f.feedback = NewFeedbackCollector(f.log, f.store, f.tracker, f.sessions, f.trigger,
		cfg.Learning.Alpha, cfg.Learning.Retention, logger)
	f.router = NewGenerationRouter(f.store, f.log, f.tracker, f.sessions, f.trigger,
		NewProviderGenerator(provider, cfg.GigaChat.Timeout), cfg.Learning.DefaultResponse, logger)
	f.cycle = NewImprovementCycle(f.store, f.log, f.feedback, f.tracker, f.repo, cfg.Learning, 0, logger)
	return f
}

func (f *learningFixture) chat(t *testing.T, session, input string) models.Interaction {
	t.Helper()
	res, err := f.router.Route(context.Background(), session, input, models.ModeOffline)
	if err != nil {
		t.Fatalf("route %q: %v", input, err)
	}
	return res.Interaction
}

func (f *learningFixture) rate(t *testing.T, session string, in models.Interaction, rating int) {
	t.Helper()
	if _, err := f.feedback.Submit(context.Background(), session, in.ID.String(), rating, ""); err != nil {
		t.Fatalf("feedback %d: %v", rating, err)
	}
}
