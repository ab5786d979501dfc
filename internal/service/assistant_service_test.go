package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"jarvis/internal/dto"
	"jarvis/internal/models"
	"jarvis/internal/repository"
	"jarvis/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAssistant(t *testing.T, repo repository.SnapshotRepository, provider Provider) *AssistantService {
	t.Helper()
	if repo == nil {
		repo = &memoryRepository{}
	}
	svc := NewAssistantService(context.Background(), testConfig(), repo, provider, zap.NewNop())
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return svc
}

func TestAssistant_DefaultResponseAndFeedbackWithoutEntry(t *testing.T) {
	svc := newTestAssistant(t, nil, nil)
	ctx := context.Background()

	resp, err := svc.Chat(ctx, &dto.ChatRequest{SessionID: "s1", Message: "Hello Jarvis", Mode: "offline"})
	require.NoError(t, err)
	assert.Equal(t, config.DefaultResponse, resp.Response)
	assert.Equal(t, "offline", resp.ModeUsed)
	assert.NotEmpty(t, resp.MessageID)
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, []string{"default"}, resp.Sources)
	assert.Zero(t, resp.Confidence)

	ack, err := svc.Feedback(ctx, &dto.FeedbackRequest{SessionID: "s1", MessageID: resp.MessageID, Rating: 5})
	require.NoError(t, err)
	assert.Equal(t, "recorded", ack.Status)
	assert.Equal(t, resp.MessageID, ack.MessageID)

	stats := svc.Stats()
	assert.Equal(t, int64(1), stats.TotalFeedback)
	assert.Equal(t, int64(1), stats.TotalInteractions)
	assert.Equal(t, 0, stats.KnowledgeEntryCount)
	assert.InDelta(t, 1.0, stats.SuccessRate, 1e-9)
	assert.Equal(t, 1, stats.ActiveSessions)
	assert.Equal(t, 5, stats.StepsUntilImprovement)
	assert.Nil(t, stats.LastImprovementAt)
}

func TestAssistant_FeedbackValidation(t *testing.T) {
	svc := newTestAssistant(t, nil, nil)
	ctx := context.Background()

	resp, err := svc.Chat(ctx, &dto.ChatRequest{SessionID: "s1", Message: "Hello Jarvis"})
	require.NoError(t, err)

	_, err = svc.Feedback(ctx, &dto.FeedbackRequest{SessionID: "s1", MessageID: "nonexistent", Rating: 3})
	assert.ErrorIs(t, err, ErrUnknownMessage)

	_, err = svc.Feedback(ctx, &dto.FeedbackRequest{SessionID: "s1", MessageID: "8a3e1f5e-2b7c-4f1e-9a55-0d9c4c1b2a77", Rating: 3})
	assert.ErrorIs(t, err, ErrUnknownMessage)

	for _, rating := range []int{0, 6, 7, -1} {
		_, err = svc.Feedback(ctx, &dto.FeedbackRequest{SessionID: "s1", MessageID: resp.MessageID, Rating: rating})
		assert.ErrorIs(t, err, ErrInvalidRating, "rating %d", rating)
	}

	_, err = svc.Feedback(ctx, &dto.FeedbackRequest{SessionID: "bad id", MessageID: resp.MessageID, Rating: 3})
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Equal(t, int64(0), svc.Stats().TotalFeedback)
}

func TestAssistant_ChatValidation(t *testing.T) {
	svc := newTestAssistant(t, nil, nil)
	ctx := context.Background()

	_, err := svc.Chat(ctx, &dto.ChatRequest{SessionID: "s1", Message: "   "})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Chat(ctx, &dto.ChatRequest{SessionID: "s 1", Message: "hi"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Chat(ctx, &dto.ChatRequest{SessionID: "s1", Message: "hi", Mode: "telepathic"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Equal(t, int64(0), svc.Stats().TotalInteractions)
	assert.Equal(t, 0, svc.interactions.Len())

	resp, err := svc.Chat(ctx, &dto.ChatRequest{Message: "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.SessionID)

	session, err := svc.Session(resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), session.Interactions)

	_, err = svc.Session("unknown")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAssistant_TriggersOneCycleAfterInterval(t *testing.T) {
	svc := newTestAssistant(t, nil, nil)
	ctx := context.Background()

	var first *dto.ChatResponse
	for i := 0; i < 6; i++ {
		resp, err := svc.Chat(ctx, &dto.ChatRequest{SessionID: "s1", Message: "what can you do"})
		require.NoError(t, err)
		if first == nil {
			first = resp
		}
	}
	assert.Equal(t, 6, svc.Stats().InteractionCounter)
	assert.Equal(t, int64(0), svc.Stats().ImprovementCycles)

	// The seventh event, here a feedback, triggers the cycle.
	_, err := svc.Feedback(ctx, &dto.FeedbackRequest{SessionID: "s1", MessageID: first.MessageID, Rating: 5})
	require.NoError(t, err)
	assert.Equal(t, 0, svc.Stats().InteractionCounter)

	require.Eventually(t, func() bool {
		return svc.Stats().ImprovementCycles == 1
	}, 2*time.Second, 10*time.Millisecond)

	stats := svc.Stats()
	assert.Equal(t, 1, stats.KnowledgeEntryCount)
	assert.NotNil(t, stats.LastImprovementAt)
	assert.Equal(t, 7, stats.StepsUntilImprovement)

	// Nothing else was scheduled.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(1), svc.Stats().ImprovementCycles)
}

func TestAssistant_OnlineTimeoutFallsBackOffline(t *testing.T) {
	provider := &stubProvider{text: "too late", delay: time.Second}
	svc := newTestAssistant(t, nil, provider)

	resp, err := svc.Chat(context.Background(), &dto.ChatRequest{SessionID: "s1", Message: "Hello Jarvis", Mode: "online"})
	require.NoError(t, err)
	assert.Equal(t, "offline", resp.ModeUsed)
	assert.Equal(t, config.DefaultResponse, resp.Response)

	require.Equal(t, 1, svc.interactions.Len())
	logged, _ := svc.interactions.Since(0)
	assert.True(t, logged[0].Fallback)
	assert.Equal(t, models.ModeOnline, logged[0].RequestedMode)
	assert.Equal(t, models.ModeOffline, logged[0].Mode)
}

func TestAssistant_OnlineProviderFailureUsesKnowledge(t *testing.T) {
	provider := &stubProvider{err: errors.New("connection refused")}
	repo := &memoryRepository{snapshot: &models.Snapshot{
		Version: 3,
		Entries: []models.KnowledgeEntry{newEntry("hi", "Hello there!", 0.8, 1)},
	}}
	svc := newTestAssistant(t, repo, provider)

	resp, err := svc.Chat(context.Background(), &dto.ChatRequest{SessionID: "s1", Message: "Hi!", Mode: "online"})
	require.NoError(t, err)
	assert.Equal(t, "offline", resp.ModeUsed)
	assert.Equal(t, "Hello there!", resp.Response)
	assert.Equal(t, []string{"knowledge_base"}, resp.Sources)

	health := svc.Health(context.Background())
	assert.Equal(t, "degraded", health.Status)
	assert.True(t, health.OnlineProviderConfigured)
	assert.False(t, health.OnlineProviderReachable)
}

func TestAssistant_OnlineAndAutoModes(t *testing.T) {
	provider := &stubProvider{text: "  Online answer.  "}
	repo := &memoryRepository{snapshot: &models.Snapshot{
		Entries: []models.KnowledgeEntry{newEntry("hi", "Hello there!", 0.8, 1)},
	}}
	svc := newTestAssistant(t, repo, provider)
	ctx := context.Background()

	resp, err := svc.Chat(ctx, &dto.ChatRequest{SessionID: "s1", Message: "hi", Mode: "online"})
	require.NoError(t, err)
	assert.Equal(t, "online", resp.ModeUsed)
	assert.Equal(t, "Online answer.", resp.Response)
	assert.Equal(t, []string{"stub"}, resp.Sources)
	assert.InDelta(t, 0.95, resp.Confidence, 1e-9)
	assert.Equal(t, int32(1), provider.calls.Load())

	resp, err = svc.Chat(ctx, &dto.ChatRequest{SessionID: "s1", Message: "hi", Mode: "auto"})
	require.NoError(t, err)
	assert.Equal(t, "offline", resp.ModeUsed)
	assert.Equal(t, "Hello there!", resp.Response)
	assert.Equal(t, int32(1), provider.calls.Load())

	resp, err = svc.Chat(ctx, &dto.ChatRequest{SessionID: "s1", Message: "something new", Mode: "AUTO"})
	require.NoError(t, err)
	assert.Equal(t, "online", resp.ModeUsed)
	assert.Equal(t, int32(2), provider.calls.Load())

	health := svc.Health(ctx)
	assert.Equal(t, "healthy", health.Status)
	assert.True(t, health.OnlineProviderReachable)
}

func TestAssistant_HealthWithoutProvider(t *testing.T) {
	svc := newTestAssistant(t, nil, nil)

	health := svc.Health(context.Background())
	assert.Equal(t, "healthy", health.Status)
	assert.False(t, health.OnlineProviderConfigured)
	assert.False(t, health.OnlineProviderReachable)
}

func TestAssistant_PersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knowledge_base.json")
	ctx := context.Background()

	repo := repository.NewFileSnapshotRepository(path, zap.NewNop())
	svc := NewAssistantService(ctx, testConfig(), repo, nil, zap.NewNop())

	for _, msg := range []string{"what can you do", "hello", "what can you do?"} {
		resp, err := svc.Chat(ctx, &dto.ChatRequest{SessionID: "s1", Message: msg})
		require.NoError(t, err)
		_, err = svc.Feedback(ctx, &dto.FeedbackRequest{SessionID: "s1", MessageID: resp.MessageID, Rating: 4})
		require.NoError(t, err)
	}

	report, err := svc.Improve(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.EntriesCreated)

	knowledge := svc.Knowledge()
	stats := svc.Stats()
	require.NoError(t, svc.Close(ctx))
	require.NoError(t, svc.Close(ctx))

	reloaded := NewAssistantService(ctx, testConfig(), repository.NewFileSnapshotRepository(path, zap.NewNop()), nil, zap.NewNop())
	defer reloaded.Close(ctx)

	assert.Equal(t, knowledge, reloaded.Knowledge())
	reloadedStats := reloaded.Stats()
	assert.Equal(t, stats.SuccessRate, reloadedStats.SuccessRate)
	assert.Equal(t, stats.TotalFeedback, reloadedStats.TotalFeedback)
	assert.Equal(t, stats.TotalInteractions, reloadedStats.TotalInteractions)
	assert.Equal(t, stats.ImprovementCycles, reloadedStats.ImprovementCycles)
	assert.Equal(t, stats.LastImprovementAt, reloadedStats.LastImprovementAt)
}

func TestAssistant_CloseConsolidatesPendingFeedback(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Learning.Interval = 100

	repo := &memoryRepository{snapshot: &models.Snapshot{
		Entries: []models.KnowledgeEntry{newEntry("hi", "Hello there!", 1.0, 1)},
	}}
	svc := NewAssistantService(ctx, cfg, repo, nil, zap.NewNop())

	for i := 0; i < 3; i++ {
		resp, err := svc.Chat(ctx, &dto.ChatRequest{SessionID: "s1", Message: "hi"})
		require.NoError(t, err)
		_, err = svc.Feedback(ctx, &dto.FeedbackRequest{SessionID: "s1", MessageID: resp.MessageID, Rating: 1})
		require.NoError(t, err)
	}
	assert.InDelta(t, 0.512, svc.Knowledge().Entries[0].Score, 1e-9)
	assert.Equal(t, int64(0), svc.Stats().ImprovementCycles)

	require.NoError(t, svc.Close(ctx))

	restarted := NewAssistantService(ctx, cfg, repo, nil, zap.NewNop())
	defer restarted.Close(ctx)

	entries := restarted.store.List()
	require.Len(t, entries, 1)
	assert.InDelta(t, 0.512, entries[0].Score, 1e-9)
	assert.InDelta(t, 0.512, entries[0].BaselineScore, 1e-9)

	resp, err := restarted.Chat(ctx, &dto.ChatRequest{SessionID: "s1", Message: "hi"})
	require.NoError(t, err)
	_, err = restarted.Feedback(ctx, &dto.FeedbackRequest{SessionID: "s1", MessageID: resp.MessageID, Rating: 1})
	require.NoError(t, err)

	_, err = restarted.Improve(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.4096, restarted.Knowledge().Entries[0].Score, 1e-9)
}

func TestAssistant_ConcurrentChatAndFeedback(t *testing.T) {
	svc := newTestAssistant(t, nil, nil)
	ctx := context.Background()

	const (
		workers  = 16
		requests = 50
	)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			session := fmt.Sprintf("session-%d", w)
			for i := 0; i < requests; i++ {
				resp, err := svc.Chat(ctx, &dto.ChatRequest{SessionID: session, Message: fmt.Sprintf("question %d", i%5)})
				if !assert.NoError(t, err) {
					return
				}
				_, err = svc.Feedback(ctx, &dto.FeedbackRequest{SessionID: session, MessageID: resp.MessageID, Rating: (i+w)%5 + 1})
				if !assert.NoError(t, err) {
					return
				}
			}
		}(w)
	}
	wg.Wait()

	stats := svc.Stats()
	assert.Equal(t, int64(workers*requests), stats.TotalInteractions)
	assert.Equal(t, int64(workers*requests), stats.TotalFeedback)
	assert.Equal(t, workers, stats.ActiveSessions)

	// Fold whatever the background cycles left over.
	_, err := svc.Improve(ctx)
	require.NoError(t, err)

	for _, e := range svc.store.List() {
		assert.GreaterOrEqual(t, e.Score, 0.0, e.Pattern)
		assert.LessOrEqual(t, e.Score, 1.0, e.Pattern)
		assert.InDelta(t, e.BaselineScore, e.Score, 1e-9, e.Pattern)
	}
}

func TestAssistant_ColdStartOnCorruptSnapshot(t *testing.T) {
	svc := newTestAssistant(t, &failingLoadRepository{memoryRepository: &memoryRepository{}}, nil)

	assert.Equal(t, 0, svc.Stats().KnowledgeEntryCount)

	resp, err := svc.Chat(context.Background(), &dto.ChatRequest{SessionID: "s1", Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, config.DefaultResponse, resp.Response)
}

type failingLoadRepository struct {
	*memoryRepository
}

func (r *failingLoadRepository) Load(context.Context) (*models.Snapshot, error) {
	return nil, errors.New("unexpected end of JSON input")
}
