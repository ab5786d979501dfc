package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"jarvis/internal/dto"
	"jarvis/internal/models"
	"jarvis/internal/repository"
	"jarvis/pkg/config"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	cycleTimeout       = time.Minute
	healthProbeTimeout = 5 * time.Second
)

// AssistantService owns the learning core: knowledge store, interaction log,
// feedback collector, generation router and the background improvement cycle.
type AssistantService struct {
	store        *KnowledgeStore
	interactions *InteractionLog
	feedback     *FeedbackCollector
	tracker      *LearningTracker
	sessions     *SessionTracker
	router       *GenerationRouter
	cycle        *ImprovementCycle
	scheduler    *CycleScheduler
	stats        *StatsService
	logger       *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewAssistantService restores the last snapshot from repo and starts the improvement
// worker. A missing or unreadable snapshot starts with an empty knowledge store.
// provider may be nil, in which case online requests fall back to offline.
func NewAssistantService(
	ctx context.Context,
	cfg *config.Config,
	repo repository.SnapshotRepository,
	provider Provider,
	logger *zap.Logger,
) *AssistantService {
	learning := cfg.Learning

	snapshot := loadSnapshot(ctx, repo, logger)

	s := &AssistantService{
		store:        NewKnowledgeStore(logger),
		interactions: NewInteractionLog(learning.Retention),
		tracker:      NewLearningTracker(snapshot.LearningState, learning.Interval),
		sessions:     NewSessionTracker(learning.SessionLimit),
		logger:       logger,
	}
	s.store.Replace(snapshot.Entries)

	s.feedback = NewFeedbackCollector(
		s.interactions, s.store, s.tracker, s.sessions, s,
		learning.Alpha, learning.Retention, logger.With(zap.String("component", "feedback")),
	)
	s.router = NewGenerationRouter(
		s.store, s.interactions, s.tracker, s.sessions, s,
		NewProviderGenerator(provider, cfg.GigaChat.Timeout), learning.DefaultResponse,
		logger.With(zap.String("component", "router")),
	)
	s.cycle = NewImprovementCycle(
		s.store, s.interactions, s.feedback, s.tracker, repo, learning, snapshot.Version,
		logger.With(zap.String("component", "improvement")),
	)
	s.scheduler = NewCycleScheduler(s.cycle, cycleTimeout, logger.With(zap.String("component", "improvement")))
	s.stats = NewStatsService(s.store, s.tracker, s.sessions, provider, s.cycle, healthProbeTimeout, logger)

	s.scheduler.Start()

	logger.Info("Assistant initialized",
		zap.Int("knowledge_entries", s.store.Len()),
		zap.Int64("snapshot_version", snapshot.Version),
		zap.Bool("online_provider", provider != nil),
	)
	return s
}

func loadSnapshot(ctx context.Context, repo repository.SnapshotRepository, logger *zap.Logger) *models.Snapshot {
	snapshot, err := repo.Load(ctx)
	switch {
	case errors.Is(err, repository.ErrSnapshotNotFound):
		logger.Info("No snapshot found, starting with an empty knowledge store")
		return &models.Snapshot{}
	case err != nil:
		logger.Warn("Failed to load snapshot, starting with an empty knowledge store", zap.Error(err))
		return &models.Snapshot{}
	}
	return snapshot
}

// Schedule requests a background improvement cycle.
func (s *AssistantService) Schedule() {
	s.scheduler.Schedule()
}

// Chat answers one message. A missing session id is replaced by a fresh one.
func (s *AssistantService) Chat(ctx context.Context, req *dto.ChatRequest) (*dto.ChatResponse, error) {
	mode, ok := models.ParseMode(strings.ToLower(strings.TrimSpace(req.Mode)))
	if !ok {
		return nil, fmt.Errorf("%w: mode must be offline, online or auto", ErrInvalidInput)
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	res, err := s.router.Route(ctx, sessionID, req.Message, mode)
	if err != nil {
		return nil, err
	}

	in := res.Interaction
	return &dto.ChatResponse{
		Response:   in.ResponseText,
		ModeUsed:   string(in.Mode),
		MessageID:  in.ID.String(),
		SessionID:  in.SessionID,
		Confidence: res.Confidence,
		Sources:    res.Sources,
		Timestamp:  in.Timestamp.Format(time.RFC3339),
	}, nil
}

func (s *AssistantService) Feedback(ctx context.Context, req *dto.FeedbackRequest) (*dto.FeedbackResponse, error) {
	record, err := s.feedback.Submit(ctx, strings.TrimSpace(req.SessionID), strings.TrimSpace(req.MessageID), req.Rating, req.Feedback)
	if err != nil {
		return nil, err
	}
	return &dto.FeedbackResponse{
		Status:     "recorded",
		FeedbackID: record.ID.String(),
		MessageID:  record.MessageID.String(),
		Timestamp:  record.Timestamp.Format(time.RFC3339),
	}, nil
}

func (s *AssistantService) Stats() *dto.StatsResponse {
	return s.stats.Stats()
}

func (s *AssistantService) Health(ctx context.Context) *dto.HealthResponse {
	return s.stats.Health(ctx)
}

func (s *AssistantService) Session(sessionID string) (*dto.SessionResponse, error) {
	return s.stats.Session(sessionID)
}

// Improve runs an improvement cycle synchronously.
func (s *AssistantService) Improve(ctx context.Context) (*dto.CycleReportResponse, error) {
	report, err := s.cycle.Run(ctx)
	if err != nil {
		return nil, err
	}
	return &dto.CycleReportResponse{
		EntriesUpdated:      report.EntriesUpdated,
		EntriesPruned:       report.EntriesPruned,
		EntriesCreated:      report.EntriesCreated,
		InteractionsScanned: report.InteractionsScanned,
		FeedbackScanned:     report.FeedbackScanned,
		CompletedAt:         time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (s *AssistantService) Knowledge() *dto.KnowledgeListResponse {
	entries := s.store.List()
	resp := &dto.KnowledgeListResponse{
		Entries: make([]dto.KnowledgeEntryResponse, 0, len(entries)),
		Count:   len(entries),
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, dto.KnowledgeEntryResponse{
			ID:               e.ID.String(),
			Pattern:          e.Pattern,
			ResponseTemplate: e.ResponseTemplate,
			Score:            e.Score,
			UsageCount:       e.UsageCount,
			CreatedAt:        e.CreatedAt.Format(time.RFC3339),
			LastUpdated:      e.LastUpdated.Format(time.RFC3339),
		})
	}
	return resp
}

// Close stops the improvement worker, consolidates feedback received since the
// last cycle and writes the final snapshot. The repository and provider stay
// open; their owner closes them.
func (s *AssistantService) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.scheduler.Stop()
		report, err := s.cycle.Flush(ctx)
		if err != nil {
			s.logger.Error("Failed to flush snapshot on shutdown", zap.Error(err))
			s.closeErr = err
			return
		}
		s.logger.Info("Learning state flushed",
			zap.Int("feedback_consolidated", report.FeedbackScanned),
			zap.Int("entries_updated", report.EntriesUpdated),
		)
	})
	return s.closeErr
}
