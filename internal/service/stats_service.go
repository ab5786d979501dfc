package service

import (
	"context"
	"time"

	"jarvis/internal/dto"

	"go.uber.org/zap"
)

const (
	healthStatusHealthy  = "healthy"
	healthStatusDegraded = "degraded"
)

type persistenceStatus interface {
	LastError() error
}

// StatsService is the read-only view over learning state, knowledge store and
// sessions. It never mutates anything.
type StatsService struct {
	store        *KnowledgeStore
	tracker      *LearningTracker
	sessions     *SessionTracker
	provider     Provider
	persistence  persistenceStatus
	probeTimeout time.Duration
	logger       *zap.Logger
}

func NewStatsService(
	store *KnowledgeStore,
	tracker *LearningTracker,
	sessions *SessionTracker,
	provider Provider,
	persistence persistenceStatus,
	probeTimeout time.Duration,
	logger *zap.Logger,
) *StatsService {
	return &StatsService{
		store:        store,
		tracker:      tracker,
		sessions:     sessions,
		provider:     provider,
		persistence:  persistence,
		probeTimeout: probeTimeout,
		logger:       logger,
	}
}

func (s *StatsService) Stats() *dto.StatsResponse {
	state := s.tracker.Snapshot()

	resp := &dto.StatsResponse{
		TotalInteractions:     state.TotalInteractions,
		TotalFeedback:         state.TotalFeedback,
		SuccessRate:           state.SuccessRate,
		KnowledgeEntryCount:   s.store.Len(),
		PositiveFeedback:      state.PositiveFeedback,
		NegativeFeedback:      state.NegativeFeedback,
		ImprovementCycles:     state.ImprovementCycles,
		InteractionCounter:    state.InteractionCounter,
		StepsUntilImprovement: s.tracker.Interval() - state.InteractionCounter,
		ActiveSessions:        s.sessions.Count(),
	}
	if state.LastImprovementAt != nil {
		at := state.LastImprovementAt.Format(time.RFC3339)
		resp.LastImprovementAt = &at
	}
	return resp
}

// Health probes the online provider, if one is configured. The service is degraded
// when a configured provider is unreachable or the last snapshot write failed.
func (s *StatsService) Health(ctx context.Context) *dto.HealthResponse {
	resp := &dto.HealthResponse{
		Status:    healthStatusHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if s.provider != nil {
		resp.OnlineProviderConfigured = true

		probeCtx, cancel := context.WithTimeout(ctx, s.probeTimeout)
		err := s.provider.HealthCheck(probeCtx)
		cancel()

		if err != nil {
			s.logger.Warn("Online provider health check failed",
				zap.String("provider", s.provider.Name()),
				zap.Error(err),
			)
			resp.Status = healthStatusDegraded
		} else {
			resp.OnlineProviderReachable = true
		}
	}

	if s.persistence != nil {
		if err := s.persistence.LastError(); err != nil {
			resp.Status = healthStatusDegraded
			resp.PersistenceError = err.Error()
		}
	}
	return resp
}

func (s *StatsService) Session(sessionID string) (*dto.SessionResponse, error) {
	stats, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &dto.SessionResponse{
		SessionID:    stats.SessionID,
		Interactions: stats.Interactions,
		Feedback:     stats.Feedback,
		FirstSeen:    stats.FirstSeen.Format(time.RFC3339),
		LastSeen:     stats.LastSeen.Format(time.RFC3339),
	}, nil
}
