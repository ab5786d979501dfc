package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"jarvis/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxInputLength = 8000

type RouteResult struct {
	Interaction models.Interaction
	Confidence  float64
	Sources     []string
}

// GenerationRouter picks the generation path for each chat message, always
// degrades to a response, and appends exactly one Interaction per call.
type GenerationRouter struct {
	store        *KnowledgeStore
	interactions *InteractionLog
	tracker      *LearningTracker
	sessions     *SessionTracker
	trigger      CycleTrigger
	chains       map[models.Mode]*GenerationChain
	now          func() time.Time
	logger       *zap.Logger
}

func NewGenerationRouter(
	store *KnowledgeStore,
	interactions *InteractionLog,
	tracker *LearningTracker,
	sessions *SessionTracker,
	trigger CycleTrigger,
	online *ProviderGenerator,
	defaultResponse string,
	logger *zap.Logger,
) *GenerationRouter {
	knowledge := KnowledgeGenerator{}
	fallback := DefaultGenerator{Response: defaultResponse}

	return &GenerationRouter{
		store:        store,
		interactions: interactions,
		tracker:      tracker,
		sessions:     sessions,
		trigger:      trigger,
		chains: map[models.Mode]*GenerationChain{
			models.ModeOffline: NewGenerationChain(logger, knowledge, fallback),
			models.ModeOnline:  NewGenerationChain(logger, online, knowledge, fallback),
			models.ModeAuto:    NewGenerationChain(logger, knowledge, online, fallback),
		},
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// Route answers input for sessionID. Only malformed input is returned as an error.
func (r *GenerationRouter) Route(ctx context.Context, sessionID, input string, mode models.Mode) (*RouteResult, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	input = strings.TrimSpace(sanitizeUTF8(input))
	if input == "" {
		return nil, fmt.Errorf("%w: message is empty", ErrInvalidInput)
	}
	if len(input) > maxInputLength {
		return nil, fmt.Errorf("%w: message longer than %d bytes", ErrInvalidInput, maxInputLength)
	}
	chain, ok := r.chains[mode]
	if !ok {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidInput, mode)
	}

	req := &GenerationRequest{
		SessionID: sessionID,
		Input:     input,
		Pattern:   NormalizePattern(input),
	}
	if entry, found := r.store.Lookup(req.Pattern); found {
		req.Match = &entry
	}

	gen, failures := chain.Generate(ctx, req)
	if gen == nil {
		// The default step never fails; this only happens on a misconfigured chain.
		r.logger.Error("All generation steps failed", zap.Errors("errors", failures))
		gen = &Generation{Mode: models.ModeOffline, Source: "default"}
	}

	providerFailed := false
	for _, err := range failures {
		if errors.Is(err, ErrProviderUnavailable) || errors.Is(err, ErrProviderTimeout) {
			providerFailed = true
		}
	}

	now := r.now()
	interaction := models.Interaction{
		ID:               uuid.New(),
		SessionID:        sessionID,
		InputText:        input,
		Pattern:          req.Pattern,
		ResponseText:     gen.Text,
		RequestedMode:    mode,
		Mode:             gen.Mode,
		Fallback:         providerFailed && gen.Mode == models.ModeOffline,
		KnowledgeEntryID: gen.EntryID,
		Timestamp:        now,
	}
	r.interactions.Append(interaction)

	if r.sessions != nil {
		r.sessions.RecordInteraction(sessionID, now)
	}
	if r.tracker.RecordInteraction() {
		r.trigger.Schedule()
	}

	if interaction.Fallback {
		r.logger.Info("Online generation failed, answered offline",
			zap.String("session_id", sessionID),
			zap.String("message_id", interaction.ID.String()),
			zap.String("source", gen.Source),
		)
	}

	return &RouteResult{
		Interaction: interaction,
		Confidence:  gen.Confidence,
		Sources:     []string{gen.Source},
	}, nil
}
