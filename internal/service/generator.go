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

// Provider is an external text generation backend used for online mode.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

type GenerationRequest struct {
	SessionID string
	Input     string
	Pattern   string
	// Match is the knowledge entry for Pattern, resolved once per request.
	Match *models.KnowledgeEntry
}

type Generation struct {
	Text       string
	Mode       models.Mode
	EntryID    *uuid.UUID
	Confidence float64
	Source     string
}

// Generator is one way of answering a request. Offline lookup, the online provider
// and the fixed default response all implement it so they can be chained.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req *GenerationRequest) (*Generation, error)
}

// KnowledgeGenerator answers from the learned knowledge entry, if any.
type KnowledgeGenerator struct{}

func (KnowledgeGenerator) Name() string { return "knowledge_base" }

func (g KnowledgeGenerator) Generate(_ context.Context, req *GenerationRequest) (*Generation, error) {
	if req.Match == nil {
		return nil, ErrNoKnowledgeMatch
	}
	id := req.Match.ID
	return &Generation{
		Text:       req.Match.ResponseTemplate,
		Mode:       models.ModeOffline,
		EntryID:    &id,
		Confidence: req.Match.Score,
		Source:     g.Name(),
	}, nil
}

// DefaultGenerator always answers with a fixed response.
type DefaultGenerator struct {
	Response string
}

func (DefaultGenerator) Name() string { return "default" }

func (g DefaultGenerator) Generate(context.Context, *GenerationRequest) (*Generation, error) {
	return &Generation{
		Text:   g.Response,
		Mode:   models.ModeOffline,
		Source: g.Name(),
	}, nil
}

// ProviderGenerator delegates to the online provider with a bounded timeout.
// Every failure is reported as ErrProviderUnavailable or ErrProviderTimeout.
type ProviderGenerator struct {
	provider Provider
	timeout  time.Duration
}

func NewProviderGenerator(provider Provider, timeout time.Duration) *ProviderGenerator {
	return &ProviderGenerator{
		provider: provider,
		timeout:  timeout,
	}
}

func (g *ProviderGenerator) Name() string {
	if g.provider == nil {
		return "online"
	}
	return g.provider.Name()
}

type providerResult struct {
	text string
	err  error
}

func (g *ProviderGenerator) Generate(ctx context.Context, req *GenerationRequest) (*Generation, error) {
	if g.provider == nil {
		return nil, fmt.Errorf("%w: no online provider configured", ErrProviderUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	// The provider runs in its own goroutine so a backend that ignores ctx still
	// cannot hold the request past the timeout.
	done := make(chan providerResult, 1)
	go func() {
		text, err := g.provider.Generate(ctx, buildPrompt(req))
		done <- providerResult{text: text, err: err}
	}()

	var res providerResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res = providerResult{err: ctx.Err()}
	}

	if res.err != nil {
		if errors.Is(res.err, context.DeadlineExceeded) || errors.Is(res.err, ErrProviderTimeout) {
			return nil, fmt.Errorf("%w: %s after %s", ErrProviderTimeout, g.Name(), g.timeout)
		}
		if errors.Is(res.err, ErrProviderUnavailable) {
			return nil, res.err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, g.Name(), res.err)
	}

	text := strings.TrimSpace(sanitizeUTF8(res.text))
	if text == "" {
		return nil, fmt.Errorf("%w: %s returned an empty response", ErrProviderUnavailable, g.Name())
	}
	return &Generation{
		Text:       text,
		Mode:       models.ModeOnline,
		Confidence: onlineConfidence,
		Source:     g.Name(),
	}, nil
}

const onlineConfidence = 0.95

// buildPrompt adds the preferred learned answer, when one exists, as context for the provider.
func buildPrompt(req *GenerationRequest) string {
	if req.Match == nil {
		return req.Input
	}

	var b strings.Builder
	b.WriteString("Previously preferred answer to a similar question (score ")
	b.WriteString(fmt.Sprintf("%.2f", req.Match.Score))
	b.WriteString("):\n")
	b.WriteString(req.Match.ResponseTemplate)
	b.WriteString("\n\nUser message:\n")
	b.WriteString(req.Input)
	return b.String()
}

// GenerationChain tries generators in order until one succeeds.
type GenerationChain struct {
	steps  []Generator
	logger *zap.Logger
}

func NewGenerationChain(logger *zap.Logger, steps ...Generator) *GenerationChain {
	return &GenerationChain{
		steps:  steps,
		logger: logger,
	}
}

// Generate returns the first successful generation and the errors of the steps
// that failed before it.
func (c *GenerationChain) Generate(ctx context.Context, req *GenerationRequest) (*Generation, []error) {
	var failures []error
	for _, step := range c.steps {
		gen, err := step.Generate(ctx, req)
		if err == nil {
			return gen, failures
		}
		failures = append(failures, err)
		if !errors.Is(err, ErrNoKnowledgeMatch) {
			c.logger.Warn("Generation step failed, trying next",
				zap.String("step", step.Name()),
				zap.String("session_id", req.SessionID),
				zap.Error(err),
			)
		}
	}
	return nil, failures
}
