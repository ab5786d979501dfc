package service

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"jarvis/pkg/config"

	"github.com/Role1776/gigago"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	gigaChatOAuthURL = "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"
	gigaChatBaseURL  = "https://gigachat.devices.sberbank.ru/api/v1"
)

// GigaChatProvider is the online generation provider backed by the GigaChat API.
type GigaChatProvider struct {
	client     *gigago.Client
	model      *gigago.GenerativeModel
	config     *config.GigaChatConfig
	logger     *zap.Logger
	httpClient *http.Client
	baseURL    string
	oauthURL   string

	tokenMu     sync.Mutex
	accessToken string
	tokenExpiry time.Time

	probes singleflight.Group
}

func buildSystemInstruction() string {
	return `You are Jarvis, a concise personal assistant.

Answer the user's message directly and helpfully. Prefer short, concrete answers.
If a previously preferred answer is supplied as context, keep its substance and tone
unless the user's message asks for something different. Never invent facts about the
user. If you do not know, say so plainly.`
}

func NewGigaChatProvider(ctx context.Context, cfg *config.GigaChatConfig, logger *zap.Logger) (*GigaChatProvider, error) {
	opts := []gigago.Option{
		gigago.WithCustomScope(cfg.Scope),
	}

	if cfg.InsecureSkipVerify {
		opts = append(opts, gigago.WithCustomInsecureSkipVerify(true))
		logger.Warn("GigaChat TLS certificate verification is disabled")
	}

	client, err := gigago.NewClient(ctx, cfg.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create GigaChat client: %v", ErrProviderUnavailable, err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.SystemInstruction = buildSystemInstruction()
	model.Temperature = 0.3

	httpClient := &http.Client{Timeout: cfg.Timeout}
	if cfg.InsecureSkipVerify {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	logger.Info("GigaChat provider initialized", zap.String("model", cfg.Model))

	return &GigaChatProvider{
		client:     client,
		model:      model,
		config:     cfg,
		logger:     logger,
		httpClient: httpClient,
		baseURL:    gigaChatBaseURL,
		oauthURL:   gigaChatOAuthURL,
	}, nil
}

func (p *GigaChatProvider) Name() string {
	return "gigachat"
}

func (p *GigaChatProvider) Generate(ctx context.Context, prompt string) (string, error) {
	messages := []gigago.Message{
		{Role: gigago.RoleUser, Content: prompt},
	}

	resp, err := p.model.Generate(ctx, messages)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", ErrProviderTimeout, ctx.Err())
		}
		return "", fmt.Errorf("%w: failed to generate response: %v", ErrProviderUnavailable, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", ErrProviderUnavailable)
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// HealthCheck lists the available models. Concurrent callers share one probe.
func (p *GigaChatProvider) HealthCheck(ctx context.Context) error {
	_, err, _ := p.probes.Do("models", func() (interface{}, error) {
		return nil, p.listModels(ctx)
	})
	return err
}

func (p *GigaChatProvider) listModels(ctx context.Context) error {
	token, err := p.token(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: failed to get models: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		p.invalidateToken()
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: models request failed with status %d: %s", ErrProviderUnavailable, resp.StatusCode, string(bodyBytes))
	}
	return nil
}

// token returns a cached OAuth access token, refreshing it a minute before expiry.
func (p *GigaChatProvider) token(ctx context.Context) (string, error) {
	p.tokenMu.Lock()
	defer p.tokenMu.Unlock()

	if p.accessToken != "" && time.Now().Before(p.tokenExpiry.Add(-time.Minute)) {
		return p.accessToken, nil
	}

	token, expiresAt, err := p.fetchAccessToken(ctx)
	if err != nil {
		return "", err
	}
	p.accessToken = token
	p.tokenExpiry = expiresAt
	return token, nil
}

func (p *GigaChatProvider) invalidateToken() {
	p.tokenMu.Lock()
	p.accessToken = ""
	p.tokenMu.Unlock()
}

// fetchAccessToken obtains an access token from the GigaChat OAuth endpoint.
// The API key is expected to be Base64-encoded already.
func (p *GigaChatProvider) fetchAccessToken(ctx context.Context) (string, time.Time, error) {
	rqUID := uuid.New().String()

	formData := url.Values{}
	formData.Set("scope", p.config.Scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.oauthURL, strings.NewReader(formData.Encode()))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to create OAuth request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("RqUID", rqUID)
	req.Header.Set("Authorization", "Basic "+p.config.APIKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: failed to get access token: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		p.logger.Error("OAuth request failed",
			zap.Int("status", resp.StatusCode),
			zap.String("response", string(bodyBytes)),
			zap.String("rq_uid", rqUID),
		)
		return "", time.Time{}, fmt.Errorf("%w: OAuth failed with status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var oauthResp struct {
		AccessToken string `json:"access_token"`
		ExpiresAt   int64  `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&oauthResp); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to decode OAuth response: %w", err)
	}
	if oauthResp.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("%w: empty access token in OAuth response", ErrProviderUnavailable)
	}

	// expires_at is in milliseconds since the epoch.
	expiresAt := time.UnixMilli(oauthResp.ExpiresAt)
	if oauthResp.ExpiresAt == 0 {
		expiresAt = time.Now().Add(30 * time.Minute)
	}

	p.logger.Debug("Access token obtained", zap.Time("expires_at", expiresAt))
	return oauthResp.AccessToken, expiresAt, nil
}

func (p *GigaChatProvider) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}
