package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"bankadvisor/internal/models"
)

// User-facing error messages. The generic one deliberately leaks nothing about
// the upstream; details go to the log instead.
const (
	RateLimitMessage = "The advisor is handling too many requests right now. Please wait a moment and try again."
	BillingMessage   = "The advisor service is temporarily unavailable. Please try again later."
	GatewayMessage   = "The advisor ran into an unexpected problem. Please try again."
)

var (
	// ErrNotConfigured means the upstream credential is missing. This is an
	// operator problem, not a caller problem.
	ErrNotConfigured = errors.New("upstream api key not configured")
	// ErrRateLimited mirrors an upstream 429.
	ErrRateLimited = errors.New(RateLimitMessage)
	// ErrBillingRequired mirrors an upstream 402.
	ErrBillingRequired = errors.New(BillingMessage)
)

// UpstreamError wraps any other non-2xx upstream response.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream gateway returned %d", e.Status)
}

// InventorySource provides the bank snapshot injected into the system prompt.
type InventorySource interface {
	ListBanks(ctx context.Context) ([]models.Bank, error)
}

// Service is the stateless translation layer between a chat transcript and the
// upstream streaming completion gateway. Each call independently re-fetches
// the bank inventory; there is no caching or session affinity.
type Service struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	inventory  InventorySource
	logger     *logrus.Logger
}

// Config holds the upstream gateway parameters.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// NewService builds the advisor proxy service.
func NewService(cfg Config, inventory InventorySource, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &Service{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		model:   cfg.Model,
		// No request timeout: the response is an open-ended token stream and
		// the runtime's transport defaults apply.
		httpClient: &http.Client{},
		inventory:  inventory,
		logger:     logger,
	}
}

type chatRequest struct {
	Model    string                   `json:"model"`
	Messages []models.TranscriptEntry `json:"messages"`
	Stream   bool                     `json:"stream"`
}

// Stream assembles the system prompt, forwards the transcript upstream with
// streaming enabled, and returns the raw response body for verbatim relay.
// The caller owns the returned reader and must close it.
func (s *Service) Stream(ctx context.Context, transcript []models.TranscriptEntry) (io.ReadCloser, error) {
	if s.apiKey == "" {
		return nil, ErrNotConfigured
	}

	// Inventory failure is degraded mode, not a request failure: the advisor
	// answers with reduced context rather than not at all.
	banks, err := s.inventory.ListBanks(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("bank inventory fetch failed, proceeding with empty inventory")
		banks = nil
	}

	messages := make([]models.TranscriptEntry, 0, len(transcript)+1)
	messages = append(messages, models.TranscriptEntry{
		Role:    models.RoleSystem,
		Content: BuildSystemPrompt(banks),
	})
	messages = append(messages, transcript...)

	payload, err := json.Marshal(chatRequest{
		Model:    s.model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return resp.Body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		resp.Body.Close()
		return nil, ErrRateLimited
	case resp.StatusCode == http.StatusPaymentRequired:
		resp.Body.Close()
		return nil, ErrBillingRequired
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		s.logger.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"body":   string(body),
		}).Error("upstream gateway error")
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(body)}
	}
}
