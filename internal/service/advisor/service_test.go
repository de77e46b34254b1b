package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"bankadvisor/internal/models"
)

type staticInventory struct {
	banks []models.Bank
	err   error
}

func (s staticInventory) ListBanks(ctx context.Context) ([]models.Bank, error) {
	return s.banks, s.err
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testBank() models.Bank {
	return models.Bank{
		ID:           1,
		Name:         "First National",
		Rating:       4.5,
		Features:     []string{"mobile app"},
		Locations:    []string{"Springfield"},
		AccountTypes: []string{"savings", "personal"},
		Rates:        models.InterestRates{Savings: 4.1, Personal: 9.8},
	}
}

func TestStreamRequiresAPIKey(t *testing.T) {
	svc := NewService(Config{}, staticInventory{}, testLogger())
	_, err := svc.Stream(context.Background(), nil)
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestStreamAssemblesUpstreamRequest(t *testing.T) {
	var captured struct {
		Model    string                   `json:"model"`
		Messages []models.TranscriptEntry `json:"messages"`
		Stream   bool                     `json:"stream"`
	}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected authorization %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode upstream request: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer upstream.Close()

	svc := NewService(Config{APIKey: "test-key", BaseURL: upstream.URL, Model: "test-model"},
		staticInventory{banks: []models.Bank{testBank()}}, testLogger())

	transcript := []models.TranscriptEntry{
		{Role: models.RoleUser, Content: "hello"},
		{Role: models.RoleAssistant, Content: "Hi, how can I help?"},
		{Role: models.RoleUser, Content: "I need a loan"},
	}
	body, err := svc.Stream(context.Background(), transcript)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer body.Close()
	io.Copy(io.Discard, body)

	if captured.Model != "test-model" || !captured.Stream {
		t.Fatalf("unexpected request envelope model=%q stream=%v", captured.Model, captured.Stream)
	}
	if len(captured.Messages) != len(transcript)+1 {
		t.Fatalf("expected system prompt plus transcript, got %d messages", len(captured.Messages))
	}
	system := captured.Messages[0]
	if system.Role != models.RoleSystem {
		t.Fatalf("first message role %q, want system", system.Role)
	}
	if !strings.Contains(system.Content, "First National") {
		t.Fatalf("system prompt missing bank inventory")
	}
	for i, entry := range transcript {
		if captured.Messages[i+1] != entry {
			t.Fatalf("transcript entry %d altered: %+v", i, captured.Messages[i+1])
		}
	}
}

func TestStreamInventoryFailureDegrades(t *testing.T) {
	var systemContent string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []models.TranscriptEntry `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) > 0 {
			systemContent = req.Messages[0].Content
		}
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer upstream.Close()

	svc := NewService(Config{APIKey: "test-key", BaseURL: upstream.URL},
		staticInventory{err: errors.New("database down")}, testLogger())

	body, err := svc.Stream(context.Background(), nil)
	if err != nil {
		t.Fatalf("inventory failure must not fail the exchange: %v", err)
	}
	defer body.Close()
	io.Copy(io.Discard, body)

	if !strings.Contains(systemContent, "no bank data available") {
		t.Fatalf("degraded prompt missing empty-inventory note: %q", systemContent)
	}
}

func TestStreamMapsUpstreamStatuses(t *testing.T) {
	tests := []struct {
		status  int
		wantErr error
	}{
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusPaymentRequired, ErrBillingRequired},
	}
	for _, tt := range tests {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		svc := NewService(Config{APIKey: "test-key", BaseURL: upstream.URL}, staticInventory{}, testLogger())
		_, err := svc.Stream(context.Background(), nil)
		if !errors.Is(err, tt.wantErr) {
			t.Fatalf("status %d: expected %v, got %v", tt.status, tt.wantErr, err)
		}
		upstream.Close()
	}
}

func TestStreamWrapsOtherUpstreamFailures(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, "maintenance window")
	}))
	defer upstream.Close()

	svc := NewService(Config{APIKey: "test-key", BaseURL: upstream.URL}, staticInventory{}, testLogger())
	_, err := svc.Stream(context.Background(), nil)

	var upstreamErr *UpstreamError
	if !errors.As(err, &upstreamErr) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upstreamErr.Status != http.StatusServiceUnavailable || !strings.Contains(upstreamErr.Body, "maintenance") {
		t.Fatalf("unexpected upstream error %+v", upstreamErr)
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	prompt := BuildSystemPrompt([]models.Bank{testBank()})
	for _, fragment := range []string{"Lumi", "First National", "{{apply|<bank name>|<loan type>}}", "top 3"} {
		if !strings.Contains(prompt, fragment) {
			t.Fatalf("prompt missing %q", fragment)
		}
	}

	empty := BuildSystemPrompt(nil)
	if !strings.Contains(empty, "no bank data available") {
		t.Fatalf("empty-inventory prompt missing fallback text")
	}
}
