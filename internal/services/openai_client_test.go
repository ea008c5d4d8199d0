package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/grodonkey/crowdcoach-backend/internal/apierr"
)

func newTestOpenAIClient(t *testing.T, baseURL string, maxRetries int) *openAIClient {
	t.Helper()
	return &openAIClient{
		log:        testLogger(t).With("service", "OpenAIClient"),
		baseURL:    baseURL,
		apiKey:     "test-key",
		model:      "test-model",
		httpClient: &http.Client{Timeout: 5 * time.Second},
		maxRetries: maxRetries,
	}
}

func completionsBody(content string, tokens int) string {
	return `{"choices":[{"message":{"content":"` + content + `"}}],"usage":{"total_tokens":` + jsonInt(tokens) + `}}`
}

func jsonInt(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestCompleteSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req chatCompletionsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "test-model" || len(req.Messages) != 2 || req.MaxTokens != 100 {
			t.Errorf("unexpected request payload: %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionsBody("hello there", 17)))
	}))
	defer server.Close()

	client := newTestOpenAIClient(t, server.URL, 0)
	content, tokens, err := client.Complete(context.Background(), []ChatMessage{
		{Role: "system", Content: "coach"},
		{Role: "user", Content: "hi"},
	}, 0.7, 100)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if content != "hello there" {
		t.Fatalf("unexpected content %q", content)
	}
	if tokens != 17 {
		t.Fatalf("unexpected token count %d", tokens)
	}
}

func TestCompleteAuthFailureIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestOpenAIClient(t, server.URL, 3)
	_, _, err := client.Complete(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, 0.7, 100)
	if !apierr.IsCode(err, "ai_auth_failed") {
		t.Fatalf("expected ai_auth_failed, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("auth failures must not be retried, got %d calls", got)
	}
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "upstream sad", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionsBody("recovered", 5)))
	}))
	defer server.Close()

	client := newTestOpenAIClient(t, server.URL, 2)
	content, _, err := client.Complete(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, 0.7, 100)
	if err != nil {
		t.Fatalf("Complete failed after retry: %v", err)
	}
	if content != "recovered" {
		t.Fatalf("unexpected content %q", content)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected exactly one retry, got %d calls", got)
	}
}

func TestCompleteExhaustedRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "1")
		http.Error(w, "upstream sad", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestOpenAIClient(t, server.URL, 1)
	_, _, err := client.Complete(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, 0.7, 100)
	if !apierr.IsCode(err, "ai_unavailable") {
		t.Fatalf("expected ai_unavailable, got %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected initial call + 1 retry, got %d", got)
	}
}

func TestCompleteNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[],"usage":{"total_tokens":0}}`))
	}))
	defer server.Close()

	client := newTestOpenAIClient(t, server.URL, 0)
	_, _, err := client.Complete(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, 0.7, 100)
	if !apierr.IsCode(err, "ai_unavailable") {
		t.Fatalf("expected ai_unavailable, got %v", err)
	}
}

func TestCompleteRequiresMessages(t *testing.T) {
	client := newTestOpenAIClient(t, "http://localhost:0", 0)
	if _, _, err := client.Complete(context.Background(), nil, 0.7, 100); err == nil {
		t.Fatal("expected an error for an empty history")
	}
}
