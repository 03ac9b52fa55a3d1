package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnthropicClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("x-api-key = %q, want test-key", got)
		}
		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.System != "be terse" {
			t.Errorf("system = %q, want %q", req.System, "be terse")
		}
		json.NewEncoder(w).Encode(anthropicResponse{
			Content: []anthropicContent{{Type: "text", Text: "hi there"}},
			Model:   req.Model,
			Usage:   anthropicUsage{InputTokens: 10, OutputTokens: 3},
		})
	}))
	defer srv.Close()

	origURL := anthropicAPIURL
	anthropicAPIURL = srv.URL
	defer func() { anthropicAPIURL = origURL }()

	c := NewAnthropicClient("test-key", nil)
	c.httpClient = srv.Client()

	resp, err := c.Complete(context.Background(), Request{
		Model: "claude-3-5-haiku-latest", SystemPrompt: "be terse", Input: "hello",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "hi there" {
		t.Errorf("Text = %q, want %q", resp.Text, "hi there")
	}
	if resp.InputTokens != 10 || resp.OutputTokens != 3 {
		t.Errorf("tokens = %d/%d, want 10/3", resp.InputTokens, resp.OutputTokens)
	}
}

func TestAnthropicClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid key"}`))
	}))
	defer srv.Close()

	origURL := anthropicAPIURL
	anthropicAPIURL = srv.URL
	defer func() { anthropicAPIURL = origURL }()

	c := NewAnthropicClient("bad-key", nil)
	c.httpClient = srv.Client()

	_, err := c.Complete(context.Background(), Request{Model: "m", Input: "hi"})
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
}
