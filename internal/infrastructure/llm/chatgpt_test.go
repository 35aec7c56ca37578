package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"TrackPublisher/internal/config"
)

func TestDescribeReturnsFirstChoice(t *testing.T) {
	t.Parallel()

	var gotAuth string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  Dreamy and slow.  "}}]}`))
	}))
	defer server.Close()

	client := NewChatGPTClient(config.ChatGPTConfig{Endpoint: server.URL, Model: "m", APIKey: "k"})
	text, err := client.Describe(context.Background(), "Song", "Artist", false)
	if err != nil {
		t.Fatalf("Describe error: %v", err)
	}
	if text != "Dreamy and slow." {
		t.Fatalf("unexpected text %q", text)
	}
	if gotAuth != "Bearer k" || gotBody["model"] != "m" {
		t.Fatalf("unexpected request: auth=%q body=%v", gotAuth, gotBody)
	}
}

func TestDescribeSurfacesHTTPErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewChatGPTClient(config.ChatGPTConfig{Endpoint: server.URL, Model: "m", APIKey: "k"})
	if _, err := client.Describe(context.Background(), "Song", "Artist", true); err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected 429 error, got %v", err)
	}
}

func TestDescribeRequiresConfiguration(t *testing.T) {
	t.Parallel()

	if _, err := NewChatGPTClient(config.ChatGPTConfig{}).Describe(context.Background(), "a", "b", false); err == nil {
		t.Fatal("expected misconfiguration error")
	}
}
