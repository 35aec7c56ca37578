package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNotifyPostsForm(t *testing.T) {
	t.Parallel()

	var path, chatID, text string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = r.ParseForm()
		chatID = r.PostForm.Get("chat_id")
		text = r.PostForm.Get("text")
	}))
	defer server.Close()

	n := NewNotifier("tok", "42")
	n.apiBase = server.URL
	if err := n.Notify(context.Background(), "Published A"); err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	if path != "/bottok/sendMessage" || chatID != "42" || text != "Published A" {
		t.Fatalf("unexpected request: %s %s %s", path, chatID, text)
	}
}

func TestNotifyRejectsMissingCredentials(t *testing.T) {
	t.Parallel()

	if err := NewNotifier("", "").Notify(context.Background(), "x"); err == nil {
		t.Fatal("expected misconfiguration error")
	}
}
