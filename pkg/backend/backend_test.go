package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"relaygram/pkg/config"
	"relaygram/pkg/protocol"
)

func testPayload() protocol.Payload {
	content := "/start"
	return protocol.Payload{
		ChatID:         42,
		SessionID:      "s-1",
		MessageType:    protocol.MessageTypeCommand,
		MessageContent: &content,
	}
}

func TestExchangeDecodesActionResponse(t *testing.T) {
	t.Parallel()

	var gotPath, gotContentType string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"action":"reply","data":{"text":"hi"},"user_role":"admin"}`))
	}))
	defer server.Close()

	client := New(config.BackendConfig{URL: server.URL}, nil)

	response := client.Exchange(context.Background(), testPayload())
	if response.Action != "reply" {
		t.Fatalf("action = %q, want reply", response.Action)
	}
	if response.Data.Text() != "hi" {
		t.Fatalf("text = %q, want hi", response.Data.Text())
	}
	if response.UserRole != "admin" {
		t.Fatalf("user_role = %q, want admin", response.UserRole)
	}

	if gotPath != "/user/webhook" {
		t.Fatalf("path = %q, want /user/webhook", gotPath)
	}
	if gotContentType != "application/json" {
		t.Fatalf("content type = %q, want application/json", gotContentType)
	}
	if gotBody["chat_id"] != float64(42) || gotBody["session_id"] != "s-1" {
		t.Fatalf("payload body = %v", gotBody)
	}
	if gotBody["message_content"] != "/start" {
		t.Fatalf("message_content = %v, want /start", gotBody["message_content"])
	}
}

func TestExchangeDegradesToEmptyOnServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(config.BackendConfig{URL: server.URL}, nil)

	response := client.Exchange(context.Background(), testPayload())
	if response.Action != "" {
		t.Fatalf("action = %q, want empty", response.Action)
	}

	_, err := client.post(context.Background(), testPayload())
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("classification = %v, want ErrTransport", err)
	}
}

func TestExchangeDegradesToEmptyOnBadBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	client := New(config.BackendConfig{URL: server.URL}, nil)

	response := client.Exchange(context.Background(), testPayload())
	if response.Action != "" {
		t.Fatalf("action = %q, want empty", response.Action)
	}

	_, err := client.post(context.Background(), testPayload())
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("classification = %v, want ErrDecode", err)
	}
}

func TestExchangeDegradesToEmptyWhenUnreachable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	baseURL := server.URL
	server.Close()

	client := New(config.BackendConfig{URL: baseURL}, nil)

	response := client.Exchange(context.Background(), testPayload())
	if response.Action != "" {
		t.Fatalf("action = %q, want empty", response.Action)
	}

	_, err := client.post(context.Background(), testPayload())
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("classification = %v, want ErrTransport", err)
	}
}

func TestWebhookURLTrimsTrailingSlash(t *testing.T) {
	t.Parallel()

	client := New(config.BackendConfig{URL: "http://localhost:8000/"}, nil)
	if got := client.WebhookURL(); got != "http://localhost:8000/user/webhook" {
		t.Fatalf("webhook url = %q", got)
	}
}

func TestProbeAcceptsAnyHTTPResponse(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}))
	defer server.Close()

	client := New(config.BackendConfig{URL: server.URL}, nil)
	if err := client.Probe(context.Background()); err != nil {
		t.Fatalf("Probe with responding server: %v", err)
	}
}

func TestProbeReportsTransportFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	baseURL := server.URL
	server.Close()

	client := New(config.BackendConfig{URL: baseURL}, nil)
	err := client.Probe(context.Background())
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("Probe classification = %v, want ErrTransport", err)
	}
}
