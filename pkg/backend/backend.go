// Package backend implements the webhook exchange with the decision server.
// The backend owns all business logic; this client only carries payloads out
// and action envelopes back.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"relaygram/pkg/config"
	"relaygram/pkg/protocol"
)

const (
	webhookPath    = "/user/webhook"
	defaultTimeout = 30 * time.Second
)

// Failure classification for one exchange. Exchange itself degrades to the
// empty response; these mark the log line and are visible to tests through
// errors.Is on the post path.
var (
	ErrTransport = errors.New("backend transport failure")
	ErrDecode    = errors.New("backend response decode failure")
)

// Client performs the payload/action exchange against the backend webhook.
type Client struct {
	webhookURL string
	httpClient *http.Client
	log        *slog.Logger
}

// New builds a client for the configured backend base URL.
func New(cfg config.BackendConfig, log *slog.Logger) *Client {
	timeout := defaultTimeout
	if cfg.RequestTimeoutSeconds > 0 {
		timeout = time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		webhookURL: strings.TrimRight(strings.TrimSpace(cfg.URL), "/") + webhookPath,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With("component", "backend.client"),
	}
}

// WebhookURL returns the resolved webhook endpoint.
func (c *Client) WebhookURL() string {
	return c.webhookURL
}

// Probe checks that the webhook endpoint is listening. Any HTTP response
// counts as reachable, including rejections of the GET method; only a
// transport-level failure is reported.
func (c *Client) Probe(ctx context.Context) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.webhookURL, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, response.Body)

	return nil
}

// Exchange POSTs the payload and decodes the backend's reply. Any transport
// or decode failure is logged and degrades to the empty response: the relay
// never crashes because the backend is unreachable, and a single failed
// exchange is never retried.
func (c *Client) Exchange(ctx context.Context, payload protocol.Payload) protocol.ActionResponse {
	started := time.Now()

	response, err := c.post(ctx, payload)
	if err != nil {
		c.log.Error("Webhook exchange failed",
			"chat_id", payload.ChatID,
			"message_type", payload.MessageType,
			"duration_ms", time.Since(started).Milliseconds(),
			"error", err)
		return protocol.ActionResponse{}
	}

	c.log.Debug("Webhook exchange completed",
		"chat_id", payload.ChatID,
		"action", response.Action,
		"duration_ms", time.Since(started).Milliseconds())

	return response
}

func (c *Client) post(ctx context.Context, payload protocol.Payload) (protocol.ActionResponse, error) {
	var empty protocol.ActionResponse

	body, err := json.Marshal(payload)
	if err != nil {
		return empty, fmt.Errorf("encode payload: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return empty, fmt.Errorf("build request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return empty, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return empty, fmt.Errorf("%w: status %d", ErrTransport, response.StatusCode)
	}

	raw, err := io.ReadAll(response.Body)
	if err != nil {
		return empty, fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}

	var decoded protocol.ActionResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return empty, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return decoded, nil
}
