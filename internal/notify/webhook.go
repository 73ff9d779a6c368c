package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/oszuidwest/zwfm-voicebox/internal/config"
	"github.com/oszuidwest/zwfm-voicebox/internal/util"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// Retry settings.
	maxRetries       = 3
	initialRetryWait = 1 * time.Second
	maxRetryWait     = 30 * time.Second

	// HTTP client timeout.
	httpTimeout = 10 * time.Second

	userAgent = "zwfm-voicebox"
)

// WebhookPayload represents the data sent to webhook endpoints.
type WebhookPayload struct {
	Event      string `json:"event"`
	Station    string `json:"station,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	Key        string `json:"key,omitempty"`
	MimeType   string `json:"mime_type,omitempty"`
	SizeBytes  int64  `json:"size_bytes,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Error      string `json:"error,omitempty"`
	Message    string `json:"message,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// WebhookClient posts JSON payloads to a webhook endpoint.
type WebhookClient struct {
	url        string
	httpClient *http.Client
	retryWait  time.Duration
}

// newCredentialsConfig creates an OAuth2 credentials configuration.
func newCredentialsConfig(cfg *config.WebhookConfig) *clientcredentials.Config {
	return &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
}

// NewWebhookClient creates a client for the configured webhook. When OAuth2
// client credentials are set, requests carry a bearer token.
func NewWebhookClient(cfg *config.WebhookConfig) (*WebhookClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook URL not configured")
	}

	// Configure base HTTP client with timeout to prevent indefinite hangs
	httpClient := &http.Client{Timeout: httpTimeout}
	if util.IsConfigured(cfg.TokenURL, cfg.ClientID, cfg.ClientSecret) {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		httpClient = newCredentialsConfig(cfg).Client(ctx)
		httpClient.Timeout = httpTimeout
	}

	return &WebhookClient{
		url:        cfg.URL,
		httpClient: httpClient,
		retryWait:  initialRetryWait,
	}, nil
}

// Send delivers a payload, retrying on network errors, rate limits and
// transient server errors.
func (c *WebhookClient) Send(ctx context.Context, payload *WebhookPayload) error {
	if payload.Timestamp == "" {
		payload.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return util.WrapError("marshal payload", err)
	}
	return c.doWithRetry(ctx, jsonData)
}

// doWithRetry posts the request with automatic retries. A Retry-After header
// on a rate-limited response overrides the backoff delay.
func (c *WebhookClient) doWithRetry(ctx context.Context, jsonData []byte) error {
	backoff := util.NewBackoff(c.retryWait, maxRetryWait)

	var lastErr error
	var retryAfter string
	for attempt := range maxRetries + 1 {
		if attempt > 0 {
			if err := backoff.Wait(ctx, retryAfter); err != nil {
				return fmt.Errorf("webhook cancelled: %w (last error: %w)", err, lastErr)
			}
			retryAfter = ""
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(jsonData))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = util.WrapError("send webhook request", err)
			continue
		}

		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		util.SafeCloseFunc(resp.Body, "webhook response body")()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests:
			retryAfter = resp.Header.Get("Retry-After")
			lastErr = fmt.Errorf("webhook rate limited (429): %s", respBody)
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, respBody)
		default:
			return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, respBody)
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
