package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ashureev/debate-panel/internal/domain"
)

// maxResponseBytes bounds how much of a backend response is read (8MB).
const maxResponseBytes = 8 << 20

var errEmptyBaseURL = errors.New("backend base URL is required")

// Client talks to the conversation backend over its JSON HTTP API.
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// ClientConfig holds configuration for the HTTP client.
type ClientConfig struct {
	BaseURL string
	// Token is sent as a bearer token when non-empty.
	Token   string
	Timeout time.Duration
	// HTTPClient overrides the default transport (tests).
	HTTPClient *http.Client
}

// DefaultClientConfig returns default configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL: "http://localhost:5000",
		Timeout: 15 * time.Second,
	}
}

// Ensure Client implements the gateway contracts.
var (
	_ Gateway       = (*Client)(nil)
	_ HealthChecker = (*Client)(nil)
)

// NewClient creates a client for the backend at cfg.BaseURL.
func NewClient(cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errEmptyBaseURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend URL must be http or https, got %q", cfg.BaseURL)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultClientConfig().Timeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: base,
		token:   cfg.Token,
		http:    hc,
		logger:  logger.With("component", "gateway"),
	}, nil
}

// ListBusinesses fetches the promotable business catalog.
func (c *Client) ListBusinesses(ctx context.Context) ([]domain.Business, error) {
	var resp listBusinessesResponse
	if err := c.do(ctx, OpListBusinesses, http.MethodGet, "/api/businesses", nil, &resp); err != nil {
		return nil, err
	}
	return resp.toDomain(), nil
}

// StartConversation creates a new conversation for the business and returns its id.
func (c *Client) StartConversation(ctx context.Context, businessID string) (string, error) {
	var resp startResponse
	req := startRequest{BusinessID: encodeBusinessID(businessID)}
	if err := c.do(ctx, OpStart, http.MethodPost, "/api/ai-conversations/start", req, &resp); err != nil {
		return "", err
	}
	if resp.ConversationID == "" {
		return "", &TransportError{Op: OpStart, Err: errMissingConversationID}
	}
	return string(resp.ConversationID), nil
}

// PauseConversation asks the engine to stop taking turns.
func (c *Client) PauseConversation(ctx context.Context, conversationID string) error {
	return c.do(ctx, OpPause, http.MethodPost, conversationPath(conversationID, "pause"), nil, nil)
}

// ResumeConversation lets a paused engine continue.
func (c *Client) ResumeConversation(ctx context.Context, conversationID string) error {
	return c.do(ctx, OpResume, http.MethodPost, conversationPath(conversationID, "resume"), nil, nil)
}

// StopConversation ends the conversation on the backend.
func (c *Client) StopConversation(ctx context.Context, conversationID string) error {
	return c.do(ctx, OpStop, http.MethodPost, conversationPath(conversationID, "stop"), nil, nil)
}

// GetStatus fetches the scalar state of a conversation.
func (c *Client) GetStatus(ctx context.Context, conversationID string) (domain.Status, error) {
	var resp statusResponse
	if err := c.do(ctx, OpStatus, http.MethodGet, conversationPath(conversationID, "status"), nil, &resp); err != nil {
		return domain.Status{}, err
	}
	st, err := resp.toDomain()
	if err != nil {
		return domain.Status{}, &TransportError{Op: OpStatus, Err: err}
	}
	return st, nil
}

// GetMessages fetches the full message history of a conversation.
func (c *Client) GetMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	var resp messagesResponse
	if err := c.do(ctx, OpMessages, http.MethodGet, conversationPath(conversationID, "messages"), nil, &resp); err != nil {
		return nil, err
	}
	msgs, err := resp.toDomain()
	if err != nil {
		return nil, &TransportError{Op: OpMessages, Err: err}
	}
	return msgs, nil
}

// Health checks the backend health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, OpHealth, http.MethodGet, "/api/health", nil, nil)
}

func conversationPath(conversationID, action string) string {
	return "/api/ai-conversations/" + url.PathEscape(conversationID) + "/" + action
}

// do performs one request/response exchange. Non-2xx responses become
// *RemoteError; network and decoding failures become *TransportError.
func (c *Client) do(ctx context.Context, op Op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &TransportError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(data)
	}

	endpoint := c.baseURL.String() + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("Backend request failed", "op", op, "path", path, "error", err)
		return &TransportError{Op: op, Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("Failed to close response body", "op", op, "error", closeErr)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	c.logger.Debug("Backend response",
		"op", op,
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RemoteError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    extractErrorMessage(data),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
