// Package line implements the outbound delivery client for the LINE
// Messaging API: push, reply, broadcast, and profile lookup.
package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the production LINE Messaging API endpoint.
const DefaultBaseURL = "https://api.line.me"

const defaultRequestsPerSecond = 10

// Sender is the outbound delivery interface consumed by the dispatch and
// reminder engines.
type Sender interface {
	Push(ctx context.Context, to string, messages []Message) error
	Reply(ctx context.Context, replyToken string, messages []Message) error
	Broadcast(ctx context.Context, messages []Message) error
	GetProfile(ctx context.Context, userID string) (*Profile, error)
}

// Client is a Sender backed by HTTP calls carrying a bearer credential.
// It performs no retries; a non-success response surfaces the raw response
// body as opaque diagnostic text.
type Client struct {
	httpClient  *http.Client
	accessToken string
	baseURL     string
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint, used by tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a delivery client for the given channel access token.
func NewClient(accessToken string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		accessToken: accessToken,
		baseURL:     DefaultBaseURL,
		limiter:     rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), defaultRequestsPerSecond),
		logger:      logger.With("component", "line_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type pushPayload struct {
	To       string    `json:"to"`
	Messages []Message `json:"messages"`
}

type replyPayload struct {
	ReplyToken string    `json:"replyToken"`
	Messages   []Message `json:"messages"`
}

type broadcastPayload struct {
	Messages []Message `json:"messages"`
}

// Push sends messages to a specific user.
func (c *Client) Push(ctx context.Context, to string, messages []Message) error {
	return c.post(ctx, "/v2/bot/message/push", pushPayload{To: to, Messages: messages})
}

// Reply sends messages in response to a single-use reply token.
func (c *Client) Reply(ctx context.Context, replyToken string, messages []Message) error {
	return c.post(ctx, "/v2/bot/message/reply", replyPayload{ReplyToken: replyToken, Messages: messages})
}

// Broadcast sends messages to all followers.
func (c *Client) Broadcast(ctx context.Context, messages []Message) error {
	return c.post(ctx, "/v2/bot/message/broadcast", broadcastPayload{Messages: messages})
}

// GetProfile retrieves the profile of one user.
func (c *Client) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/bot/profile/"+userID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("LINE API error: %s", string(body))
	}

	var profile Profile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile response: %w", err)
	}

	c.logger.DebugContext(ctx, "Fetched user profile", "user_id", userID)
	return &profile, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("LINE API error: status %d", resp.StatusCode)
		}
		return fmt.Errorf("LINE API error: %s", string(body))
	}

	c.logger.DebugContext(ctx, "Delivered messages", "path", path)
	return nil
}
