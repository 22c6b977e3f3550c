// Package notify implements the multi-channel notification fan-out: one
// plain-text alert mirrored to the LINE Notify service and a Slack incoming
// webhook, each independently and each audited in the notification log.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"linebridge/internal/database"
)

// DefaultLineNotifyURL is the production LINE Notify endpoint.
const DefaultLineNotifyURL = "https://notify-api.line.me/api/notify"

// Channel type tags written to the notification log.
const (
	ChannelLineNotify = "line_notify"
	ChannelSlack      = "slack"
)

const (
	outcomeSuccess = "success"
	outcomeFailed  = "failed"
)

// Notifier fans an alert out to the configured channels. Implementations
// never return an error: channel failures are isolated, logged, and audited.
type Notifier interface {
	Send(ctx context.Context, message string)
}

// Service is the Notifier backed by the settings table. Channel credentials
// are read per send, so administrative settings changes take effect without a
// restart; an unconfigured channel is a silent no-op.
type Service struct {
	store         database.Store
	httpClient    *http.Client
	logger        *slog.Logger
	lineNotifyURL string
}

// Option configures a Service.
type Option func(*Service)

// WithLineNotifyURL overrides the LINE Notify endpoint, used by tests.
func WithLineNotifyURL(u string) Option {
	return func(s *Service) { s.lineNotifyURL = u }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Service) { s.httpClient = hc }
}

// NewService creates a fan-out service reading channel config from the store.
func NewService(store database.Store, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		store:         store,
		httpClient:    &http.Client{Timeout: 15 * time.Second},
		logger:        logger.With("component", "notify"),
		lineNotifyURL: DefaultLineNotifyURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send delivers the message to every configured channel. Each channel's
// outcome is independent: a failure is logged and audited but never blocks
// the other channel or propagates to the caller.
func (s *Service) Send(ctx context.Context, message string) {
	if err := s.sendLineNotify(ctx, message); err != nil {
		s.logger.ErrorContext(ctx, "Failed to send LINE Notify", "error", err)
	}

	if err := s.sendSlack(ctx, message); err != nil {
		s.logger.ErrorContext(ctx, "Failed to send Slack notification", "error", err)
	}
}

func (s *Service) sendLineNotify(ctx context.Context, message string) error {
	token, err := s.store.GetSetting(ctx, database.SettingLineNotifyToken)
	if err != nil {
		return fmt.Errorf("failed to read LINE Notify token: %w", err)
	}
	if token == "" {
		s.logger.DebugContext(ctx, "LINE Notify token not configured, skipping")
		return nil
	}

	form := url.Values{"message": {message}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.lineNotifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build LINE Notify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	recipient := truncateSecret(token, 10)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logAttempt(ctx, ChannelLineNotify, recipient, message, outcomeFailed, err.Error())
		return fmt.Errorf("LINE Notify request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errText := fmt.Sprintf("LINE Notify failed with status: %d", resp.StatusCode)
		s.logAttempt(ctx, ChannelLineNotify, recipient, message, outcomeFailed, errText)
		return fmt.Errorf("%s", errText)
	}

	s.logger.InfoContext(ctx, "LINE Notify sent")
	s.logAttempt(ctx, ChannelLineNotify, recipient, message, outcomeSuccess, "")
	return nil
}

func (s *Service) sendSlack(ctx context.Context, message string) error {
	webhookURL, err := s.store.GetSetting(ctx, database.SettingSlackWebhookURL)
	if err != nil {
		return fmt.Errorf("failed to read Slack webhook URL: %w", err)
	}
	if webhookURL == "" {
		s.logger.DebugContext(ctx, "Slack webhook URL not configured, skipping")
		return nil
	}

	payload, err := json.Marshal(map[string]string{"text": message})
	if err != nil {
		return fmt.Errorf("failed to encode Slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build Slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logAttempt(ctx, ChannelSlack, "webhook", message, outcomeFailed, err.Error())
		return fmt.Errorf("Slack request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errText := fmt.Sprintf("Slack notification failed with status: %d", resp.StatusCode)
		s.logAttempt(ctx, ChannelSlack, "webhook", message, outcomeFailed, errText)
		return fmt.Errorf("%s", errText)
	}

	s.logger.InfoContext(ctx, "Slack notification sent")
	s.logAttempt(ctx, ChannelSlack, "webhook", message, outcomeSuccess, "")
	return nil
}

func (s *Service) logAttempt(ctx context.Context, channel, recipient, message, status, errText string) {
	entry := &database.NotificationLog{
		NotificationType: channel,
		Recipient:        recipient,
		Message:          message,
		Status:           status,
	}
	if errText != "" {
		entry.ErrorMessage.String = errText
		entry.ErrorMessage.Valid = true
	}

	if err := s.store.LogNotification(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "Failed to write notification log", "channel", channel, "error", err)
	}
}

// truncateSecret keeps a short prefix of a credential for log display. Full
// credentials must never reach the log.
func truncateSecret(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
