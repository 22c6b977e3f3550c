// Package webhook implements the inbound event boundary: signature
// verification, envelope parsing, and per-event normalization into the
// record store with fan-out notifications.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"linebridge/internal/database"
	"linebridge/internal/notify"
)

// SignatureHeader carries the HMAC-SHA256 signature of the request body.
const SignatureHeader = "X-Line-Signature"

// Handler processes inbound webhook envelopes.
type Handler struct {
	store         database.Store
	notifier      notify.Notifier
	channelSecret string
	logger        *slog.Logger
}

// NewHandler creates a webhook handler. With an empty channelSecret only
// signature header presence is enforced; with a secret configured the
// signature is verified against the raw request body.
func NewHandler(store database.Store, notifier notify.Notifier, channelSecret string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:         store,
		notifier:      notifier,
		channelSecret: channelSecret,
		logger:        logger.With("component", "webhook"),
	}
}

// Register mounts the webhook and health endpoints on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhook", h.handleWebhook)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "Health check failed", "error", err)
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleWebhook authenticates the envelope as a whole, then processes each
// event independently: one event's failure is logged and skipped, never
// aborting the rest. The platform only ever sees an unauthorized rejection
// or a bare success.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to read webhook body", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get(SignatureHeader)
	if signature == "" {
		h.logger.WarnContext(ctx, "Missing LINE signature header")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if h.channelSecret != "" && !verifySignature(h.channelSecret, body, signature) {
		h.logger.WarnContext(ctx, "Invalid LINE signature")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var envelope Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		h.logger.ErrorContext(ctx, "Failed to parse webhook envelope", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	log := h.logger.With("envelope_id", uuid.NewString(), "destination", envelope.Destination)
	log.InfoContext(ctx, "Received webhook", "events", len(envelope.Events))

	for _, event := range envelope.Events {
		if err := h.processEvent(ctx, log, event); err != nil {
			log.ErrorContext(ctx, "Failed to process event", "event_type", event.Type, "error", err)
		}
	}

	w.WriteHeader(http.StatusOK)
}

func verifySignature(channelSecret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(channelSecret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (h *Handler) processEvent(ctx context.Context, log *slog.Logger, event Event) error {
	switch event.Type {
	case EventTypeMessage:
		return h.handleMessageEvent(ctx, log, event)

	case EventTypeFollow:
		log.InfoContext(ctx, "User followed", "user_id", event.Source.UserID)
		if err := h.store.UpsertUser(ctx, event.Source.UserID, nil); err != nil {
			return fmt.Errorf("failed to upsert follower: %w", err)
		}
		h.notifier.Send(ctx, fmt.Sprintf("New follower: %s", event.Source.UserID))
		return nil

	case EventTypeUnfollow:
		log.InfoContext(ctx, "User unfollowed", "user_id", event.Source.UserID)
		h.notifier.Send(ctx, fmt.Sprintf("User unfollowed: %s", event.Source.UserID))
		return nil

	default:
		// Forward compatibility: unknown event types are accepted and ignored.
		log.DebugContext(ctx, "Ignoring unrecognized event type", "event_type", event.Type)
		return nil
	}
}

func (h *Handler) handleMessageEvent(ctx context.Context, log *slog.Logger, event Event) error {
	userID := event.Source.UserID

	// Upsert first so the message row always has a user to reference, even
	// when the platform delivers a message without a preceding follow event.
	if err := h.store.UpsertUser(ctx, userID, nil); err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}

	msg := &database.Message{
		LineUserID: userID,
		Timestamp:  time.Now().UTC(),
	}
	if event.Timestamp > 0 {
		msg.Timestamp = time.UnixMilli(event.Timestamp).UTC()
	}

	switch event.Message.Type {
	case MessageTypeText:
		log.InfoContext(ctx, "Received text message", "user_id", userID)
		msg.MessageType = database.MessageTypeText
		msg.MessageText.String = event.Message.Text
		msg.MessageText.Valid = true
		if err := h.store.SaveMessage(ctx, msg); err != nil {
			return err
		}
		h.notifier.Send(ctx, fmt.Sprintf("New message from %s: %s", userID, event.Message.Text))
		return nil

	case MessageTypeImage, MessageTypeVideo, MessageTypeAudio:
		// High-volume media events are persisted without fan-out.
		log.InfoContext(ctx, "Received media message", "user_id", userID, "message_type", event.Message.Type)
		msg.MessageType = event.Message.Type
		return h.store.SaveMessage(ctx, msg)

	case MessageTypeLocation:
		log.InfoContext(ctx, "Received location message", "user_id", userID)
		data, err := json.Marshal(map[string]any{
			"title":     event.Message.Title,
			"address":   event.Message.Address,
			"latitude":  event.Message.Latitude,
			"longitude": event.Message.Longitude,
		})
		if err != nil {
			return fmt.Errorf("failed to encode location data: %w", err)
		}
		msg.MessageType = database.MessageTypeLocation
		msg.MessageData.String = string(data)
		msg.MessageData.Valid = true
		return h.store.SaveMessage(ctx, msg)

	case MessageTypeSticker:
		log.InfoContext(ctx, "Received sticker message", "user_id", userID)
		data, err := json.Marshal(map[string]string{
			"packageId": event.Message.PackageID,
			"stickerId": event.Message.StickerID,
		})
		if err != nil {
			return fmt.Errorf("failed to encode sticker data: %w", err)
		}
		msg.MessageType = database.MessageTypeSticker
		msg.MessageData.String = string(data)
		msg.MessageData.Valid = true
		return h.store.SaveMessage(ctx, msg)

	default:
		log.DebugContext(ctx, "Ignoring unrecognized message type",
			"user_id", userID, "message_type", event.Message.Type)
		return nil
	}
}
