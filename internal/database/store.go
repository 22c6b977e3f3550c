package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the interface for record-store operations. All methods accept
// a context for cancellation and timeouts. Status and flag transitions are
// guarded single-statement updates: they report whether a row actually
// flipped, so overlapping ticks and administrative cancellation cannot
// double-apply a transition.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// UpsertUser creates a user on first contact or updates the display name
	// in place on repeat contact (last write wins).
	UpsertUser(ctx context.Context, lineUserID string, displayName *string) error

	// GetUserByLineID retrieves a user by LINE user ID. Returns nil, nil if not found.
	GetUserByLineID(ctx context.Context, lineUserID string) (*User, error)

	// ListUsers retrieves all users, newest first.
	ListUsers(ctx context.Context) ([]User, error)

	// SaveMessage appends one inbound message record.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListMessagesByUser retrieves the most recent messages for one user.
	ListMessagesByUser(ctx context.Context, lineUserID string, limit int) ([]Message, error)

	// ListMessages retrieves the most recent messages across all users.
	ListMessages(ctx context.Context, limit int) ([]Message, error)

	// CreateScheduledMessage inserts a new pending scheduled message.
	CreateScheduledMessage(ctx context.Context, msg *ScheduledMessage) error

	// ListPendingScheduledMessages retrieves all pending rows ordered by
	// schedule time ascending. Terminal rows are never selected.
	ListPendingScheduledMessages(ctx context.Context) ([]ScheduledMessage, error)

	// MarkScheduledMessageSent flips a pending row to sent with a sent
	// timestamp. Returns false if the row was no longer pending.
	MarkScheduledMessageSent(ctx context.Context, id int64) (bool, error)

	// MarkScheduledMessageFailed flips a pending row to failed with the
	// delivery error text. Returns false if the row was no longer pending.
	MarkScheduledMessageFailed(ctx context.Context, id int64, errMsg string) (bool, error)

	// CancelScheduledMessage flips a pending row to cancelled. Returns false
	// if the row was no longer pending.
	CancelScheduledMessage(ctx context.Context, id int64) (bool, error)

	// CreateCalendarEvent inserts a new calendar event with the reminder unsent.
	CreateCalendarEvent(ctx context.Context, event *CalendarEvent) error

	// ListCalendarEventsByUser retrieves a user's events by event time ascending.
	ListCalendarEventsByUser(ctx context.Context, lineUserID string) ([]CalendarEvent, error)

	// ListDueCalendarEvents retrieves events with the reminder unsent whose
	// event time falls within [now, now+window], event time ascending.
	ListDueCalendarEvents(ctx context.Context, now time.Time, window time.Duration) ([]CalendarEvent, error)

	// MarkReminderSent sets reminder_sent on an event. Returns false if the
	// flag was already set.
	MarkReminderSent(ctx context.Context, id int64) (bool, error)

	// GetSetting retrieves a settings value. Returns "" if the key is absent.
	GetSetting(ctx context.Context, key string) (string, error)

	// SetSetting inserts or updates a settings value.
	SetSetting(ctx context.Context, key, value, description string) error

	// ListSettings retrieves all settings ordered by key.
	ListSettings(ctx context.Context) ([]Setting, error)

	// LogNotification appends one fan-out audit record.
	LogNotification(ctx context.Context, entry *NotificationLog) error

	// ListNotificationLogs retrieves the most recent fan-out audit records.
	ListNotificationLogs(ctx context.Context, limit int) ([]NotificationLog, error)
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) UpsertUser(ctx context.Context, lineUserID string, displayName *string) error {
	if lineUserID == "" {
		return fmt.Errorf("line_user_id cannot be empty")
	}

	now := time.Now().UTC()
	query := `
        INSERT INTO users (line_user_id, display_name, created_at, updated_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(line_user_id) DO UPDATE SET
            display_name = excluded.display_name,
            updated_at = excluded.updated_at;
    `

	if _, err := s.db.ExecContext(ctx, query, lineUserID, displayName, now, now); err != nil {
		s.logger.ErrorContext(ctx, "Error upserting user", "line_user_id", lineUserID, "error", err)
		return fmt.Errorf("failed to upsert user %s: %w", lineUserID, err)
	}

	s.logger.DebugContext(ctx, "User upserted", "line_user_id", lineUserID)
	return nil
}

func (s *sqlxStore) GetUserByLineID(ctx context.Context, lineUserID string) (*User, error) {
	if lineUserID == "" {
		return nil, fmt.Errorf("line_user_id cannot be empty")
	}

	var user User
	query := `SELECT id, line_user_id, display_name, picture_url, status_message, created_at, updated_at
	          FROM users WHERE line_user_id = ?`

	err := s.db.GetContext(ctx, &user, query, lineUserID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting user", "line_user_id", lineUserID, "error", err)
		return nil, fmt.Errorf("failed to get user %s: %w", lineUserID, err)
	}

	return &user, nil
}

func (s *sqlxStore) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	query := `SELECT id, line_user_id, display_name, picture_url, status_message, created_at, updated_at
	          FROM users ORDER BY created_at DESC`

	if err := s.db.SelectContext(ctx, &users, query); err != nil {
		s.logger.ErrorContext(ctx, "Error listing users", "error", err)
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (s *sqlxStore) SaveMessage(ctx context.Context, msg *Message) error {
	if msg == nil {
		return fmt.Errorf("cannot save nil message")
	}
	if msg.LineUserID == "" {
		return fmt.Errorf("message must have a line_user_id")
	}
	if msg.MessageType == "" {
		return fmt.Errorf("message must have a message_type")
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	query := `
        INSERT INTO messages (line_user_id, message_type, message_text, message_data, timestamp)
        VALUES (:line_user_id, :message_type, :message_text, :message_data, :timestamp);
    `

	result, err := s.db.NamedExecContext(ctx, query, msg)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving message",
			"line_user_id", msg.LineUserID, "message_type", msg.MessageType, "error", err)
		return fmt.Errorf("failed to save message from %s: %w", msg.LineUserID, err)
	}

	if id, err := result.LastInsertId(); err == nil {
		msg.ID = id
	}

	s.logger.DebugContext(ctx, "Message saved",
		"line_user_id", msg.LineUserID, "message_type", msg.MessageType, "message_id", msg.ID)
	return nil
}

func (s *sqlxStore) ListMessagesByUser(ctx context.Context, lineUserID string, limit int) ([]Message, error) {
	if lineUserID == "" {
		return nil, fmt.Errorf("line_user_id cannot be empty")
	}
	if limit <= 0 {
		limit = 50
	}

	var messages []Message
	query := `SELECT id, line_user_id, message_type, message_text, message_data, timestamp
	          FROM messages WHERE line_user_id = ? ORDER BY timestamp DESC LIMIT ?`

	if err := s.db.SelectContext(ctx, &messages, query, lineUserID, limit); err != nil {
		s.logger.ErrorContext(ctx, "Error listing messages", "line_user_id", lineUserID, "error", err)
		return nil, fmt.Errorf("failed to list messages for %s: %w", lineUserID, err)
	}
	return messages, nil
}

func (s *sqlxStore) ListMessages(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}

	var messages []Message
	query := `SELECT id, line_user_id, message_type, message_text, message_data, timestamp
	          FROM messages ORDER BY timestamp DESC LIMIT ?`

	if err := s.db.SelectContext(ctx, &messages, query, limit); err != nil {
		s.logger.ErrorContext(ctx, "Error listing messages", "error", err)
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

func (s *sqlxStore) CreateScheduledMessage(ctx context.Context, msg *ScheduledMessage) error {
	if msg == nil {
		return fmt.Errorf("cannot create nil scheduled message")
	}
	if msg.MessageText == "" {
		return fmt.Errorf("scheduled message must have text")
	}
	if msg.ScheduleTime == "" {
		return fmt.Errorf("scheduled message must have a schedule time")
	}

	now := time.Now().UTC()
	msg.Status = StatusPending
	msg.CreatedAt = now
	msg.UpdatedAt = now

	query := `
        INSERT INTO scheduled_messages (line_user_id, message_text, schedule_time, cron_expression, status, created_at, updated_at)
        VALUES (:line_user_id, :message_text, :schedule_time, :cron_expression, :status, :created_at, :updated_at);
    `

	result, err := s.db.NamedExecContext(ctx, query, msg)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error creating scheduled message", "error", err)
		return fmt.Errorf("failed to create scheduled message: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		msg.ID = id
	}

	s.logger.DebugContext(ctx, "Scheduled message created",
		"message_id", msg.ID, "schedule_time", msg.ScheduleTime)
	return nil
}

func (s *sqlxStore) ListPendingScheduledMessages(ctx context.Context) ([]ScheduledMessage, error) {
	var messages []ScheduledMessage
	query := `SELECT id, line_user_id, message_text, schedule_time, cron_expression, status, sent_at, error_message, created_at, updated_at
	          FROM scheduled_messages WHERE status = ? ORDER BY schedule_time ASC`

	if err := s.db.SelectContext(ctx, &messages, query, StatusPending); err != nil {
		s.logger.ErrorContext(ctx, "Error listing pending scheduled messages", "error", err)
		return nil, fmt.Errorf("failed to list pending scheduled messages: %w", err)
	}
	return messages, nil
}

// transitionScheduledMessage performs the guarded terminal transition. The
// WHERE status = 'pending' predicate is the optimistic check that keeps a
// cancelled or already-processed row from being flipped twice.
func (s *sqlxStore) transitionScheduledMessage(ctx context.Context, id int64, status string, errMsg *string, sentAt *time.Time) (bool, error) {
	query := `UPDATE scheduled_messages
	          SET status = ?, error_message = ?, sent_at = ?, updated_at = ?
	          WHERE id = ? AND status = ?`

	result, err := s.db.ExecContext(ctx, query, status, errMsg, sentAt, time.Now().UTC(), id, StatusPending)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error updating scheduled message status",
			"message_id", id, "status", status, "error", err)
		return false, fmt.Errorf("failed to update scheduled message %d to %s: %w", id, status, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows for scheduled message %d: %w", id, err)
	}

	s.logger.DebugContext(ctx, "Scheduled message status updated",
		"message_id", id, "status", status, "applied", affected == 1)
	return affected == 1, nil
}

func (s *sqlxStore) MarkScheduledMessageSent(ctx context.Context, id int64) (bool, error) {
	now := time.Now().UTC()
	return s.transitionScheduledMessage(ctx, id, StatusSent, nil, &now)
}

func (s *sqlxStore) MarkScheduledMessageFailed(ctx context.Context, id int64, errMsg string) (bool, error) {
	return s.transitionScheduledMessage(ctx, id, StatusFailed, &errMsg, nil)
}

func (s *sqlxStore) CancelScheduledMessage(ctx context.Context, id int64) (bool, error) {
	return s.transitionScheduledMessage(ctx, id, StatusCancelled, nil, nil)
}

func (s *sqlxStore) CreateCalendarEvent(ctx context.Context, event *CalendarEvent) error {
	if event == nil {
		return fmt.Errorf("cannot create nil calendar event")
	}
	if event.LineUserID == "" {
		return fmt.Errorf("calendar event must have a line_user_id")
	}
	if event.EventTitle == "" {
		return fmt.Errorf("calendar event must have a title")
	}
	if event.EventTime == "" {
		return fmt.Errorf("calendar event must have an event time")
	}

	now := time.Now().UTC()
	event.ReminderSent = false
	event.CreatedAt = now
	event.UpdatedAt = now

	query := `
        INSERT INTO calendars (line_user_id, event_title, event_description, event_time, reminder_sent, created_at, updated_at)
        VALUES (:line_user_id, :event_title, :event_description, :event_time, :reminder_sent, :created_at, :updated_at);
    `

	result, err := s.db.NamedExecContext(ctx, query, event)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error creating calendar event", "error", err)
		return fmt.Errorf("failed to create calendar event: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		event.ID = id
	}

	s.logger.DebugContext(ctx, "Calendar event created",
		"event_id", event.ID, "event_time", event.EventTime)
	return nil
}

func (s *sqlxStore) ListCalendarEventsByUser(ctx context.Context, lineUserID string) ([]CalendarEvent, error) {
	if lineUserID == "" {
		return nil, fmt.Errorf("line_user_id cannot be empty")
	}

	var events []CalendarEvent
	query := `SELECT id, line_user_id, event_title, event_description, event_time, reminder_sent, created_at, updated_at
	          FROM calendars WHERE line_user_id = ? ORDER BY event_time ASC`

	if err := s.db.SelectContext(ctx, &events, query, lineUserID); err != nil {
		s.logger.ErrorContext(ctx, "Error listing calendar events", "line_user_id", lineUserID, "error", err)
		return nil, fmt.Errorf("failed to list calendar events for %s: %w", lineUserID, err)
	}
	return events, nil
}

func (s *sqlxStore) ListDueCalendarEvents(ctx context.Context, now time.Time, window time.Duration) ([]CalendarEvent, error) {
	// event_time is RFC3339 UTC text, so lexicographic comparison matches
	// chronological order for the uniform format written by this system.
	from := now.UTC().Format(time.RFC3339)
	until := now.UTC().Add(window).Format(time.RFC3339)

	var events []CalendarEvent
	query := `SELECT id, line_user_id, event_title, event_description, event_time, reminder_sent, created_at, updated_at
	          FROM calendars
	          WHERE reminder_sent = 0 AND event_time >= ? AND event_time <= ?
	          ORDER BY event_time ASC`

	if err := s.db.SelectContext(ctx, &events, query, from, until); err != nil {
		s.logger.ErrorContext(ctx, "Error listing due calendar events", "error", err)
		return nil, fmt.Errorf("failed to list due calendar events: %w", err)
	}
	return events, nil
}

func (s *sqlxStore) MarkReminderSent(ctx context.Context, id int64) (bool, error) {
	// Guarded flip: reminder_sent never reverts and never flips twice.
	query := `UPDATE calendars SET reminder_sent = 1, updated_at = ? WHERE id = ? AND reminder_sent = 0`

	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error marking reminder sent", "event_id", id, "error", err)
		return false, fmt.Errorf("failed to mark reminder sent for event %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows for event %d: %w", id, err)
	}

	return affected == 1, nil
}

func (s *sqlxStore) GetSetting(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("setting key cannot be empty")
	}

	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM settings WHERE key = ?`, key)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting setting", "key", key, "error", err)
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}

	return value, nil
}

func (s *sqlxStore) SetSetting(ctx context.Context, key, value, description string) error {
	if key == "" {
		return fmt.Errorf("setting key cannot be empty")
	}

	now := time.Now().UTC()
	query := `
        INSERT INTO settings (key, value, description, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(key) DO UPDATE SET
            value = excluded.value,
            updated_at = excluded.updated_at;
    `

	if _, err := s.db.ExecContext(ctx, query, key, value, description, now, now); err != nil {
		s.logger.ErrorContext(ctx, "Error setting value", "key", key, "error", err)
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}

	return nil
}

func (s *sqlxStore) ListSettings(ctx context.Context) ([]Setting, error) {
	var settings []Setting
	query := `SELECT key, value, description, created_at, updated_at FROM settings ORDER BY key ASC`

	if err := s.db.SelectContext(ctx, &settings, query); err != nil {
		s.logger.ErrorContext(ctx, "Error listing settings", "error", err)
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	return settings, nil
}

func (s *sqlxStore) LogNotification(ctx context.Context, entry *NotificationLog) error {
	if entry == nil {
		return fmt.Errorf("cannot log nil notification entry")
	}
	if entry.SentAt.IsZero() {
		entry.SentAt = time.Now().UTC()
	}

	query := `
        INSERT INTO notification_logs (notification_type, recipient, message, status, error_message, sent_at)
        VALUES (:notification_type, :recipient, :message, :status, :error_message, :sent_at);
    `

	if _, err := s.db.NamedExecContext(ctx, query, entry); err != nil {
		s.logger.ErrorContext(ctx, "Error logging notification",
			"notification_type", entry.NotificationType, "error", err)
		return fmt.Errorf("failed to log notification: %w", err)
	}

	return nil
}

func (s *sqlxStore) ListNotificationLogs(ctx context.Context, limit int) ([]NotificationLog, error) {
	if limit <= 0 {
		limit = 100
	}

	var logs []NotificationLog
	query := `SELECT id, notification_type, recipient, message, status, error_message, sent_at
	          FROM notification_logs ORDER BY sent_at DESC, id DESC LIMIT ?`

	if err := s.db.SelectContext(ctx, &logs, query, limit); err != nil {
		s.logger.ErrorContext(ctx, "Error listing notification logs", "error", err)
		return nil, fmt.Errorf("failed to list notification logs: %w", err)
	}
	return logs, nil
}
