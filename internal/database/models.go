package database

import (
	"database/sql"
	"time"
)

// ScheduledMessage status values. Rows start pending; every other status is
// terminal and excluded from future dispatch scans.
const (
	StatusPending   = "pending"
	StatusSent      = "sent"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Inbound message type tags.
const (
	MessageTypeText     = "text"
	MessageTypeImage    = "image"
	MessageTypeVideo    = "video"
	MessageTypeAudio    = "audio"
	MessageTypeLocation = "location"
	MessageTypeSticker  = "sticker"
)

// Settings table keys consumed by the dispatch, reminder, and fan-out paths.
const (
	SettingLineChannelAccessToken = "line_channel_access_token"
	SettingLineNotifyToken        = "line_notify_token"
	SettingSlackWebhookURL        = "slack_webhook_url"
)

// User represents one remote LINE identity. Created on first contact and
// updated in place on repeat contact.
type User struct {
	ID            int64          `db:"id"`
	LineUserID    string         `db:"line_user_id"`
	DisplayName   sql.NullString `db:"display_name"`
	PictureURL    sql.NullString `db:"picture_url"`
	StatusMessage sql.NullString `db:"status_message"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

// Message is one received inbound event of message type. Append-only.
type Message struct {
	ID          int64          `db:"id"`
	LineUserID  string         `db:"line_user_id"`
	MessageType string         `db:"message_type"`
	MessageText sql.NullString `db:"message_text"`
	MessageData sql.NullString `db:"message_data"`
	Timestamp   time.Time      `db:"timestamp"`
}

// ScheduledMessage is a unit of deferred outbound delivery. A null
// LineUserID means broadcast to all followers. ScheduleTime is stored as
// RFC3339 text; a malformed value is a data-entry bug the dispatch engine
// skips without flipping status. CronExpression is reserved for recurring
// sends and is not evaluated by the dispatch loop.
type ScheduledMessage struct {
	ID             int64          `db:"id"`
	LineUserID     sql.NullString `db:"line_user_id"`
	MessageText    string         `db:"message_text"`
	ScheduleTime   string         `db:"schedule_time"`
	CronExpression sql.NullString `db:"cron_expression"`
	Status         string         `db:"status"`
	SentAt         sql.NullTime   `db:"sent_at"`
	ErrorMessage   sql.NullString `db:"error_message"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

// CalendarEvent is a reminder-bearing appointment. ReminderSent is the sole
// idempotency guard against duplicate reminders: once true it never reverts.
type CalendarEvent struct {
	ID               int64          `db:"id"`
	LineUserID       string         `db:"line_user_id"`
	EventTitle       string         `db:"event_title"`
	EventDescription sql.NullString `db:"event_description"`
	EventTime        string         `db:"event_time"`
	ReminderSent     bool           `db:"reminder_sent"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

// NotificationLog is the audit record of one fan-out attempt. Append-only.
type NotificationLog struct {
	ID               int64          `db:"id"`
	NotificationType string         `db:"notification_type"`
	Recipient        string         `db:"recipient"`
	Message          string         `db:"message"`
	Status           string         `db:"status"`
	ErrorMessage     sql.NullString `db:"error_message"`
	SentAt           time.Time      `db:"sent_at"`
}

// Setting is one key/value row of the settings table.
type Setting struct {
	Key         string         `db:"key"`
	Value       string         `db:"value"`
	Description sql.NullString `db:"description"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}
