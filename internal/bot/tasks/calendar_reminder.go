package tasks

import (
	"context"
	"fmt"
	"time"

	"linebridge/internal/config"
	"linebridge/internal/database"
	"linebridge/internal/line"
)

// reminderWindow bounds how far ahead an event may be for its reminder to go
// out. Events past the window close without a reminder if every attempt
// inside it failed.
const reminderWindow = 24 * time.Hour

// newCalendarReminderTask creates the calendar reminder tick. Unlike the
// dispatch engine, a failed reminder leaves the row untouched: the event is
// re-selected on the next tick and retried until the send succeeds or the
// window closes. The reminder_sent flag flips exactly once, strictly after a
// successful delivery.
func newCalendarReminderTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", config.TaskCalendarReminder)

	return func(ctx context.Context) error {
		now := time.Now().UTC()

		events, err := deps.Store.ListDueCalendarEvents(ctx, now, reminderWindow)
		if err != nil {
			return fmt.Errorf("failed to list due calendar events: %w", err)
		}
		if len(events) == 0 {
			return nil
		}

		log.InfoContext(ctx, "Found calendar events needing reminders", "count", len(events))

		token, err := deps.Store.GetSetting(ctx, database.SettingLineChannelAccessToken)
		if err != nil {
			return fmt.Errorf("failed to read channel access token: %w", err)
		}
		if token == "" {
			log.WarnContext(ctx, "LINE channel access token not configured, skipping reminders")
			return nil
		}

		sender := deps.NewSender(token)

		for _, event := range events {
			text, err := renderReminder(&event, now)
			if err != nil {
				log.ErrorContext(ctx, "Invalid event time, skipping reminder",
					"event_id", event.ID, "event_time", event.EventTime, "error", err)
				continue
			}

			if err := sender.Push(ctx, event.LineUserID, []line.Message{line.NewTextMessage(text)}); err != nil {
				// Flag stays false; the event is retried on the next tick.
				log.ErrorContext(ctx, "Failed to send reminder",
					"event_id", event.ID, "error", err)
				continue
			}

			applied, err := deps.Store.MarkReminderSent(ctx, event.ID)
			if err != nil {
				log.ErrorContext(ctx, "Failed to mark reminder sent",
					"event_id", event.ID, "error", err)
				continue
			}
			if !applied {
				log.WarnContext(ctx, "Reminder already marked sent", "event_id", event.ID)
				continue
			}

			log.InfoContext(ctx, "Sent reminder",
				"event_id", event.ID, "event_title", event.EventTitle, "user_id", event.LineUserID)
		}

		return nil
	}
}

// renderReminder builds the reminder text with a coarse human time phrase:
// hours remaining when at least an hour away, minutes remaining otherwise.
func renderReminder(event *database.CalendarEvent, now time.Time) (string, error) {
	eventTime, err := time.Parse(time.RFC3339, event.EventTime)
	if err != nil {
		return "", fmt.Errorf("invalid event time: %w", err)
	}

	until := eventTime.Sub(now)

	var timeStr string
	if until >= time.Hour {
		timeStr = fmt.Sprintf("%d時間後", int(until.Hours()))
	} else {
		timeStr = fmt.Sprintf("%d分後", int(until.Minutes()))
	}

	description := "詳細なし"
	if event.EventDescription.Valid && event.EventDescription.String != "" {
		description = event.EventDescription.String
	}

	return fmt.Sprintf("📅 イベントリマインダー\n\n「%s」が%sに開始されます。\n\n%s",
		event.EventTitle, timeStr, description), nil
}
