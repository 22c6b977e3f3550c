package tasks

import (
	"context"
	"fmt"
	"time"

	"linebridge/internal/config"
	"linebridge/internal/database"
	"linebridge/internal/line"
)

// newMessageDispatchTask creates the scheduled-message dispatch tick. Each
// tick scans pending rows in schedule-time order and delivers the due ones,
// flipping each processed row to exactly one terminal status: sent on
// success, failed on delivery error. Rows with a malformed schedule time are
// skipped without a status change, and future rows wait for a later tick.
func newMessageDispatchTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", config.TaskMessageDispatch)

	return func(ctx context.Context) error {
		pending, err := deps.Store.ListPendingScheduledMessages(ctx)
		if err != nil {
			return fmt.Errorf("failed to list pending messages: %w", err)
		}
		if len(pending) == 0 {
			return nil
		}

		token, err := deps.Store.GetSetting(ctx, database.SettingLineChannelAccessToken)
		if err != nil {
			return fmt.Errorf("failed to read channel access token: %w", err)
		}
		if token == "" {
			// Configuration gap: hard stop for this tick's sends, reported once.
			log.ErrorContext(ctx, "LINE channel access token not configured, skipping sends",
				"pending", len(pending))
			return fmt.Errorf("LINE channel access token not configured")
		}

		sender := deps.NewSender(token)
		now := time.Now().UTC()
		sent, failed := 0, 0

		for _, msg := range pending {
			scheduleTime, err := time.Parse(time.RFC3339, msg.ScheduleTime)
			if err != nil {
				// Data-entry bug, not a delivery failure: leave the row pending.
				log.WarnContext(ctx, "Invalid schedule time format, skipping",
					"message_id", msg.ID, "schedule_time", msg.ScheduleTime)
				continue
			}
			if scheduleTime.After(now) {
				continue
			}

			if err := dispatchOne(ctx, sender, &msg); err != nil {
				failed++
				log.ErrorContext(ctx, "Failed to send scheduled message",
					"message_id", msg.ID, "error", err)

				applied, markErr := deps.Store.MarkScheduledMessageFailed(ctx, msg.ID, err.Error())
				if markErr != nil {
					log.ErrorContext(ctx, "Failed to record delivery failure",
						"message_id", msg.ID, "error", markErr)
				} else if !applied {
					log.WarnContext(ctx, "Scheduled message no longer pending, failure not recorded",
						"message_id", msg.ID)
				}
				continue
			}

			sent++
			applied, markErr := deps.Store.MarkScheduledMessageSent(ctx, msg.ID)
			if markErr != nil {
				log.ErrorContext(ctx, "Failed to record delivery success",
					"message_id", msg.ID, "error", markErr)
			} else if !applied {
				// Cancelled between the scan and the send; the delivery itself
				// cannot be recalled but the terminal status stays cancelled.
				log.WarnContext(ctx, "Scheduled message no longer pending, success not recorded",
					"message_id", msg.ID)
			} else {
				log.InfoContext(ctx, "Scheduled message sent", "message_id", msg.ID)
			}
		}

		if sent > 0 || failed > 0 {
			log.InfoContext(ctx, "Dispatch tick finished", "sent", sent, "failed", failed)
		}
		return nil
	}
}

// dispatchOne delivers a single row: push when a target user is set,
// broadcast to all followers otherwise.
func dispatchOne(ctx context.Context, sender line.Sender, msg *database.ScheduledMessage) error {
	messages := []line.Message{line.NewTextMessage(msg.MessageText)}

	if msg.LineUserID.Valid && msg.LineUserID.String != "" {
		return sender.Push(ctx, msg.LineUserID.String, messages)
	}
	return sender.Broadcast(ctx, messages)
}
