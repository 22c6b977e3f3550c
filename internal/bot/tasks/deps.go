// Package tasks implements the periodic jobs driven by the scheduler: the
// scheduled-message dispatch engine and the calendar reminder engine.
package tasks

import (
	"log/slog"

	"linebridge/internal/database"
	"linebridge/internal/line"
)

// SenderFactory builds a delivery client for a channel access token. The
// token lives in the settings table and may change between ticks, so each
// tick constructs its sender from the current value.
type SenderFactory func(accessToken string) line.Sender

// TaskDeps contains the dependencies shared by all scheduled tasks.
type TaskDeps struct {
	Logger    *slog.Logger
	Store     database.Store
	NewSender SenderFactory
}
