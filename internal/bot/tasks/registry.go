package tasks

import (
	"context"

	"linebridge/internal/config"
)

// ScheduledTaskFunc is the signature for all scheduled tasks. The context
// provided by the scheduler should be respected for cancellation; a returned
// error is reported by the scheduler and never stops future ticks.
type ScheduledTaskFunc func(ctx context.Context) error

// RegisterAllTasks returns the map of all scheduled tasks keyed by the task
// names used in the scheduler configuration.
func RegisterAllTasks(deps TaskDeps) map[string]ScheduledTaskFunc {
	tasks := map[string]ScheduledTaskFunc{
		config.TaskMessageDispatch:  newMessageDispatchTask(deps),
		config.TaskCalendarReminder: newCalendarReminderTask(deps),
	}

	deps.Logger.Info("Initialized scheduled tasks", "count", len(tasks))
	return tasks
}
