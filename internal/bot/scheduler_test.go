package bot

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linebridge/internal/bot/tasks"
	"linebridge/internal/config"
)

func newTestScheduler(t *testing.T, cfg *config.SchedulerConfig, taskMap map[string]tasks.ScheduledTaskFunc) (*Scheduler, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	s, err := NewScheduler(log, cfg, taskMap)
	require.NoError(t, err)
	return s, &buf
}

func TestRunTaskContainsPanic(t *testing.T) {
	s, buf := newTestScheduler(t, nil, nil)

	require.NotPanics(t, func() {
		s.runTask(context.Background(), "exploding", func(context.Context) error {
			panic("boom")
		})
	})

	assert.Contains(t, buf.String(), "Scheduled task panicked")
	assert.Contains(t, buf.String(), "boom")
}

func TestRunTaskLogsTaskError(t *testing.T) {
	s, buf := newTestScheduler(t, nil, nil)

	s.runTask(context.Background(), "flaky", func(context.Context) error {
		return fmt.Errorf("tick went wrong")
	})

	assert.Contains(t, buf.String(), "Scheduled task failed")
	assert.Contains(t, buf.String(), "tick went wrong")
}

func TestRunTaskSuccessIsQuiet(t *testing.T) {
	s, buf := newTestScheduler(t, nil, nil)

	var ran atomic.Bool
	s.runTask(context.Background(), "healthy", func(context.Context) error {
		ran.Store(true)
		return nil
	})

	assert.True(t, ran.Load())
	assert.NotContains(t, buf.String(), "failed")
	assert.NotContains(t, buf.String(), "panicked")
}

func TestSchedulerSkipsDisabledAndUnknownTasks(t *testing.T) {
	cfg := &config.SchedulerConfig{
		Tasks: map[string]config.TaskConfig{
			"disabled":    {Schedule: "* * * * *", Enabled: false},
			"unknown":     {Schedule: "* * * * *", Enabled: true},
			"unscheduled": {Schedule: "", Enabled: true},
		},
	}

	s, buf := newTestScheduler(t, cfg, map[string]tasks.ScheduledTaskFunc{})
	require.NoError(t, s.Start())
	defer func() { _ = s.Stop() }()

	assert.Contains(t, buf.String(), "Skipping disabled task")
	assert.Contains(t, buf.String(), "not found in registry")
	assert.Contains(t, buf.String(), "empty schedule")
	assert.Contains(t, buf.String(), "tasks_scheduled=0")
}

func TestSchedulerDoubleStartFails(t *testing.T) {
	s, _ := newTestScheduler(t, nil, nil)
	require.NoError(t, s.Start())
	defer func() { _ = s.Stop() }()

	assert.Error(t, s.Start())
}

func TestSchedulerStopWithoutStart(t *testing.T) {
	s, _ := newTestScheduler(t, nil, nil)
	assert.NoError(t, s.Stop())
}
