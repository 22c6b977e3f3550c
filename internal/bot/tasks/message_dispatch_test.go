package tasks

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linebridge/internal/database"
)

func pendingMessage(id int64, userID, text string, scheduleTime string) database.ScheduledMessage {
	msg := database.ScheduledMessage{
		ID:           id,
		MessageText:  text,
		ScheduleTime: scheduleTime,
		Status:       database.StatusPending,
	}
	if userID != "" {
		msg.LineUserID = sql.NullString{String: userID, Valid: true}
	}
	return msg
}

func TestMessageDispatchSendsDuePush(t *testing.T) {
	store := newStubStore()
	store.settings[database.SettingLineChannelAccessToken] = "token"
	store.pending = []database.ScheduledMessage{
		pendingMessage(1, "U1", "hello", time.Now().UTC().Add(-5*time.Minute).Format(time.RFC3339)),
	}
	sender := &fakeSender{}

	task := newMessageDispatchTask(testDeps(store, sender))
	require.NoError(t, task(context.Background()))

	require.Len(t, sender.pushes, 1)
	assert.Equal(t, "U1", sender.pushes[0].To)
	require.Len(t, sender.pushes[0].Messages, 1)
	assert.Equal(t, "hello", sender.pushes[0].Messages[0].Text)

	assert.Equal(t, []int64{1}, store.sentIDs)
	assert.Empty(t, store.failedIDs)
}

func TestMessageDispatchBroadcastsWithoutTarget(t *testing.T) {
	store := newStubStore()
	store.settings[database.SettingLineChannelAccessToken] = "token"
	store.pending = []database.ScheduledMessage{
		pendingMessage(7, "", "to everyone", time.Now().UTC().Add(-time.Minute).Format(time.RFC3339)),
	}
	sender := &fakeSender{}

	task := newMessageDispatchTask(testDeps(store, sender))
	require.NoError(t, task(context.Background()))

	assert.Empty(t, sender.pushes)
	require.Len(t, sender.broadcasts, 1)
	assert.Equal(t, []int64{7}, store.sentIDs)
}

func TestMessageDispatchLeavesFutureRowsPending(t *testing.T) {
	store := newStubStore()
	store.settings[database.SettingLineChannelAccessToken] = "token"
	store.pending = []database.ScheduledMessage{
		pendingMessage(1, "U1", "later", time.Now().UTC().Add(time.Hour).Format(time.RFC3339)),
	}
	sender := &fakeSender{}

	task := newMessageDispatchTask(testDeps(store, sender))
	require.NoError(t, task(context.Background()))

	assert.Empty(t, sender.pushes)
	assert.Empty(t, store.sentIDs)
	assert.Empty(t, store.failedIDs)
}

func TestMessageDispatchSkipsMalformedScheduleTime(t *testing.T) {
	store := newStubStore()
	store.settings[database.SettingLineChannelAccessToken] = "token"
	store.pending = []database.ScheduledMessage{
		pendingMessage(1, "U1", "broken", "tomorrow at noon"),
	}
	sender := &fakeSender{}

	task := newMessageDispatchTask(testDeps(store, sender))
	require.NoError(t, task(context.Background()))

	// A malformed row is neither sent nor failed: the status stays pending.
	assert.Empty(t, sender.pushes)
	assert.Empty(t, store.sentIDs)
	assert.Empty(t, store.failedIDs)
}

func TestMessageDispatchMissingTokenStopsTick(t *testing.T) {
	store := newStubStore()
	store.pending = []database.ScheduledMessage{
		pendingMessage(1, "U1", "hello", time.Now().UTC().Add(-time.Minute).Format(time.RFC3339)),
	}
	sender := &fakeSender{}

	task := newMessageDispatchTask(testDeps(store, sender))
	require.Error(t, task(context.Background()))

	assert.Empty(t, sender.pushes)
	assert.Empty(t, sender.broadcasts)
	assert.Empty(t, store.sentIDs)
	assert.Empty(t, store.failedIDs)
}

func TestMessageDispatchFailureDoesNotBlockLaterRows(t *testing.T) {
	now := time.Now().UTC()
	store := newStubStore()
	store.settings[database.SettingLineChannelAccessToken] = "token"
	store.pending = []database.ScheduledMessage{
		pendingMessage(1, "U1", "doomed", now.Add(-2*time.Minute).Format(time.RFC3339)),
		pendingMessage(2, "U2", "fine", now.Add(-time.Minute).Format(time.RFC3339)),
	}
	sender := &fakeSender{failText: "doomed"}

	task := newMessageDispatchTask(testDeps(store, sender))
	require.NoError(t, task(context.Background()))

	require.Len(t, sender.pushes, 2)
	assert.Equal(t, "U1", sender.pushes[0].To)
	assert.Equal(t, "U2", sender.pushes[1].To)

	assert.Equal(t, []int64{2}, store.sentIDs)
	require.Contains(t, store.failedIDs, int64(1))
	assert.Contains(t, store.failedIDs[1], "delivery rejected")
}

func TestMessageDispatchProcessesInScheduleOrder(t *testing.T) {
	now := time.Now().UTC()
	store := newStubStore()
	store.settings[database.SettingLineChannelAccessToken] = "token"
	store.pending = []database.ScheduledMessage{
		pendingMessage(3, "U1", "first", now.Add(-3*time.Hour).Format(time.RFC3339)),
		pendingMessage(1, "U2", "second", now.Add(-2*time.Hour).Format(time.RFC3339)),
		pendingMessage(2, "U3", "third", now.Add(-time.Hour).Format(time.RFC3339)),
	}
	sender := &fakeSender{}

	task := newMessageDispatchTask(testDeps(store, sender))
	require.NoError(t, task(context.Background()))

	require.Len(t, sender.pushes, 3)
	assert.Equal(t, "first", sender.pushes[0].Messages[0].Text)
	assert.Equal(t, "second", sender.pushes[1].Messages[0].Text)
	assert.Equal(t, "third", sender.pushes[2].Messages[0].Text)
}

func TestMessageDispatchNoPendingRowsSkipsTokenLookup(t *testing.T) {
	store := newStubStore()
	sender := &fakeSender{}

	task := newMessageDispatchTask(testDeps(store, sender))
	require.NoError(t, task(context.Background()))

	assert.Empty(t, sender.pushes)
}
