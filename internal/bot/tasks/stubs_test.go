package tasks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"linebridge/internal/database"
	"linebridge/internal/line"
)

// stubStore implements the subset of database.Store the task engines use.
// The embedded interface panics on anything a test didn't expect.
type stubStore struct {
	database.Store

	pending   []database.ScheduledMessage
	dueEvents []database.CalendarEvent
	settings  map[string]string

	sentIDs     []int64
	failedIDs   map[int64]string
	remindedIDs []int64

	transitionApplied bool
}

func newStubStore() *stubStore {
	return &stubStore{
		settings:          map[string]string{},
		failedIDs:         map[int64]string{},
		transitionApplied: true,
	}
}

func (s *stubStore) ListPendingScheduledMessages(context.Context) ([]database.ScheduledMessage, error) {
	return s.pending, nil
}

func (s *stubStore) MarkScheduledMessageSent(_ context.Context, id int64) (bool, error) {
	s.sentIDs = append(s.sentIDs, id)
	return s.transitionApplied, nil
}

func (s *stubStore) MarkScheduledMessageFailed(_ context.Context, id int64, errMsg string) (bool, error) {
	s.failedIDs[id] = errMsg
	return s.transitionApplied, nil
}

func (s *stubStore) ListDueCalendarEvents(context.Context, time.Time, time.Duration) ([]database.CalendarEvent, error) {
	return s.dueEvents, nil
}

func (s *stubStore) MarkReminderSent(_ context.Context, id int64) (bool, error) {
	s.remindedIDs = append(s.remindedIDs, id)
	return s.transitionApplied, nil
}

func (s *stubStore) GetSetting(_ context.Context, key string) (string, error) {
	return s.settings[key], nil
}

// fakeSender records delivery attempts and fails those whose text matches
// failText.
type fakeSender struct {
	pushes     []pushCall
	broadcasts [][]line.Message
	failText   string
}

type pushCall struct {
	To       string
	Messages []line.Message
}

func (f *fakeSender) Push(_ context.Context, to string, messages []line.Message) error {
	f.pushes = append(f.pushes, pushCall{To: to, Messages: messages})
	if f.failText != "" && len(messages) > 0 && messages[0].Text == f.failText {
		return fmt.Errorf("LINE API error: delivery rejected")
	}
	return nil
}

func (f *fakeSender) Reply(context.Context, string, []line.Message) error {
	return nil
}

func (f *fakeSender) Broadcast(_ context.Context, messages []line.Message) error {
	f.broadcasts = append(f.broadcasts, messages)
	if f.failText != "" && len(messages) > 0 && messages[0].Text == f.failText {
		return fmt.Errorf("LINE API error: delivery rejected")
	}
	return nil
}

func (f *fakeSender) GetProfile(context.Context, string) (*line.Profile, error) {
	return nil, fmt.Errorf("not implemented")
}

func testDeps(store *stubStore, sender *fakeSender) TaskDeps {
	return TaskDeps{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:  store,
		NewSender: func(string) line.Sender {
			return sender
		},
	}
}
