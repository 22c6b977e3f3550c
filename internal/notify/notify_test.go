package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linebridge/internal/database"
)

// stubStore backs the service with in-memory settings and a recorded audit
// trail. The embedded interface panics on anything a test didn't expect.
type stubStore struct {
	database.Store

	settings map[string]string
	logged   []database.NotificationLog
}

func newStubStore() *stubStore {
	return &stubStore{settings: map[string]string{}}
}

func (s *stubStore) GetSetting(_ context.Context, key string) (string, error) {
	return s.settings[key], nil
}

func (s *stubStore) LogNotification(_ context.Context, entry *database.NotificationLog) error {
	s.logged = append(s.logged, *entry)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSendDeliversToBothChannels(t *testing.T) {
	var lineAuth, lineBody string
	lineSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lineAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		lineBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer lineSrv.Close()

	var slackPayload map[string]string
	slackSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&slackPayload))
		w.WriteHeader(http.StatusOK)
	}))
	defer slackSrv.Close()

	store := newStubStore()
	store.settings[database.SettingLineNotifyToken] = "notify-token-12345"
	store.settings[database.SettingSlackWebhookURL] = slackSrv.URL

	svc := NewService(store, discardLogger(), WithLineNotifyURL(lineSrv.URL))
	svc.Send(context.Background(), "server down")

	assert.Equal(t, "Bearer notify-token-12345", lineAuth)
	assert.Contains(t, lineBody, "message=server+down")
	assert.Equal(t, "server down", slackPayload["text"])

	require.Len(t, store.logged, 2)
	assert.Equal(t, ChannelLineNotify, store.logged[0].NotificationType)
	assert.Equal(t, "success", store.logged[0].Status)
	assert.Equal(t, ChannelSlack, store.logged[1].NotificationType)
	assert.Equal(t, "success", store.logged[1].Status)
}

func TestSendChannelFailureIsIsolated(t *testing.T) {
	lineSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer lineSrv.Close()

	slackDelivered := false
	slackSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slackDelivered = true
		w.WriteHeader(http.StatusOK)
	}))
	defer slackSrv.Close()

	store := newStubStore()
	store.settings[database.SettingLineNotifyToken] = "bad-token"
	store.settings[database.SettingSlackWebhookURL] = slackSrv.URL

	svc := NewService(store, discardLogger(), WithLineNotifyURL(lineSrv.URL))
	svc.Send(context.Background(), "alert")

	// The LINE Notify rejection never blocks the Slack delivery, and both
	// attempts are audited with their own outcomes.
	assert.True(t, slackDelivered)

	require.Len(t, store.logged, 2)
	assert.Equal(t, ChannelLineNotify, store.logged[0].NotificationType)
	assert.Equal(t, "failed", store.logged[0].Status)
	require.True(t, store.logged[0].ErrorMessage.Valid)
	assert.Contains(t, store.logged[0].ErrorMessage.String, "401")
	assert.Equal(t, ChannelSlack, store.logged[1].NotificationType)
	assert.Equal(t, "success", store.logged[1].Status)
}

func TestSendUnconfiguredChannelsAreSilent(t *testing.T) {
	store := newStubStore()

	svc := NewService(store, discardLogger())
	svc.Send(context.Background(), "nobody is listening")

	// No credentials, no deliveries, no audit rows.
	assert.Empty(t, store.logged)
}

func TestSendAuditsTruncatedRecipient(t *testing.T) {
	lineSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer lineSrv.Close()

	store := newStubStore()
	store.settings[database.SettingLineNotifyToken] = "abcdefghijklmnop"

	svc := NewService(store, discardLogger(), WithLineNotifyURL(lineSrv.URL))
	svc.Send(context.Background(), "hello")

	require.Len(t, store.logged, 1)
	assert.Equal(t, "abcdefghij", store.logged[0].Recipient)
}

func TestTruncateSecret(t *testing.T) {
	assert.Equal(t, "short", truncateSecret("short", 10))
	assert.Equal(t, "exactlyten", truncateSecret("exactlyten", 10))
	assert.Equal(t, "0123456789", truncateSecret("0123456789abc", 10))
}
