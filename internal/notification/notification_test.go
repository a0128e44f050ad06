// File: internal/notification/notification_test.go
package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artematbio/bio-whale-monitor/internal/config"
	"github.com/artematbio/bio-whale-monitor/internal/models"
	"github.com/artematbio/bio-whale-monitor/pkg/utils"
)

func init() {
	utils.InitLogger("error", "text", "stdout", "")
}

// stubSender is a scriptable channel for manager tests.
type stubSender struct {
	name  string
	err   error
	calls int
}

func (s *stubSender) Name() string { return s.name }
func (s *stubSender) Send(ctx context.Context, msg *Message) error {
	s.calls++
	return s.err
}

func testMessage() *Message {
	return &Message{
		Subject:  "Large VITA transfer (VitaDAO)",
		Text:     "*Large VITA transfer detected*",
		Severity: models.SeverityWarning,
		Markdown: true,
	}
}

func TestManagerChannelConstruction(t *testing.T) {
	// The log channel is always on, external channels only when configured.
	nm := NewNotificationManager(&config.NotificationConfig{Enabled: true})
	require.Len(t, nm.senders, 1)
	assert.Equal(t, "log", nm.senders[0].Name())

	nm = NewNotificationManager(&config.NotificationConfig{
		Enabled:  true,
		Telegram: config.TelegramConfig{Enabled: true, BotToken: "123:abc", ChatID: "-100"},
		Discord:  config.DiscordConfig{Enabled: true, WebhookURL: "https://discord.example/hook"},
	})
	require.Len(t, nm.senders, 3)

	// Enabled without credentials stays off.
	nm = NewNotificationManager(&config.NotificationConfig{
		Enabled:  true,
		Telegram: config.TelegramConfig{Enabled: true},
	})
	assert.Len(t, nm.senders, 1)
}

func TestManagerFanOut(t *testing.T) {
	good := &stubSender{name: "good"}
	bad := &stubSender{name: "bad", err: utils.NewAppError(utils.ErrCodeExternal, "Down", "")}

	nm := NewNotificationManager(&config.NotificationConfig{Enabled: true})
	nm.senders = []Sender{good, bad}

	// One healthy channel is enough for overall success.
	err := nm.Send(context.Background(), testMessage())
	assert.NoError(t, err)
	assert.Equal(t, 1, good.calls)
	assert.Equal(t, 1, bad.calls)

	stats := nm.GetStats()
	assert.Equal(t, uint64(1), stats.TotalSent)
	assert.Equal(t, uint64(1), stats.SentByChannel["good"])
}

func TestManagerAllChannelsFailed(t *testing.T) {
	bad := &stubSender{name: "bad", err: utils.NewAppError(utils.ErrCodeExternal, "Down", "")}

	nm := NewNotificationManager(&config.NotificationConfig{Enabled: true})
	nm.senders = []Sender{bad}

	err := nm.Send(context.Background(), testMessage())
	assert.Error(t, err)
	assert.True(t, utils.IsTransient(err))

	stats := nm.GetStats()
	assert.Equal(t, uint64(1), stats.TotalFailed)
	require.NotNil(t, stats.LastError)
}

func TestManagerLogAloneDoesNotMaskExternalOutage(t *testing.T) {
	// When external channels are configured the log channel does not count
	// as delivery; a full outage must surface so the alert is retried.
	bad := &stubSender{name: "telegram", err: utils.NewAppError(utils.ErrCodeExternal, "Down", "")}

	nm := NewNotificationManager(&config.NotificationConfig{Enabled: true})
	nm.senders = []Sender{NewLogSender(), bad}

	err := nm.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.True(t, utils.IsTransient(err))
	assert.Equal(t, 1, bad.calls)

	stats := nm.GetStats()
	assert.Equal(t, uint64(1), stats.TotalFailed)
	assert.Equal(t, uint64(1), stats.SentByChannel["log"], "the log line is still written")
}

func TestManagerLogOnlyDeploymentDelivers(t *testing.T) {
	nm := NewNotificationManager(&config.NotificationConfig{Enabled: true})
	require.Len(t, nm.senders, 1)

	require.NoError(t, nm.Send(context.Background(), testMessage()))

	stats := nm.GetStats()
	assert.Equal(t, uint64(1), stats.TotalSent)
	assert.Equal(t, uint64(0), stats.TotalFailed)
}

func TestManagerDisabled(t *testing.T) {
	sender := &stubSender{name: "stub"}
	nm := NewNotificationManager(&config.NotificationConfig{Enabled: false})
	nm.senders = []Sender{sender}

	require.NoError(t, nm.Send(context.Background(), testMessage()))
	assert.Equal(t, 0, sender.calls, "disabled notifications must not reach channels")
}

func TestManagerLifecycle(t *testing.T) {
	nm := NewNotificationManager(&config.NotificationConfig{Enabled: true})
	ctx := context.Background()

	assert.False(t, nm.IsHealthy())
	require.NoError(t, nm.Start(ctx))
	assert.True(t, nm.IsHealthy())
	assert.Error(t, nm.Start(ctx), "double start must be rejected")
	require.NoError(t, nm.Stop())
	assert.False(t, nm.IsHealthy())
}

func TestDiscordSend(t *testing.T) {
	var got discordRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	sender := NewDiscordSender(&config.DiscordConfig{Enabled: true, WebhookURL: server.URL}, 5*time.Second)
	require.NoError(t, sender.Send(context.Background(), testMessage()))
	assert.Equal(t, "*Large VITA transfer detected*", got.Content)
	assert.Equal(t, "whale-monitor", got.Username)
}

func TestDiscordTruncatesLongMessages(t *testing.T) {
	var got discordRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	msg := testMessage()
	msg.Text = strings.Repeat("x", 2500)

	sender := NewDiscordSender(&config.DiscordConfig{Enabled: true, WebhookURL: server.URL}, 5*time.Second)
	require.NoError(t, sender.Send(context.Background(), msg))
	assert.Len(t, got.Content, 2000)
	assert.True(t, strings.HasSuffix(got.Content, "..."))
}

func TestDiscordErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusBadGateway, true},
		{"rejected", http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			sender := NewDiscordSender(&config.DiscordConfig{Enabled: true, WebhookURL: server.URL}, 5*time.Second)
			err := sender.Send(context.Background(), testMessage())
			require.Error(t, err)
			assert.Equal(t, tt.transient, utils.IsTransient(err))
		})
	}
}

func TestLogSenderNeverFails(t *testing.T) {
	sender := NewLogSender()
	for _, severity := range []models.Severity{models.SeverityInfo, models.SeverityWarning, models.SeverityCritical} {
		msg := testMessage()
		msg.Severity = severity
		assert.NoError(t, sender.Send(context.Background(), msg))
	}
}
