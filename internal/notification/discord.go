// File: internal/notification/discord.go
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/artematbio/bio-whale-monitor/internal/config"
	"github.com/artematbio/bio-whale-monitor/pkg/utils"
)

// DiscordSender delivers messages through a Discord webhook
type DiscordSender struct {
	config     *config.DiscordConfig
	httpClient *http.Client
}

type discordRequest struct {
	Content  string `json:"content"`
	Username string `json:"username,omitempty"`
}

// NewDiscordSender creates a new Discord webhook sender
func NewDiscordSender(cfg *config.DiscordConfig, timeout time.Duration) *DiscordSender {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &DiscordSender{
		config: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// Name returns the channel name
func (ds *DiscordSender) Name() string {
	return "discord"
}

// Send posts one message to the configured webhook
func (ds *DiscordSender) Send(ctx context.Context, msg *Message) error {
	// Discord caps content at 2000 characters
	text := msg.Text
	if len(text) > 2000 {
		text = text[:1997] + "..."
	}

	body, err := json.Marshal(discordRequest{
		Content:  text,
		Username: "whale-monitor",
	})
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to marshal Discord payload", err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ds.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to create Discord request", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ds.httpClient.Do(req)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeConnection, "Failed to reach Discord webhook", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return utils.NewAppError(utils.ErrCodeExternal,
			fmt.Sprintf("Discord webhook returned status %d", resp.StatusCode), string(respBody))
	}
	return utils.NewAppError(utils.ErrCodeValidation,
		fmt.Sprintf("Discord webhook rejected message with status %d", resp.StatusCode), string(respBody))
}
