// File: internal/notification/telegram.go
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

// TelegramSender delivers messages through the Telegram Bot API
type TelegramSender struct {
	config     *config.TelegramConfig
	httpClient *http.Client
}

type telegramRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// NewTelegramSender creates a new Telegram sender
func NewTelegramSender(cfg *config.TelegramConfig, timeout time.Duration) *TelegramSender {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &TelegramSender{
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
func (ts *TelegramSender) Name() string {
	return "telegram"
}

// Send delivers one message via the sendMessage endpoint. Rate limiting and
// server errors come back as retryable external errors; a rejected request
// (bad chat ID, malformed markup) is permanent.
func (ts *TelegramSender) Send(ctx context.Context, msg *Message) error {
	payload := telegramRequest{
		ChatID:                ts.config.ChatID,
		Text:                  msg.Text,
		DisableWebPagePreview: true,
	}
	if msg.Markdown {
		payload.ParseMode = "Markdown"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to marshal Telegram payload", err.Error())
	}

	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", ts.config.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to create Telegram request", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeConnection, "Failed to reach Telegram API", err.Error())
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return utils.NewAppError(utils.ErrCodeExternal,
			fmt.Sprintf("Telegram API returned status %d", resp.StatusCode), string(respBody))
	}

	var apiResp telegramResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return utils.NewAppError(utils.ErrCodeExternal, "Failed to decode Telegram response", err.Error())
	}
	if !apiResp.OK {
		return utils.NewAppError(utils.ErrCodeValidation, "Telegram API rejected message", apiResp.Description)
	}

	return nil
}
