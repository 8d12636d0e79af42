// Telegram Bot API 알림 채널
//
// 설정:
//   - TELEGRAM_BOT_TOKEN
//   - TELEGRAM_CHAT_ID

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/kube-rca/bugsys/internal/config"
	"github.com/kube-rca/bugsys/internal/model"
)

const telegramAPIBase = "https://api.telegram.org"

type TelegramClient struct {
	botToken   string
	chatID     string
	apiBase    string
	httpClient *http.Client
}

type TelegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

func NewTelegramClient(cfg config.TelegramConfig) *TelegramClient {
	return &TelegramClient{
		botToken:   cfg.BotToken,
		chatID:     cfg.ChatID,
		apiBase:    telegramAPIBase,
		httpClient: newHTTPClient(defaultHTTPTimeout),
	}
}

func (c *TelegramClient) Name() string { return "telegram" }

func (c *TelegramClient) IsConfigured() bool {
	return c.botToken != "" && c.chatID != ""
}

// Send - sendMessage (HTML parse mode)
func (c *TelegramClient) Send(ctx context.Context, payload model.AlertPayload) error {
	if !c.IsConfigured() {
		return fmt.Errorf("telegram bot token or chat id not configured")
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.apiBase, c.botToken)
	body, err := postJSON(ctx, c.httpClient, url, nil, TelegramMessage{
		ChatID:                c.chatID,
		Text:                  formatTelegramText(payload),
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		// URL에 토큰이 포함되므로 에러 메시지에 노출하지 않음
		return fmt.Errorf("telegram sendMessage failed: %w", redactToken(err, c.botToken))
	}

	var resp telegramResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("telegram API error: %s", resp.Description)
	}
	return nil
}

func formatTelegramText(p model.AlertPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>[%s] %s</b>\n", severityEmoji(p.Severity), strings.ToUpper(string(p.Severity)), html.EscapeString(p.Title))
	if p.Message != "" {
		fmt.Fprintf(&b, "\n%s\n", html.EscapeString(p.Message))
	}
	if p.Component != "" {
		fmt.Fprintf(&b, "\n<b>Component:</b> %s", html.EscapeString(p.Component))
	}
	if p.ErrorID != "" {
		fmt.Fprintf(&b, "\n<b>Error ID:</b> <code>%s</code>", html.EscapeString(p.ErrorID))
	}
	return b.String()
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redactToken(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), token, "***"), err: err}
}
