// 외부 Slack API와 통신하는 알림 채널
//
// 설정 (config.SlackConfig):
//   - SLACK_WEBHOOK_URL: Incoming Webhook URL (있으면 우선 사용)
//   - SLACK_BOT_TOKEN: Slack Bot Token (xoxb-...)
//   - SLACK_CHANNEL_ID: Slack 채널 ID (C...)
//
// Webhook URL이 없으면 Bot Token + chat.postMessage로 전송

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/kube-rca/bugsys/internal/config"
	"github.com/kube-rca/bugsys/internal/model"
)

const slackPostMessageURL = "https://slack.com/api/chat.postMessage"

// SlackClient 구조체 정의
type SlackClient struct {
	webhookURL  string
	botToken    string
	channelID   string
	apiURL      string
	frontendURL string
	httpClient  *http.Client
}

// SlackMessage(메시지 내용) 구조체 정의
type SlackMessage struct {
	Channel     string            `json:"channel,omitempty"`     // 메시지를 보낼 채널 ID (bot 방식)
	Text        string            `json:"text,omitempty"`        // 메시지 본문
	Attachments []SlackAttachment `json:"attachments,omitempty"` // 색상, 필드
}

// SlackAttachment(메시지 포맷) 구조체 정의
type SlackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text"`
	Footer string       `json:"footer,omitempty"`
	Ts     int64        `json:"ts,omitempty"`
	Fields []SlackField `json:"fields,omitempty"`
}

// SlackField(메시지 포맷 필드) 구조체 정의
type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"` // true면 좁은 너비 (한 줄에 2개)
}

// SlackResponse(chat.postMessage 응답) 구조체 정의
type SlackResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	TS    string `json:"ts,omitempty"`
}

// SlackClient 객체 생성
func NewSlackClient(cfg config.SlackConfig, frontendURL string) *SlackClient {
	return &SlackClient{
		webhookURL:  cfg.WebhookURL,
		botToken:    cfg.BotToken,
		channelID:   cfg.ChannelID,
		apiURL:      slackPostMessageURL,
		frontendURL: frontendURL,
		httpClient:  newHTTPClient(defaultHTTPTimeout),
	}
}

func (c *SlackClient) Name() string { return "slack" }

// Webhook URL 또는 Bot Token + Channel ID 중 하나가 설정되어 있는지 체크
func (c *SlackClient) IsConfigured() bool {
	return c.webhookURL != "" || (c.botToken != "" && c.channelID != "")
}

// Send - 알림을 Slack으로 전송
func (c *SlackClient) Send(ctx context.Context, payload model.AlertPayload) error {
	if !c.IsConfigured() {
		return fmt.Errorf("slack webhook url or bot token not configured")
	}

	msg := c.buildMessage(payload)

	// Incoming Webhook: 응답 body는 "ok" 텍스트
	if c.webhookURL != "" {
		_, err := postJSON(ctx, c.httpClient, c.webhookURL, nil, msg)
		return err
	}

	msg.Channel = c.channelID
	body, err := postJSON(ctx, c.httpClient, c.apiURL, map[string]string{
		"Authorization": "Bearer " + c.botToken,
	}, msg)
	if err != nil {
		return err
	}

	var slackResp SlackResponse
	if err := json.Unmarshal(body, &slackResp); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if !slackResp.OK {
		return fmt.Errorf("slack API error: %s", slackResp.Error)
	}
	return nil
}

func (c *SlackClient) buildMessage(p model.AlertPayload) SlackMessage {
	fields := []SlackField{
		{Title: "Severity", Value: string(p.Severity), Short: true},
	}
	if p.Component != "" {
		fields = append(fields, SlackField{Title: "Component", Value: p.Component, Short: true})
	}
	if p.Source != "" {
		fields = append(fields, SlackField{Title: "Source", Value: p.Source, Short: true})
	}
	if p.ErrorID != "" {
		value := p.ErrorID
		if c.frontendURL != "" {
			value = fmt.Sprintf("<%s/errors/%s|%s>", strings.TrimRight(c.frontendURL, "/"), p.ErrorID, p.ErrorID)
		}
		fields = append(fields, SlackField{Title: "Error ID", Value: value, Short: false})
	}

	ts := p.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return SlackMessage{
		Text: fmt.Sprintf("%s %s", severityEmoji(p.Severity), p.Title),
		Attachments: []SlackAttachment{
			{
				Color:  severityColor(p.Severity),
				Title:  fmt.Sprintf("%s [%s] %s", severityEmoji(p.Severity), p.Severity, p.Title),
				Text:   toSlackMarkdown(p.Message),
				Fields: fields,
				Footer: "bugsys",
				Ts:     ts.Unix(),
			},
		},
	}
}

// Severity에 따른 메시지 색상 반환
func severityColor(severity model.Severity) string {
	switch severity {
	case model.SeverityCritical:
		return "#dc3545" // red
	case model.SeverityHigh:
		return "#fd7e14" // orange
	case model.SeverityMedium:
		return "#ffc107" // yellow
	default:
		return "#17a2b8" // blue
	}
}

func severityEmoji(severity model.Severity) string {
	switch severity {
	case model.SeverityCritical:
		return "🚨"
	case model.SeverityHigh:
		return "🔥"
	case model.SeverityMedium:
		return "⚠️"
	default:
		return "ℹ️"
	}
}

var (
	slackBoldPattern    = regexp.MustCompile(`\*\*(.+?)\*\*`)
	slackHeadingPattern = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	slackCodePattern    = regexp.MustCompile("(?s)```.*?```|`[^`\n]*`")
)

// toSlackMarkdown - Markdown(**bold**, ### heading)을 Slack mrkdwn으로 변환
// 코드 블록/인라인 코드 내부는 변환하지 않음
func toSlackMarkdown(text string) string {
	var codes []string
	protected := slackCodePattern.ReplaceAllStringFunc(text, func(code string) string {
		codes = append(codes, code)
		return fmt.Sprintf("\x00%d\x00", len(codes)-1)
	})

	protected = slackHeadingPattern.ReplaceAllString(protected, "*$1*")
	protected = slackBoldPattern.ReplaceAllString(protected, "*$1*")

	for i, code := range codes {
		protected = strings.Replace(protected, fmt.Sprintf("\x00%d\x00", i), code, 1)
	}
	return protected
}
