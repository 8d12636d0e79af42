// Discord Webhook 알림 채널
//
// 설정:
//   - DISCORD_WEBHOOK_URL

package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kube-rca/bugsys/internal/config"
	"github.com/kube-rca/bugsys/internal/model"
)

// Discord embed description 최대 길이
const discordDescriptionLimit = 4096

type DiscordClient struct {
	webhookURL  string
	frontendURL string
	httpClient  *http.Client
}

type DiscordMessage struct {
	Content string         `json:"content,omitempty"`
	Embeds  []DiscordEmbed `json:"embeds"`
}

type DiscordEmbed struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	URL         string              `json:"url,omitempty"`
	Color       int                 `json:"color"`
	Timestamp   string              `json:"timestamp,omitempty"`
	Fields      []DiscordEmbedField `json:"fields,omitempty"`
}

type DiscordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

func NewDiscordClient(cfg config.DiscordConfig, frontendURL string) *DiscordClient {
	return &DiscordClient{
		webhookURL:  cfg.WebhookURL,
		frontendURL: frontendURL,
		httpClient:  newHTTPClient(defaultHTTPTimeout),
	}
}

func (c *DiscordClient) Name() string { return "discord" }

func (c *DiscordClient) IsConfigured() bool {
	return c.webhookURL != ""
}

// Send - Discord webhook은 성공 시 204 No Content
func (c *DiscordClient) Send(ctx context.Context, payload model.AlertPayload) error {
	if !c.IsConfigured() {
		return fmt.Errorf("discord webhook url not configured")
	}
	_, err := postJSON(ctx, c.httpClient, c.webhookURL, nil, c.buildMessage(payload))
	return err
}

func (c *DiscordClient) buildMessage(p model.AlertPayload) DiscordMessage {
	description := p.Message
	if len(description) > discordDescriptionLimit {
		description = description[:discordDescriptionLimit-3] + "..."
	}

	embed := DiscordEmbed{
		Title:       fmt.Sprintf("%s [%s] %s", severityEmoji(p.Severity), p.Severity, p.Title),
		Description: description,
		Color:       discordColor(p.Severity),
		Fields: []DiscordEmbedField{
			{Name: "Severity", Value: string(p.Severity), Inline: true},
		},
	}
	if !p.Timestamp.IsZero() {
		embed.Timestamp = p.Timestamp.UTC().Format(time.RFC3339)
	}
	if p.Component != "" {
		embed.Fields = append(embed.Fields, DiscordEmbedField{Name: "Component", Value: p.Component, Inline: true})
	}
	if p.ErrorID != "" {
		embed.Fields = append(embed.Fields, DiscordEmbedField{Name: "Error ID", Value: p.ErrorID})
		if c.frontendURL != "" {
			embed.URL = strings.TrimRight(c.frontendURL, "/") + "/errors/" + p.ErrorID
		}
	}
	return DiscordMessage{Embeds: []DiscordEmbed{embed}}
}

func discordColor(severity model.Severity) int {
	switch severity {
	case model.SeverityCritical:
		return 0xdc3545
	case model.SeverityHigh:
		return 0xfd7e14
	case model.SeverityMedium:
		return 0xffc107
	default:
		return 0x17a2b8
	}
}
