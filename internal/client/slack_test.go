package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kube-rca/bugsys/internal/config"
	"github.com/kube-rca/bugsys/internal/model"
	"github.com/kube-rca/bugsys/internal/resilience"
)

func TestToSlackMarkdown(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "bold-only",
			input: "This is **bold** text.",
			want:  "This is *bold* text.",
		},
		{
			name:  "inline-code-protected",
			input: "Use `2 ** 3` and **bold**.",
			want:  "Use `2 ** 3` and *bold*.",
		},
		{
			name:  "code-block-protected",
			input: "```python\n2 ** 3\n```\n**bold**",
			want:  "```python\n2 ** 3\n```\n*bold*",
		},
		{
			name:  "heading-converted",
			input: "### 1) 요약 (Summary)\n내용",
			want:  "*1) 요약 (Summary)*\n내용",
		},
		{
			name:  "heading-protected-in-code-block",
			input: "```\n### 1) 요약 (Summary)\n```\n**bold**",
			want:  "```\n### 1) 요약 (Summary)\n```\n*bold*",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, toSlackMarkdown(tt.input))
		})
	}
}

var testPayload = model.AlertPayload{
	Title:     "NetworkError",
	Message:   "failed to fetch /api/orders",
	Severity:  model.SeverityHigh,
	ErrorID:   "err-1",
	Component: "checkout",
	Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
}

func TestSlackWebhookSend(t *testing.T) {
	var got SlackMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := NewSlackClient(config.SlackConfig{WebhookURL: srv.URL}, "https://bugs.example.com")
	require.True(t, c.IsConfigured())
	require.NoError(t, c.Send(context.Background(), testPayload))

	require.Len(t, got.Attachments, 1)
	assert.Empty(t, got.Channel)
	assert.Equal(t, "#fd7e14", got.Attachments[0].Color)
	assert.Contains(t, got.Attachments[0].Title, "[high] NetworkError")
	assert.Equal(t, "<https://bugs.example.com/errors/err-1|err-1>", got.Attachments[0].Fields[len(got.Attachments[0].Fields)-1].Value)
}

func TestSlackBotSend(t *testing.T) {
	var auth string
	var got SlackMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"ok":true,"ts":"1.2"}`))
	}))
	defer srv.Close()

	c := NewSlackClient(config.SlackConfig{BotToken: "xoxb-test", ChannelID: "C123"}, "")
	c.apiURL = srv.URL
	require.NoError(t, c.Send(context.Background(), testPayload))
	assert.Equal(t, "Bearer xoxb-test", auth)
	assert.Equal(t, "C123", got.Channel)
}

func TestSlackBotAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
	}))
	defer srv.Close()

	c := NewSlackClient(config.SlackConfig{BotToken: "xoxb-test", ChannelID: "C123"}, "")
	c.apiURL = srv.URL
	err := c.Send(context.Background(), testPayload)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel_not_found")
}

func TestSlackHTTPErrorIsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewSlackClient(config.SlackConfig{WebhookURL: srv.URL}, "")
	err := c.Send(context.Background(), testPayload)

	var se *resilience.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.True(t, resilience.IsRetryable(err))
}

func TestSlackNotConfigured(t *testing.T) {
	c := NewSlackClient(config.SlackConfig{BotToken: "xoxb"}, "")
	assert.False(t, c.IsConfigured())
	assert.Error(t, c.Send(context.Background(), testPayload))
}
