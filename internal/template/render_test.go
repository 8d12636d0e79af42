package template

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kube-rca/bugsys/internal/model"
)

func TestRenderBody(t *testing.T) {
	data := AlertDataFromPayload(model.AlertPayload{
		Title:     "NetworkError",
		Message:   "failed to fetch /api/orders",
		Severity:  model.SeverityHigh,
		ErrorID:   "abc-123",
		Component: "checkout",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}, "https://bugs.example.com/")

	got := RenderBody("[{{alert.severity}}] {{alert.title}} {{alert.timestamp}} {{alert.link}} {{alert.unknown}}", data, false)
	assert.Equal(t, "[high] NetworkError 2026-03-01T12:00:00Z https://bugs.example.com/errors/abc-123 {{alert.unknown}}", got)
}

func TestRenderBodyEscapesJSON(t *testing.T) {
	data := AlertData{Title: `quote " and`, Message: "line1\nline2"}
	body := `{"text": "{{alert.title}} {{alert.message}}"}`
	require.True(t, LooksLikeJSON(body))

	rendered := RenderBody(body, data, true)
	var out map[string]string
	require.NoError(t, json.Unmarshal([]byte(rendered), &out))
	assert.Equal(t, "quote \" and line1\nline2", out["text"])
}

func TestAlertDataLinkRequiresFrontendAndID(t *testing.T) {
	assert.Empty(t, AlertDataFromPayload(model.AlertPayload{ErrorID: "x"}, "").Link)
	assert.Empty(t, AlertDataFromPayload(model.AlertPayload{}, "https://a").Link)
	assert.False(t, LooksLikeJSON("plain text"))
}
