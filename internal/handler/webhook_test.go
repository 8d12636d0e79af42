package handler

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kube-rca/bugsys/internal/model"
	"github.com/kube-rca/bugsys/internal/service"
)

type fakeWebhookService struct {
	configs map[int]model.WebhookConfig
	created []model.WebhookConfigRequest
}

func (f *fakeWebhookService) ListWebhookConfigs(ctx context.Context) ([]model.WebhookConfig, error) {
	var out []model.WebhookConfig
	for _, cfg := range f.configs {
		out = append(out, cfg)
	}
	return out, nil
}

func (f *fakeWebhookService) GetWebhookConfig(ctx context.Context, id int) (*model.WebhookConfig, error) {
	cfg, ok := f.configs[id]
	if !ok {
		return nil, fmt.Errorf("webhook %d: %w", id, service.ErrNotFound)
	}
	return &cfg, nil
}

func (f *fakeWebhookService) CreateWebhookConfig(ctx context.Context, req model.WebhookConfigRequest) (int, error) {
	if req.URL == "" {
		return 0, fmt.Errorf("url is required: %w", service.ErrInvalidInput)
	}
	f.created = append(f.created, req)
	return 10, nil
}

func (f *fakeWebhookService) UpdateWebhookConfig(ctx context.Context, id int, req model.WebhookConfigRequest) error {
	if _, ok := f.configs[id]; !ok {
		return service.ErrNotFound
	}
	return nil
}

func (f *fakeWebhookService) DeleteWebhookConfig(ctx context.Context, id int) error {
	if _, ok := f.configs[id]; !ok {
		return service.ErrNotFound
	}
	delete(f.configs, id)
	return nil
}

func newWebhookRouter(svc *fakeWebhookService) *gin.Engine {
	h := NewWebhookSettingsHandler(svc)
	r := gin.New()
	r.GET("/webhooks", h.ListWebhookConfigs)
	r.GET("/webhooks/:id", h.GetWebhookConfig)
	r.POST("/webhooks", h.CreateWebhookConfig)
	r.PUT("/webhooks/:id", h.UpdateWebhookConfig)
	r.DELETE("/webhooks/:id", h.DeleteWebhookConfig)
	return r
}

func TestWebhookSettingsCRUD(t *testing.T) {
	svc := &fakeWebhookService{configs: map[int]model.WebhookConfig{
		3: {ID: 3, Name: "ops", URL: "https://hooks.example.com/ops", Method: http.MethodPost},
	}}
	r := newWebhookRouter(svc)

	w := doJSON(r, http.MethodGet, "/webhooks", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"ops"`)

	w = doJSON(r, http.MethodGet, "/webhooks/3", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodPost, "/webhooks", `{"name":"pager","url":"https://pager.example.com"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"id":10`)
	require.Len(t, svc.created, 1)
	assert.Equal(t, "pager", svc.created[0].Name)

	w = doJSON(r, http.MethodPut, "/webhooks/3", `{"name":"ops","url":"https://hooks.example.com/v2"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodDelete, "/webhooks/3", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, svc.configs)
}

func TestWebhookSettingsErrors(t *testing.T) {
	r := newWebhookRouter(&fakeWebhookService{configs: map[int]model.WebhookConfig{}})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"non numeric id", http.MethodGet, "/webhooks/abc", "", http.StatusBadRequest},
		{"zero id", http.MethodDelete, "/webhooks/0", "", http.StatusBadRequest},
		{"missing", http.MethodGet, "/webhooks/9", "", http.StatusNotFound},
		{"update missing", http.MethodPut, "/webhooks/9", `{"url":"https://x.example.com"}`, http.StatusNotFound},
		{"invalid body", http.MethodPost, "/webhooks", `{`, http.StatusBadRequest},
		{"validation", http.MethodPost, "/webhooks", `{"name":"x"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(r, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestWebhookSettingsListEmptyArray(t *testing.T) {
	r := newWebhookRouter(&fakeWebhookService{})
	w := doJSON(r, http.MethodGet, "/webhooks", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"success","data":[]}`, w.Body.String())
}
