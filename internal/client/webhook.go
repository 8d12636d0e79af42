// 사용자 정의 Webhook 알림 채널
// webhook_configs 테이블의 설정마다 body 템플릿을 렌더링하여 전송

package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kube-rca/bugsys/internal/model"
	tmpl "github.com/kube-rca/bugsys/internal/template"
)

// webhookConfigReader - DB 인터페이스 (전송 전용)
type webhookConfigReader interface {
	GetWebhookConfigs(ctx context.Context) ([]model.WebhookConfig, error)
}

// CustomWebhookClient - 저장된 모든 webhook config로 전송하는 채널
type CustomWebhookClient struct {
	configDB    webhookConfigReader
	frontendURL string
	httpClient  *http.Client
}

func NewCustomWebhookClient(configDB webhookConfigReader, frontendURL string) *CustomWebhookClient {
	return &CustomWebhookClient{
		configDB:    configDB,
		frontendURL: frontendURL,
		httpClient:  newHTTPClient(defaultHTTPTimeout),
	}
}

func (c *CustomWebhookClient) Name() string { return "webhook" }

// 설정 여부는 전송 시점에 DB에서 확인
func (c *CustomWebhookClient) IsConfigured() bool {
	return c.configDB != nil
}

// Targets - 전송 대상 config마다 하나의 AlertTarget
// URL이 없거나 config의 min_severity보다 낮은 알림은 제외
func (c *CustomWebhookClient) Targets(ctx context.Context, payload model.AlertPayload) ([]model.AlertTarget, error) {
	configs, err := c.configDB.GetWebhookConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load webhook configs: %w", err)
	}

	data := tmpl.AlertDataFromPayload(payload, c.frontendURL)
	targets := make([]model.AlertTarget, 0, len(configs))
	for _, cfg := range configs {
		if cfg.URL == "" {
			continue
		}
		if cfg.MinSeverity.Valid() && !payload.Severity.AtLeast(cfg.MinSeverity) {
			continue
		}
		targets = append(targets, model.AlertTarget{
			Name: fmt.Sprintf("%s:%d", c.Name(), cfg.ID),
			Send: func(ctx context.Context) error {
				return c.deliver(ctx, cfg, data)
			},
		})
	}
	return targets, nil
}

// Send - 모든 대상으로 1회씩 전송. 개별 실패는 모아서 반환
// AlertService는 Targets로 대상별 재시도를 하므로 이 경로는 단독 사용 시에만 쓰임
func (c *CustomWebhookClient) Send(ctx context.Context, payload model.AlertPayload) error {
	targets, err := c.Targets(ctx, payload)
	if err != nil {
		return err
	}
	var errs []error
	for _, t := range targets {
		if err := t.Send(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (c *CustomWebhookClient) deliver(ctx context.Context, cfg model.WebhookConfig, data tmpl.AlertData) error {
	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodPost
	}

	isJSON := tmpl.LooksLikeJSON(cfg.Body)
	body := tmpl.RenderBody(cfg.Body, data, isJSON)

	headers := make(map[string]string, len(cfg.Headers))
	for _, h := range cfg.Headers {
		if h.Key != "" {
			headers[h.Key] = h.Value
		}
	}
	contentType := ""
	if isJSON {
		contentType = "application/json"
	}

	_, err := doRequest(ctx, c.httpClient, method, cfg.URL, contentType, headers, []byte(body))
	return err
}
