package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/kube-rca/bugsys/internal/model"
)

// webhookRepo - DB 인터페이스
type webhookRepo interface {
	GetWebhookConfigs(ctx context.Context) ([]model.WebhookConfig, error)
	GetWebhookConfigByID(ctx context.Context, id int) (*model.WebhookConfig, error)
	CreateWebhookConfig(ctx context.Context, cfg model.WebhookConfig) (int, error)
	UpdateWebhookConfig(ctx context.Context, id int, cfg model.WebhookConfig) error
	DeleteWebhookConfig(ctx context.Context, id int) error
}

// WebhookService - 사용자 정의 알림 채널(웹훅) 설정 비즈니스 로직
type WebhookService struct {
	db webhookRepo
}

func NewWebhookService(db webhookRepo) *WebhookService {
	return &WebhookService{db: db}
}

func (s *WebhookService) ListWebhookConfigs(ctx context.Context) ([]model.WebhookConfig, error) {
	return s.db.GetWebhookConfigs(ctx)
}

func (s *WebhookService) GetWebhookConfig(ctx context.Context, id int) (*model.WebhookConfig, error) {
	cfg, err := s.db.GetWebhookConfigByID(ctx, id)
	return cfg, mapNotFound(err)
}

func (s *WebhookService) CreateWebhookConfig(ctx context.Context, req model.WebhookConfigRequest) (int, error) {
	cfg, err := webhookConfigFromRequest(req)
	if err != nil {
		return 0, err
	}
	return s.db.CreateWebhookConfig(ctx, cfg)
}

func (s *WebhookService) UpdateWebhookConfig(ctx context.Context, id int, req model.WebhookConfigRequest) error {
	cfg, err := webhookConfigFromRequest(req)
	if err != nil {
		return err
	}
	return mapNotFound(s.db.UpdateWebhookConfig(ctx, id, cfg))
}

func (s *WebhookService) DeleteWebhookConfig(ctx context.Context, id int) error {
	return mapNotFound(s.db.DeleteWebhookConfig(ctx, id))
}

var allowedWebhookMethods = map[string]bool{
	http.MethodPost:  true,
	http.MethodPut:   true,
	http.MethodPatch: true,
}

// webhookConfigFromRequest - 요청 검증 후 저장용 설정으로 변환
// method 기본값 POST, min_severity 미지정 시 모든 알림 전달
func webhookConfigFromRequest(req model.WebhookConfigRequest) (model.WebhookConfig, error) {
	rawURL := strings.TrimSpace(req.URL)
	if rawURL == "" {
		return model.WebhookConfig{}, fmt.Errorf("%w: url is required", ErrInvalidInput)
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return model.WebhookConfig{}, fmt.Errorf("%w: url must be an absolute http(s) url", ErrInvalidInput)
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodPost
	}
	if !allowedWebhookMethods[method] {
		return model.WebhookConfig{}, fmt.Errorf("%w: unsupported method %q", ErrInvalidInput, req.Method)
	}

	var minSeverity model.Severity
	if strings.TrimSpace(req.MinSeverity) != "" {
		sev, ok := model.ParseSeverity(req.MinSeverity)
		if !ok {
			return model.WebhookConfig{}, fmt.Errorf("%w: unknown min_severity %q", ErrInvalidInput, req.MinSeverity)
		}
		minSeverity = sev
	}

	cfg := model.WebhookConfig{
		Name:        strings.TrimSpace(req.Name),
		URL:         rawURL,
		Method:      method,
		Body:        req.Body,
		MinSeverity: minSeverity,
	}
	if req.Headers != nil {
		cfg.Headers = req.Headers
	} else {
		cfg.Headers = []model.WebhookHeader{}
	}
	return cfg, nil
}
