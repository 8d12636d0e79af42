// 알림(Alert) 발송 비즈니스 로직 정의
// ErrorHandler/PredictiveService가 넘긴 AlertPayload를 설정된 채널로 전송
//
// 처리 흐름:
//  1. severity 게이트 (ALERT_MIN_SEVERITY 미만이면 전송하지 않고 gated로 기록)
//  2. 활성 채널 선택 (payload.Channels > ALERT_CHANNELS > 설정된 전체 채널)
//  3. 채널별 동시 전송 (채널 실패는 서로 영향 없음, 채널마다 Healer key "alert:<name>", custom webhook은 config마다 "alert:webhook:<id>")
//  4. alert_logs에 시도 1회당 1행 감사 기록
//  5. 실패한 채널은 모아서 에러로 반환 (호출 측 async.Runner가 로그만 남김)

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kube-rca/bugsys/internal/config"
	"github.com/kube-rca/bugsys/internal/model"
	"github.com/kube-rca/bugsys/internal/resilience"
	"github.com/kube-rca/bugsys/internal/telemetry"
)

// alertChannel - 알림 채널 (client.SlackClient, DiscordClient, TelegramClient, CustomWebhookClient)
type alertChannel interface {
	Name() string
	IsConfigured() bool
	Send(ctx context.Context, payload model.AlertPayload) error
}

// targetedChannel - 대상별로 독립 전송되는 채널 (client.CustomWebhookClient)
// 대상마다 Healer key "alert:<target>"를 가지므로 한 대상의 재시도/서킷이 다른 대상에 영향을 주지 않음
type targetedChannel interface {
	alertChannel
	Targets(ctx context.Context, payload model.AlertPayload) ([]model.AlertTarget, error)
}

// alertLogRepo - DB 인터페이스
type alertLogRepo interface {
	InsertAlertLog(ctx context.Context, entry model.AlertLog) (int64, error)
}

// AlertService 구조체 정의
type AlertService struct {
	channels    []alertChannel
	repo        alertLogRepo
	healer      *resilience.Healer
	minSeverity model.Severity
	enabled     map[string]struct{}
	logger      *slog.Logger
	now         func() time.Time
}

// AlertService 객체 생성. healer가 nil이면 채널당 1회만 시도
func NewAlertService(repo alertLogRepo, healer *resilience.Healer, cfg config.AlertConfig, logger *slog.Logger, channels ...alertChannel) *AlertService {
	minSeverity := cfg.MinSeverity
	if !minSeverity.Valid() {
		minSeverity = model.SeverityHigh
	}

	var enabled map[string]struct{}
	if len(cfg.Channels) > 0 {
		enabled = make(map[string]struct{}, len(cfg.Channels))
		for _, name := range cfg.Channels {
			enabled[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
		}
	}

	return &AlertService{
		channels:    channels,
		repo:        repo,
		healer:      healer,
		minSeverity: minSeverity,
		enabled:     enabled,
		logger:      logger,
		now:         time.Now,
	}
}

// SendAlert - 게이트를 통과한 알림만 활성 채널로 전송
func (s *AlertService) SendAlert(ctx context.Context, payload model.AlertPayload) error {
	if payload.Timestamp.IsZero() {
		payload.Timestamp = s.now().UTC()
	}

	if !payload.Severity.AtLeast(s.minSeverity) {
		s.audit(ctx, payload, false, true, nil)
		return nil
	}

	results := s.dispatch(ctx, payload)
	s.audit(ctx, payload, false, false, results)

	var errs []error
	for _, r := range results {
		if !r.Success {
			errs = append(errs, fmt.Errorf("%s: %s", r.Channel, r.Error))
		}
	}
	return errors.Join(errs...)
}

// SendTestAlert - 채널 설정 확인용. severity 게이트를 거치지 않음
// 호출마다 독립된 전송 시도와 감사 기록을 남김
func (s *AlertService) SendTestAlert(ctx context.Context) model.AlertDispatchResponse {
	payload := model.AlertPayload{
		Title:     "Test alert",
		Message:   "This is a test alert to verify channel configuration.",
		Severity:  s.minSeverity,
		Component: "alert_service",
		Source:    "test",
		Timestamp: s.now().UTC(),
	}

	results := s.dispatch(ctx, payload)
	s.audit(ctx, payload, true, false, results)

	resp := model.AlertDispatchResponse{Results: results}
	for _, r := range results {
		if r.Success {
			resp.Sent++
		} else {
			resp.Failed++
		}
	}
	switch {
	case len(results) == 0:
		resp.Status = "no_channels"
	case resp.Failed == 0:
		resp.Status = "success"
	case resp.Sent == 0:
		resp.Status = "failed"
	default:
		resp.Status = "partial"
	}
	return resp
}

// activeChannels - 설정이 채워져 있고 허용 목록에 있는 채널
func (s *AlertService) activeChannels(requested []string) []alertChannel {
	allow := s.enabled
	if len(requested) > 0 {
		allow = make(map[string]struct{}, len(requested))
		for _, name := range requested {
			allow[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
		}
	}

	var out []alertChannel
	for _, ch := range s.channels {
		if ch == nil || !ch.IsConfigured() {
			continue
		}
		if allow != nil {
			if _, ok := allow[ch.Name()]; !ok {
				continue
			}
		}
		out = append(out, ch)
	}
	return out
}

// delivery - 독립 전송 단위 (채널 1개 또는 targetedChannel의 대상 1개)
type delivery struct {
	channel string
	name    string
	send    func(ctx context.Context) error

	// resolveErr - 대상 조회 실패. 전송 없이 실패 결과로 기록
	resolveErr error
}

// dispatch - 전송 단위별 goroutine으로 동시 전송. 결과 순서는 채널 등록 순서
func (s *AlertService) dispatch(ctx context.Context, payload model.AlertPayload) []model.ChannelResult {
	var units []delivery
	for _, ch := range s.activeChannels(payload.Channels) {
		name := ch.Name()
		tc, ok := ch.(targetedChannel)
		if !ok {
			units = append(units, delivery{channel: name, name: name, send: func(ctx context.Context) error {
				return ch.Send(ctx, payload)
			}})
			continue
		}
		targets, err := tc.Targets(ctx, payload)
		if err != nil {
			units = append(units, delivery{channel: name, name: name, resolveErr: err})
			continue
		}
		for _, t := range targets {
			units = append(units, delivery{channel: name, name: t.Name, send: t.Send})
		}
	}

	results := make([]model.ChannelResult, len(units))
	var wg sync.WaitGroup
	for i, u := range units {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.sendOne(ctx, u)
		}()
	}
	wg.Wait()
	return results
}

func (s *AlertService) sendOne(ctx context.Context, u delivery) (result model.ChannelResult) {
	result.Channel = u.name

	defer func() {
		if rec := recover(); rec != nil {
			result.Success = false
			result.Error = fmt.Sprintf("panic: %v", rec)
		}
		telemetry.ObserveAlert(u.channel, result.Success)
		if !result.Success {
			selfLog(ctx, s.logger, slog.LevelWarn, fmt.Sprintf("Failed to send alert to %s: %s", u.name, result.Error),
				slog.String("channel", u.channel))
		}
	}()

	if u.resolveErr != nil {
		result.Error = fmt.Sprintf("failed to resolve targets: %v", u.resolveErr)
		return result
	}

	send := func(ctx context.Context) (struct{}, error) {
		return struct{}{}, u.send(ctx)
	}

	var err error
	if s.healer != nil {
		out := resilience.Execute(ctx, s.healer, "alert:"+u.name, send, resilience.Options{
			EnableRetry:          true,
			EnableCircuitBreaker: true,
			Component:            "alert_service",
		})
		err = out.Err
	} else {
		_, err = send(ctx)
	}

	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Success = true
	return result
}

// audit - alert_logs 기록 (best-effort)
func (s *AlertService) audit(ctx context.Context, payload model.AlertPayload, isTest, gated bool, results []model.ChannelResult) {
	if s.repo == nil {
		return
	}
	if results == nil {
		results = []model.ChannelResult{}
	}
	entry := model.AlertLog{
		Title:     payload.Title,
		Severity:  payload.Severity,
		ErrorID:   payload.ErrorID,
		IsTest:    isTest,
		Gated:     gated,
		Results:   results,
		CreatedAt: s.now().UTC(),
	}
	if _, err := s.repo.InsertAlertLog(context.WithoutCancel(ctx), entry); err != nil {
		selfLog(ctx, s.logger, slog.LevelWarn, fmt.Sprintf("Failed to save alert log: %v", err))
	}
}
