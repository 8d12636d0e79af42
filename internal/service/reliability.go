// 신뢰성 지표(MTTR/MTBF/MTTD/가용성/SLA) 계산 및 BugReport 상태 관리
//
// 계산은 순수 함수(ComputeMTTR, ComputeTrends, ComputeSLA)로 분리하여 DB 없이 테스트
// 조회 실패 시 에러 대신 기본값(0, 가용성 100%)을 반환하고 Degraded 표시
//
// 공식:
//   - MTTR = 기간 내 해결된 BugReport의 평균 (fixed_at - first_seen_at), 분
//   - MTBF = 기간(분) / max(errorCount-1, 1)
//   - MTTD = 평균 (acknowledged_at - first_seen_at), 분
//   - 가용성 = clamp((기간(분) - MTTR*errorCount) / 기간(분) * 100, 0, 100)
//   - errorCount = 기간 내 처음 발생한 BugReport 수

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/kube-rca/bugsys/internal/db"
	"github.com/kube-rca/bugsys/internal/model"
	"github.com/kube-rca/bugsys/internal/resilience"
)

const (
	minutesPerDay      = 24 * 60
	defaultMetricsDays = 30
	maxMetricsDays     = 365
)

// bugReportRepo - DB 인터페이스
type bugReportRepo interface {
	ListBugReports(ctx context.Context, status string, limit int) ([]model.BugReport, error)
	GetBugReportsFirstSeenSince(ctx context.Context, since time.Time) ([]model.BugReport, error)
	GetResolvedBugReportsSince(ctx context.Context, since time.Time) ([]model.BugReport, error)
	UpdateBugStatus(ctx context.Context, id string, status model.BugStatus) error
	ResolveBugReport(ctx context.Context, id string, fixedAt time.Time) error
}

// ReliabilityService 구조체 정의
type ReliabilityService struct {
	repo   bugReportRepo
	healer *resilience.Healer
	logger *slog.Logger
	now    func() time.Time
}

// ReliabilityService 객체 생성. healer가 nil이면 조회를 1회만 시도
func NewReliabilityService(repo bugReportRepo, healer *resilience.Healer, logger *slog.Logger) *ReliabilityService {
	return &ReliabilityService{
		repo:   repo,
		healer: healer,
		logger: logger,
		now:    time.Now,
	}
}

// GetMTTRMetrics - 최근 days일 지표
func (s *ReliabilityService) GetMTTRMetrics(ctx context.Context, days int) model.MTTRMetrics {
	days = clampDays(days)
	now := s.now().UTC()
	since := now.Add(-time.Duration(days) * 24 * time.Hour)

	firstSeen, errA := s.query(ctx, "reliability:first_seen", func(ctx context.Context) ([]model.BugReport, error) {
		return s.repo.GetBugReportsFirstSeenSince(ctx, since)
	})
	resolved, errB := s.query(ctx, "reliability:resolved", func(ctx context.Context) ([]model.BugReport, error) {
		return s.repo.GetResolvedBugReportsSince(ctx, since)
	})
	if errA != nil || errB != nil {
		m := ComputeMTTR(nil, nil, days)
		m.Degraded = true
		return m
	}
	return ComputeMTTR(firstSeen, resolved, days)
}

// GetReliabilityTrends - 일자별(UTC) 추이. 오래된 날짜부터 정렬
func (s *ReliabilityService) GetReliabilityTrends(ctx context.Context, days int) []model.DailyReliability {
	days = clampDays(days)
	now := s.now().UTC()
	since := startOfDay(now).AddDate(0, 0, -(days - 1))

	firstSeen, errA := s.query(ctx, "reliability:first_seen", func(ctx context.Context) ([]model.BugReport, error) {
		return s.repo.GetBugReportsFirstSeenSince(ctx, since)
	})
	resolved, errB := s.query(ctx, "reliability:resolved", func(ctx context.Context) ([]model.BugReport, error) {
		return s.repo.GetResolvedBugReportsSince(ctx, since)
	})
	if errA != nil || errB != nil {
		return ComputeTrends(nil, nil, days, now)
	}
	return ComputeTrends(firstSeen, resolved, days, now)
}

// GetSLACompliance - 최근 days일 동안 해결된 BugReport의 목표 해결 시간 준수율
func (s *ReliabilityService) GetSLACompliance(ctx context.Context, targetMinutes float64, days int) model.SLACompliance {
	days = clampDays(days)
	since := s.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)

	resolved, err := s.query(ctx, "reliability:resolved", func(ctx context.Context) ([]model.BugReport, error) {
		return s.repo.GetResolvedBugReportsSince(ctx, since)
	})
	if err != nil {
		sla := ComputeSLA(nil, targetMinutes)
		sla.Degraded = true
		return sla
	}
	return ComputeSLA(resolved, targetMinutes)
}

// ListBugs - BugReport 목록. status가 비어 있으면 전체
func (s *ReliabilityService) ListBugs(ctx context.Context, status string, limit int) ([]model.BugReport, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status != "" && !model.BugStatus(status).Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	return s.repo.ListBugReports(ctx, status, limit)
}

// UpdateBugStatus - 상태 변경. resolved는 RecordResolution으로 위임
func (s *ReliabilityService) UpdateBugStatus(ctx context.Context, bugID string, status string) error {
	if strings.TrimSpace(bugID) == "" {
		return fmt.Errorf("%w: bug id is required", ErrInvalidInput)
	}
	st := model.BugStatus(strings.ToLower(strings.TrimSpace(status)))
	if !st.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	if st == model.BugStatusResolved {
		return s.RecordResolution(ctx, bugID, time.Time{})
	}
	return mapNotFound(s.repo.UpdateBugStatus(ctx, bugID, st))
}

// RecordResolution - 해결 기록. fixedAt이 zero면 현재 시각
func (s *ReliabilityService) RecordResolution(ctx context.Context, bugID string, fixedAt time.Time) error {
	if strings.TrimSpace(bugID) == "" {
		return fmt.Errorf("%w: bug id is required", ErrInvalidInput)
	}
	now := s.now().UTC()
	if fixedAt.IsZero() {
		fixedAt = now
	}
	if fixedAt.After(now.Add(time.Minute)) {
		return fmt.Errorf("%w: fixed_at is in the future", ErrInvalidInput)
	}
	return mapNotFound(s.repo.ResolveBugReport(ctx, bugID, fixedAt.UTC()))
}

// query - Healer(재시도+브레이커)로 조회. 최종 실패는 ErrorHandler로 보고됨
func (s *ReliabilityService) query(ctx context.Context, key string, fn func(ctx context.Context) ([]model.BugReport, error)) ([]model.BugReport, error) {
	var (
		list []model.BugReport
		err  error
	)
	if s.healer != nil {
		out := resilience.Execute(ctx, s.healer, key, fn, resilience.Options{
			EnableRetry:          true,
			EnableCircuitBreaker: true,
			Report:               true,
			Component:            "reliability_service",
		})
		list, err = out.Value, out.Err
	} else {
		list, err = fn(ctx)
	}
	if err != nil {
		selfLog(ctx, s.logger, slog.LevelWarn, fmt.Sprintf("Failed to query bug reports (%s), using defaults: %v", key, err))
	}
	return list, err
}

func mapNotFound(err error) error {
	if err == nil {
		return nil
	}
	if db.IsNoRows(err) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

func clampDays(days int) int {
	switch {
	case days <= 0:
		return defaultMetricsDays
	case days > maxMetricsDays:
		return maxMetricsDays
	default:
		return days
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ComputeAvailability - errorCount가 늘어나면 가용성은 줄어들거나 같음 (mttr 고정 시)
func ComputeAvailability(windowMinutes, mttrMinutes float64, errorCount int) float64 {
	if windowMinutes <= 0 {
		return 100
	}
	v := (windowMinutes - mttrMinutes*float64(errorCount)) / windowMinutes * 100
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

// meanResolutionMinutes - 해결된 항목만 평균
func meanResolutionMinutes(bugs []model.BugReport) (float64, int) {
	var sum float64
	var n int
	for _, b := range bugs {
		if m, ok := b.ResolutionMinutes(); ok {
			sum += m
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

// ComputeMTTR - firstSeen: 기간 내 처음 발생한 BugReport, resolved: 기간 내 해결된 BugReport
func ComputeMTTR(firstSeen, resolved []model.BugReport, days int) model.MTTRMetrics {
	days = clampDays(days)
	window := float64(days * minutesPerDay)
	errorCount := len(firstSeen)

	mttr, resolvedCount := meanResolutionMinutes(resolved)

	var ackSum float64
	var ackN int
	for _, b := range firstSeen {
		if b.AcknowledgedAt == nil {
			continue
		}
		d := b.AcknowledgedAt.Sub(b.FirstSeenAt)
		if d < 0 {
			d = 0
		}
		ackSum += d.Minutes()
		ackN++
	}
	var mttd float64
	if ackN > 0 {
		mttd = ackSum / float64(ackN)
	}

	divisor := errorCount - 1
	if divisor < 1 {
		divisor = 1
	}

	return model.MTTRMetrics{
		Days:          days,
		MTTRMinutes:   mttr,
		MTBFMinutes:   window / float64(divisor),
		MTTDMinutes:   mttd,
		Availability:  ComputeAvailability(window, mttr, errorCount),
		ErrorCount:    errorCount,
		ResolvedCount: resolvedCount,
		WindowMinutes: window,
	}
}

// ComputeTrends - now 기준 최근 days일(UTC 달력 기준)을 하루 단위로 집계
func ComputeTrends(firstSeen, resolved []model.BugReport, days int, now time.Time) []model.DailyReliability {
	days = clampDays(days)
	today := startOfDay(now.UTC())

	type bucket struct {
		errors   int
		resolved []model.BugReport
	}
	buckets := make(map[string]*bucket, days)
	out := make([]model.DailyReliability, 0, days)
	for i := days - 1; i >= 0; i-- {
		key := today.AddDate(0, 0, -i).Format(time.DateOnly)
		buckets[key] = &bucket{}
		out = append(out, model.DailyReliability{Date: key})
	}

	for _, b := range firstSeen {
		if bk, ok := buckets[b.FirstSeenAt.UTC().Format(time.DateOnly)]; ok {
			bk.errors++
		}
	}
	for _, b := range resolved {
		if !b.Resolved() {
			continue
		}
		if bk, ok := buckets[b.FixedAt.UTC().Format(time.DateOnly)]; ok {
			bk.resolved = append(bk.resolved, b)
		}
	}

	for i := range out {
		bk := buckets[out[i].Date]
		mttr, n := meanResolutionMinutes(bk.resolved)
		out[i].ErrorCount = bk.errors
		out[i].ResolvedCount = n
		out[i].MTTRMinutes = mttr
		out[i].Availability = ComputeAvailability(minutesPerDay, mttr, bk.errors)
	}
	return out
}

// ComputeSLA - 해결 시간이 target 이하면 준수. 대상이 없으면 준수율 100%
func ComputeSLA(resolved []model.BugReport, targetMinutes float64) model.SLACompliance {
	sla := model.SLACompliance{
		TargetMinutes:  targetMinutes,
		ComplianceRate: 100,
	}

	var sum float64
	for _, b := range resolved {
		m, ok := b.ResolutionMinutes()
		if !ok {
			continue
		}
		sla.Total++
		sum += m
		if m <= targetMinutes {
			sla.Compliant++
			continue
		}
		sla.NonCompliant++
		if sla.BySeverity == nil {
			sla.BySeverity = map[string]int{}
		}
		sla.BySeverity[string(b.Severity)]++
		sla.BreachedBugIDs = append(sla.BreachedBugIDs, b.ID)
	}

	if sla.Total > 0 {
		sla.ComplianceRate = float64(sla.Compliant) / float64(sla.Total) * 100
		sla.AvgResolution = sum / float64(sla.Total)
	}
	sort.Strings(sla.BreachedBugIDs)
	return sla
}

// IsNotFound - handler에서 404 판단용
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
