package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kube-rca/bugsys/internal/model"
	"github.com/kube-rca/bugsys/internal/resilience"
)

type fakeBugRepo struct {
	firstSeen []model.BugReport
	resolved  []model.BugReport
	queryErr  error
	queries   atomic.Int32

	updateErr     error
	updatedID     string
	updatedStatus model.BugStatus
	resolvedID    string
	resolvedAt    time.Time
}

func (f *fakeBugRepo) ListBugReports(ctx context.Context, status string, limit int) ([]model.BugReport, error) {
	return f.firstSeen, f.queryErr
}

func (f *fakeBugRepo) GetBugReportsFirstSeenSince(ctx context.Context, since time.Time) ([]model.BugReport, error) {
	f.queries.Add(1)
	return f.firstSeen, f.queryErr
}

func (f *fakeBugRepo) GetResolvedBugReportsSince(ctx context.Context, since time.Time) ([]model.BugReport, error) {
	f.queries.Add(1)
	return f.resolved, f.queryErr
}

// UpdateBugStatus - db.UpdateBugStatus와 같이 resolved 이외 상태로 바뀌면 fixed_at 초기화
func (f *fakeBugRepo) UpdateBugStatus(ctx context.Context, id string, status model.BugStatus) error {
	f.updatedID, f.updatedStatus = id, status
	if f.updateErr != nil {
		return f.updateErr
	}
	for _, list := range [][]model.BugReport{f.firstSeen, f.resolved} {
		for i := range list {
			if list[i].ID != id {
				continue
			}
			list[i].Status = status
			if status != model.BugStatusResolved {
				list[i].FixedAt = nil
			}
		}
	}
	return nil
}

func (f *fakeBugRepo) ResolveBugReport(ctx context.Context, id string, fixedAt time.Time) error {
	f.resolvedID, f.resolvedAt = id, fixedAt
	return f.updateErr
}

type fakeReporter struct {
	mu       sync.Mutex
	captured []any
}

func (f *fakeReporter) Capture(ctx context.Context, raw any, cc model.CaptureContext) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captured = append(f.captured, raw)
	return "id", true
}

func (f *fakeReporter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.captured)
}

var t0 = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

func bug(id string, firstSeen time.Time, resolveAfter time.Duration) model.BugReport {
	b := model.BugReport{ID: id, FirstSeenAt: firstSeen, Severity: model.SeverityHigh, Status: model.BugStatusDetected}
	if resolveAfter > 0 {
		fixed := firstSeen.Add(resolveAfter)
		b.FixedAt = &fixed
		b.Status = model.BugStatusResolved
	}
	return b
}

func TestComputeMTTR(t *testing.T) {
	bugs := []model.BugReport{
		bug("a", t0, 10*time.Minute),
		bug("b", t0.Add(2*time.Hour), 30*time.Minute),
	}

	m := ComputeMTTR(bugs, bugs, 7)

	assert.InDelta(t, 20.0, m.MTTRMinutes, 1e-9)
	assert.Equal(t, 2, m.ErrorCount)
	assert.Equal(t, 2, m.ResolvedCount)
	assert.InDelta(t, 7*24*60.0, m.WindowMinutes, 1e-9)
	assert.InDelta(t, 7*24*60.0, m.MTBFMinutes, 1e-9)
	assert.InDelta(t, (10080.0-40.0)/10080.0*100, m.Availability, 1e-9)
}

func TestComputeMTTRIgnoresUnresolved(t *testing.T) {
	bugs := []model.BugReport{
		bug("a", t0, 10*time.Minute),
		bug("b", t0, 0),
		bug("c", t0, 0),
	}

	m := ComputeMTTR(bugs, bugs, 1)

	assert.InDelta(t, 10.0, m.MTTRMinutes, 1e-9)
	assert.Equal(t, 1, m.ResolvedCount)
	assert.Equal(t, 3, m.ErrorCount)
	assert.InDelta(t, 1440.0/2, m.MTBFMinutes, 1e-9)
}

func TestComputeMTTD(t *testing.T) {
	ack := t0.Add(6 * time.Minute)
	b := bug("a", t0, 0)
	b.AcknowledgedAt = &ack

	m := ComputeMTTR([]model.BugReport{b, bug("b", t0, 0)}, nil, 1)
	assert.InDelta(t, 6.0, m.MTTDMinutes, 1e-9)
}

func TestComputeMTTREmpty(t *testing.T) {
	m := ComputeMTTR(nil, nil, 0)
	assert.Equal(t, defaultMetricsDays, m.Days)
	assert.Zero(t, m.MTTRMinutes)
	assert.Equal(t, 100.0, m.Availability)
}

func TestComputeAvailabilityMonotonic(t *testing.T) {
	const window = 1440.0
	for _, mttr := range []float64{0, 1, 15, 90, 2000} {
		prev := ComputeAvailability(window, mttr, 0)
		assert.Equal(t, 100.0, prev)
		for n := 1; n <= 200; n++ {
			cur := ComputeAvailability(window, mttr, n)
			assert.LessOrEqual(t, cur, prev, "mttr=%v n=%d", mttr, n)
			assert.GreaterOrEqual(t, cur, 0.0)
			prev = cur
		}
	}
}

func TestComputeTrends(t *testing.T) {
	now := time.Date(2026, 10, 3, 15, 0, 0, 0, time.UTC)
	firstSeen := []model.BugReport{
		bug("a", time.Date(2026, 10, 1, 10, 0, 0, 0, time.UTC), 0),
		bug("b", time.Date(2026, 10, 3, 8, 0, 0, 0, time.UTC), 0),
		bug("c", time.Date(2026, 10, 3, 9, 0, 0, 0, time.UTC), 0),
		bug("old", time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC), 0),
	}
	resolved := []model.BugReport{
		bug("d", time.Date(2026, 10, 3, 1, 0, 0, 0, time.UTC), 20*time.Minute),
	}

	trends := ComputeTrends(firstSeen, resolved, 3, now)

	require.Len(t, trends, 3)
	assert.Equal(t, "2026-10-01", trends[0].Date)
	assert.Equal(t, "2026-10-02", trends[1].Date)
	assert.Equal(t, "2026-10-03", trends[2].Date)

	assert.Equal(t, 1, trends[0].ErrorCount)
	assert.Equal(t, 0, trends[1].ErrorCount)
	assert.Equal(t, 100.0, trends[1].Availability)
	assert.Equal(t, 2, trends[2].ErrorCount)
	assert.Equal(t, 1, trends[2].ResolvedCount)
	assert.InDelta(t, 20.0, trends[2].MTTRMinutes, 1e-9)
	assert.InDelta(t, (1440.0-40.0)/1440.0*100, trends[2].Availability, 1e-9)
}

func TestComputeSLA(t *testing.T) {
	resolved := []model.BugReport{
		bug("fast", t0, 10*time.Minute),
		bug("ontime", t0, 60*time.Minute),
		bug("slow", t0, 3*time.Hour),
		bug("open", t0, 0),
	}
	resolved[2].Severity = model.SeverityCritical

	sla := ComputeSLA(resolved, 60)

	assert.Equal(t, 3, sla.Total)
	assert.Equal(t, 2, sla.Compliant)
	assert.Equal(t, 1, sla.NonCompliant)
	assert.InDelta(t, 200.0/3, sla.ComplianceRate, 1e-9)
	assert.InDelta(t, (10.0+60.0+180.0)/3, sla.AvgResolution, 1e-9)
	assert.Equal(t, map[string]int{"critical": 1}, sla.BySeverity)
	assert.Equal(t, []string{"slow"}, sla.BreachedBugIDs)
}

func TestComputeSLAEmpty(t *testing.T) {
	sla := ComputeSLA(nil, 30)
	assert.Equal(t, 100.0, sla.ComplianceRate)
	assert.Zero(t, sla.Total)
}

func TestGetMTTRMetricsDegradesOnQueryFailure(t *testing.T) {
	repo := &fakeBugRepo{queryErr: errors.New("connection refused")}
	svc := NewReliabilityService(repo, nil, discardLogger())

	m := svc.GetMTTRMetrics(context.Background(), 7)
	assert.True(t, m.Degraded)
	assert.Equal(t, 100.0, m.Availability)
	assert.Zero(t, m.MTTRMinutes)

	sla := svc.GetSLACompliance(context.Background(), 60, 7)
	assert.True(t, sla.Degraded)
	assert.Equal(t, 100.0, sla.ComplianceRate)

	trends := svc.GetReliabilityTrends(context.Background(), 5)
	require.Len(t, trends, 5)
	for _, d := range trends {
		assert.Equal(t, 100.0, d.Availability)
	}
}

func TestGetMTTRMetricsReportsThroughHealer(t *testing.T) {
	repo := &fakeBugRepo{queryErr: errors.New("connection refused")}
	reporter := &fakeReporter{}
	healer := resilience.NewHealer(resilience.NewBreakers(resilience.DefaultBreakerConfig()), model.RetryPolicy{
		MaxRetries: 1,
		BaseDelay:  time.Millisecond,
		MaxDelay:   time.Millisecond,
	}, resilience.WithReporter(reporter))
	svc := NewReliabilityService(repo, healer, discardLogger())

	m := svc.GetMTTRMetrics(context.Background(), 7)

	assert.True(t, m.Degraded)
	// 두 조회 모두 2회씩 시도
	assert.Equal(t, int32(4), repo.queries.Load())
	assert.Equal(t, 2, reporter.count())
}

func TestGetMTTRMetricsFromRepo(t *testing.T) {
	now := t0.Add(48 * time.Hour)
	bugs := []model.BugReport{bug("a", t0, 10*time.Minute), bug("b", t0, 30*time.Minute)}
	repo := &fakeBugRepo{firstSeen: bugs, resolved: bugs}
	svc := NewReliabilityService(repo, nil, discardLogger())
	svc.now = func() time.Time { return now }

	m := svc.GetMTTRMetrics(context.Background(), 7)
	assert.False(t, m.Degraded)
	assert.InDelta(t, 20.0, m.MTTRMinutes, 1e-9)
}

func TestUpdateBugStatus(t *testing.T) {
	repo := &fakeBugRepo{}
	svc := NewReliabilityService(repo, nil, discardLogger())

	require.NoError(t, svc.UpdateBugStatus(context.Background(), "bug-1", "Acknowledged"))
	assert.Equal(t, "bug-1", repo.updatedID)
	assert.Equal(t, model.BugStatusAcknowledged, repo.updatedStatus)

	err := svc.UpdateBugStatus(context.Background(), "bug-1", "closed")
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = svc.UpdateBugStatus(context.Background(), "", "detected")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpdateBugStatusResolvedDelegates(t *testing.T) {
	repo := &fakeBugRepo{}
	svc := NewReliabilityService(repo, nil, discardLogger())
	svc.now = func() time.Time { return t0 }

	require.NoError(t, svc.UpdateBugStatus(context.Background(), "bug-2", "resolved"))
	assert.Equal(t, "bug-2", repo.resolvedID)
	assert.Equal(t, t0, repo.resolvedAt)
	assert.Empty(t, repo.updatedID)
}

func TestReopenedBugLeavesResolutionMetrics(t *testing.T) {
	now := t0.Add(48 * time.Hour)
	repo := &fakeBugRepo{
		firstSeen: []model.BugReport{bug("a", t0, 10*time.Minute), bug("b", t0, 30*time.Minute)},
		resolved:  []model.BugReport{bug("a", t0, 10*time.Minute), bug("b", t0, 30*time.Minute)},
	}
	svc := NewReliabilityService(repo, nil, discardLogger())
	svc.now = func() time.Time { return now }

	require.NoError(t, svc.UpdateBugStatus(context.Background(), "b", "in_progress"))

	m := svc.GetMTTRMetrics(context.Background(), 7)
	assert.Equal(t, 1, m.ResolvedCount)
	assert.InDelta(t, 10.0, m.MTTRMinutes, 1e-9)

	sla := svc.GetSLACompliance(context.Background(), 20, 7)
	assert.Equal(t, 1, sla.Total)
	assert.Equal(t, 1, sla.Compliant)
}

func TestStaleFixedAtIgnored(t *testing.T) {
	// 상태만 되돌려진 행 (fixed_at 잔존)
	reopened := bug("r", t0, 3*time.Hour)
	reopened.Status = model.BugStatusAcknowledged
	bugs := []model.BugReport{bug("a", t0, 10*time.Minute), reopened}

	m := ComputeMTTR(bugs, bugs, 1)
	assert.Equal(t, 1, m.ResolvedCount)
	assert.InDelta(t, 10.0, m.MTTRMinutes, 1e-9)

	sla := ComputeSLA(bugs, 60)
	assert.Equal(t, 1, sla.Total)
	assert.Empty(t, sla.BreachedBugIDs)

	trends := ComputeTrends(nil, bugs, 1, t0.Add(4*time.Hour))
	require.Len(t, trends, 1)
	assert.Equal(t, 1, trends[0].ResolvedCount)
}

func TestRecordResolution(t *testing.T) {
	repo := &fakeBugRepo{}
	svc := NewReliabilityService(repo, nil, discardLogger())
	svc.now = func() time.Time { return t0 }

	fixed := t0.Add(-time.Hour)
	require.NoError(t, svc.RecordResolution(context.Background(), "bug-3", fixed))
	assert.Equal(t, fixed, repo.resolvedAt)

	err := svc.RecordResolution(context.Background(), "bug-3", t0.Add(time.Hour))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRecordResolutionNotFound(t *testing.T) {
	repo := &fakeBugRepo{updateErr: fmt.Errorf("bug report not found: id=x: %w", pgx.ErrNoRows)}
	svc := NewReliabilityService(repo, nil, discardLogger())

	err := svc.RecordResolution(context.Background(), "x", time.Time{})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsNotFound(err))
}

func TestListBugsRejectsUnknownStatus(t *testing.T) {
	svc := NewReliabilityService(&fakeBugRepo{}, nil, discardLogger())

	_, err := svc.ListBugs(context.Background(), "bogus", 10)
	assert.ErrorIs(t, err, ErrInvalidInput)

	list, err := svc.ListBugs(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}
