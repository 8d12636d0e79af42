package resilience

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/kube-rca/bugsys/internal/model"
)

// BreakerConfig - 서킷 브레이커 설정
type BreakerConfig struct {
	// Threshold - closed 상태에서 연속 실패가 이 값 이상이면 open
	Threshold int

	// Cooldown - open 이후 half_open 시도까지 대기 시간
	Cooldown time.Duration

	// CooldownMultiplier - half_open 시도가 실패할 때마다 cooldown에 곱함 (1이면 고정)
	CooldownMultiplier float64

	// MaxCooldown - cooldown 상한
	MaxCooldown time.Duration
}

// DefaultBreakerConfig - 기본 설정
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Threshold:          5,
		Cooldown:           60 * time.Second,
		CooldownMultiplier: 2,
		MaxCooldown:        10 * time.Minute,
	}
}

// TransitionHook - 상태 전환 시 호출 (lock 밖에서 호출됨)
type TransitionHook func(key string, from, to model.CircuitState)

type circuit struct {
	state         model.CircuitState
	failureCount  int
	lastFailure   time.Time
	nextRetry     time.Time
	cooldown      time.Duration
	trialInFlight bool
	// gen - 상태 전환마다 증가. Ticket 유효성 판단
	gen           uint64
}

// Breakers - operation key별 서킷 브레이커 레지스트리
//
// 상태는 프로세스 메모리에만 존재하며 외부에 직접 노출하지 않음 (Snapshot은 복사본).
// "호출 허용 판단"과 "상태 전환"은 하나의 mutex 구간에서 수행됨.
type Breakers struct {
	cfg          BreakerConfig
	mu           sync.Mutex
	circuits     map[string]*circuit
	now          func() time.Time
	onTransition TransitionHook
	seq          uint64
}

// NewBreakers - 잘못된 설정값은 기본값으로 대체
func NewBreakers(cfg BreakerConfig) *Breakers {
	def := DefaultBreakerConfig()
	if cfg.Threshold < 1 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.CooldownMultiplier < 1 {
		cfg.CooldownMultiplier = 1
	}
	if cfg.MaxCooldown < cfg.Cooldown {
		cfg.MaxCooldown = cfg.Cooldown
	}
	return &Breakers{
		cfg:      cfg,
		circuits: make(map[string]*circuit),
		now:      time.Now,
	}
}

// OnTransition - 상태 전환 훅 등록 (telemetry 연동용). 사용 전에 한 번만 호출
func (b *Breakers) OnTransition(hook TransitionHook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTransition = hook
}

// Ticket - Allow가 발급한 호출 허가. 결과는 같은 Ticket으로 Record에 전달
//
// gen은 발급 시점 circuit 세대. 세대가 바뀐 뒤 도착한 결과(cooldown 중 늦게 끝난 호출,
// half_open 시험 호출이 아닌 호출)는 상태에 반영하지 않음
type Ticket struct {
	key   string
	gen   uint64
	trial bool
}

// Allow - 호출 가능 여부 판단 + 필요한 상태 전환
//
//   - closed: 통과
//   - open: nextRetry 이전이면 거부, 이후면 half_open으로 전환하고 시험 호출 1회 허용
//   - half_open: 시험 호출이 진행 중이면 거부
func (b *Breakers) Allow(key string) (Ticket, error) {
	b.mu.Lock()
	c, ok := b.circuits[key]
	if !ok {
		b.mu.Unlock()
		return Ticket{key: key}, nil
	}
	if c.state == model.CircuitClosed {
		gen := c.gen
		b.mu.Unlock()
		return Ticket{key: key, gen: gen}, nil
	}

	now := b.now()
	var transitioned bool
	switch c.state {
	case model.CircuitOpen:
		if now.Before(c.nextRetry) {
			retryAt := c.nextRetry
			b.mu.Unlock()
			return Ticket{}, &CircuitOpenError{Key: key, RetryAfter: retryAt.Format(time.RFC3339)}
		}
		b.advance(c, model.CircuitHalfOpen)
		c.trialInFlight = true
		transitioned = true
	case model.CircuitHalfOpen:
		if c.trialInFlight {
			retryAt := c.nextRetry
			b.mu.Unlock()
			return Ticket{}, &CircuitOpenError{Key: key, RetryAfter: retryAt.Format(time.RFC3339)}
		}
		c.trialInFlight = true
	}
	t := Ticket{key: key, gen: c.gen, trial: true}
	hook := b.onTransition
	b.mu.Unlock()

	if transitioned && hook != nil {
		hook(key, model.CircuitOpen, model.CircuitHalfOpen)
	}
	return t, nil
}

// advance - 상태 전환 + 새 세대 부여. b.mu 보유 상태에서 호출
func (b *Breakers) advance(c *circuit, to model.CircuitState) {
	b.seq++
	c.gen = b.seq
	c.state = to
}

// Record - 호출 결과 반영. 현재 세대의 Ticket이 아니면 무시
func (b *Breakers) Record(t Ticket, err error) {
	b.mu.Lock()
	c, ok := b.circuits[t.key]
	if ok && c.gen != t.gen {
		b.mu.Unlock()
		return
	}
	if !ok && t.gen != 0 {
		// Reset 이전 세대
		b.mu.Unlock()
		return
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, ErrCircuitOpen) {
		// 의존성 상태와 무관한 결과. half_open 시험 슬롯만 반납
		if ok && t.trial && c.state == model.CircuitHalfOpen {
			c.trialInFlight = false
		}
		b.mu.Unlock()
		return
	}

	if err == nil {
		if !ok {
			b.mu.Unlock()
			return
		}
		from := c.state
		if from != model.CircuitClosed {
			b.advance(c, model.CircuitClosed)
		}
		c.failureCount = 0
		c.trialInFlight = false
		c.cooldown = b.cfg.Cooldown
		hook := b.onTransition
		b.mu.Unlock()
		if from != model.CircuitClosed && hook != nil {
			hook(t.key, from, model.CircuitClosed)
		}
		return
	}

	// 실패: 첫 실패 시 상태 생성
	if !ok {
		c = &circuit{state: model.CircuitClosed, cooldown: b.cfg.Cooldown}
		b.circuits[t.key] = c
	}
	now := b.now()
	from := c.state
	c.failureCount++
	c.lastFailure = now

	switch c.state {
	case model.CircuitClosed:
		if c.failureCount >= b.cfg.Threshold {
			b.advance(c, model.CircuitOpen)
			c.nextRetry = now.Add(c.cooldown)
		}
	case model.CircuitHalfOpen:
		grown := time.Duration(float64(c.cooldown) * b.cfg.CooldownMultiplier)
		if grown > b.cfg.MaxCooldown {
			grown = b.cfg.MaxCooldown
		}
		c.cooldown = grown
		b.advance(c, model.CircuitOpen)
		c.trialInFlight = false
		c.nextRetry = now.Add(c.cooldown)
	}
	to := c.state
	hook := b.onTransition
	b.mu.Unlock()

	if from != to && hook != nil {
		hook(t.key, from, to)
	}
}

// Call - Allow → fn → Record
func (b *Breakers) Call(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	t, err := b.Allow(key)
	if err != nil {
		return err
	}
	err = fn(ctx)
	b.Record(t, err)
	return err
}

// State - 현재 상태 (없으면 closed)
func (b *Breakers) State(key string) model.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.circuits[key]; ok {
		return c.state
	}
	return model.CircuitClosed
}

// Reset - 수동 초기화
func (b *Breakers) Reset(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.circuits, key)
}

// Snapshot - key 순으로 정렬된 상태 복사본
func (b *Breakers) Snapshot() []model.BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]model.BreakerSnapshot, 0, len(b.circuits))
	for key, c := range b.circuits {
		s := model.BreakerSnapshot{
			Key:          key,
			State:        c.state,
			FailureCount: c.failureCount,
		}
		if !c.lastFailure.IsZero() {
			t := c.lastFailure
			s.LastFailureTime = &t
		}
		if c.state != model.CircuitClosed && !c.nextRetry.IsZero() {
			t := c.nextRetry
			s.NextRetryTime = &t
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
