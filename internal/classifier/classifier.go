// Package classifier maps a normalized failure to a severity and a failure kind.
//
// 분류는 순수 함수로 동작함: 같은 입력이면 항상 같은 결과, 부수효과 없음.
// 규칙은 순서대로 검사하며 첫 번째로 매칭되는 규칙이 결과를 결정함.
package classifier

import (
	"strings"

	"github.com/kube-rca/bugsys/internal/model"
)

// Rule - name/message 소문자 문자열에 대한 substring 매칭 규칙
// Severity 또는 Kind 중 설정된 값만 결과에 반영됨
type Rule struct {
	Name     string            `yaml:"name"`
	Patterns []string          `yaml:"patterns"`
	Severity model.Severity    `yaml:"severity"`
	Kind     model.FailureKind `yaml:"kind"`
}

func (r Rule) matches(text string) bool {
	for _, p := range r.Patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" && strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// Hints - 호출 측에서 알고 있는 분류 정보 (명시적 override)
type Hints struct {
	Severity model.Severity
	Kind     model.FailureKind
}

// authStatus - 401/403 상태 코드 표기 (axios/fetch, Go http 클라이언트 메시지)
var authStatus = []string{
	"status 401", "status 403", "code 401", "code 403", "http 401", "http 403",
	"401 unauthorized", "403 forbidden",
}

var defaultSeverityRules = []Rule{
	{Name: "chunk-or-network", Severity: model.SeverityCritical,
		Patterns: []string{"chunk", "network error", "failed to fetch", "networkerror"}},
	{Name: "logic-or-auth", Severity: model.SeverityHigh,
		Patterns: append([]string{"typeerror", "referenceerror", "unauthorized", "forbidden", "nil pointer", "invalid memory address"}, authStatus...)},
	{Name: "noise", Severity: model.SeverityLow,
		Patterns: []string{"warning", "validation", "deprecated"}},
}

var defaultKindRules = []Rule{
	{Name: "auth", Kind: model.KindAuth,
		Patterns: append([]string{"unauthorized", "forbidden", "token expired", "invalid token"}, authStatus...)},
	{Name: "resource", Kind: model.KindResourceLoad,
		Patterns: []string{"resourceloaderror", "loading chunk", "chunkloaderror", "failed to load resource"}},
	{Name: "transient", Kind: model.KindTransientInfra,
		Patterns: []string{"network", "timeout", "timed out", "failed to fetch", "connection refused",
			"connection reset", "deadline exceeded", "status 500", "status 502", "status 503", "status 504",
			"code 500", "code 502", "code 503", "code 504",
			"service unavailable", "bad gateway", "unexpected eof"}},
	{Name: "logic", Kind: model.KindClientLogic,
		Patterns: []string{"typeerror", "referenceerror", "nil pointer", "invalid memory address",
			"index out of range", "undefined", "null"}},
	{Name: "performance", Kind: model.KindPerformance,
		Patterns: []string{"longtask", "long task", "slow request"}},
}

// Classifier - 불변 규칙 집합. 생성 이후 변경하지 않으므로 동시 호출에 안전
type Classifier struct {
	severityRules []Rule
	kindRules     []Rule
}

// New - extra 규칙은 기본 규칙보다 먼저 검사됨
func New(extra ...Rule) *Classifier {
	c := &Classifier{}
	for _, r := range extra {
		if r.Severity.Valid() {
			c.severityRules = append(c.severityRules, r)
		}
		if r.Kind != "" {
			c.kindRules = append(c.kindRules, r)
		}
	}
	c.severityRules = append(c.severityRules, defaultSeverityRules...)
	c.kindRules = append(c.kindRules, defaultKindRules...)
	return c
}

// Classify - 명시적 override가 유효하면 우선, 아니면 규칙 매칭, 그 외 medium
func (c *Classifier) Classify(f model.NormalizedFailure, hints Hints) model.Severity {
	if hints.Severity.Valid() {
		return hints.Severity
	}
	text := haystack(f.Name, f.Message)
	for _, r := range c.severityRules {
		if r.matches(text) {
			return r.Severity
		}
	}
	return model.SeverityMedium
}

// KindOf - 에러 분류 체계(transient_infra, client_logic, auth ...)로 매핑
func (c *Classifier) KindOf(name, message string) model.FailureKind {
	text := haystack(name, message)
	for _, r := range c.kindRules {
		if r.matches(text) {
			return r.Kind
		}
	}
	return model.KindUnknown
}

// Retryable - 재시도 가능한 kind인지 (transient_infra, unknown만 재시도)
func Retryable(kind model.FailureKind) bool {
	switch kind {
	case model.KindClientLogic, model.KindAuth:
		return false
	default:
		return true
	}
}

func haystack(name, message string) string {
	return strings.ToLower(name + " " + message)
}

var std = New()

// Classify - 기본 규칙만 사용하는 패키지 레벨 헬퍼
func Classify(f model.NormalizedFailure, hints Hints) model.Severity {
	return std.Classify(f, hints)
}

// KindOf - 기본 규칙만 사용하는 패키지 레벨 헬퍼
func KindOf(name, message string) model.FailureKind {
	return std.KindOf(name, message)
}
