// Package template provides alert body template rendering for custom webhook channels.
//
// 지원하는 변수 형식:
//
//	{{alert.title}}, {{alert.message}}, {{alert.severity}},
//	{{alert.error_id}}, {{alert.component}}, {{alert.source}},
//	{{alert.timestamp}}, {{alert.link}}
package template

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/kube-rca/bugsys/internal/model"
)

// AlertData - 템플릿 렌더링에 사용할 알림 데이터
type AlertData struct {
	Title     string
	Message   string
	Severity  string
	ErrorID   string
	Component string
	Source    string
	Timestamp time.Time
	Link      string
}

// AlertDataFromPayload - model.AlertPayload에서 AlertData 생성
// frontendURL과 ErrorID가 모두 있을 때만 link 생성
func AlertDataFromPayload(p model.AlertPayload, frontendURL string) AlertData {
	link := ""
	if frontendURL != "" && p.ErrorID != "" {
		link = strings.TrimRight(frontendURL, "/") + "/errors/" + p.ErrorID
	}
	return AlertData{
		Title:     p.Title,
		Message:   p.Message,
		Severity:  string(p.Severity),
		ErrorID:   p.ErrorID,
		Component: p.Component,
		Source:    p.Source,
		Timestamp: p.Timestamp,
		Link:      link,
	}
}

// RenderBody - body 템플릿의 변수를 실제 값으로 치환
//
// escapeJSON이 true면 값을 JSON 문자열 내부에 들어갈 수 있게 이스케이프합니다.
// ("{\"text\": \"{{alert.message}}\"}" 처럼 JSON body에 넣는 경우)
func RenderBody(body string, alert AlertData, escapeJSON bool) string {
	ts := ""
	if !alert.Timestamp.IsZero() {
		ts = alert.Timestamp.UTC().Format(time.RFC3339)
	}

	values := []string{
		"{{alert.title}}", alert.Title,
		"{{alert.message}}", alert.Message,
		"{{alert.severity}}", alert.Severity,
		"{{alert.error_id}}", alert.ErrorID,
		"{{alert.component}}", alert.Component,
		"{{alert.source}}", alert.Source,
		"{{alert.timestamp}}", ts,
		"{{alert.link}}", alert.Link,
	}
	if escapeJSON {
		for i := 1; i < len(values); i += 2 {
			values[i] = jsonEscape(values[i])
		}
	}

	return strings.NewReplacer(values...).Replace(body)
}

// LooksLikeJSON - body가 JSON 객체/배열 형태인지
func LooksLikeJSON(body string) bool {
	trimmed := strings.TrimSpace(body)
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}

func jsonEscape(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	// 양쪽 따옴표 제거
	return string(b[1 : len(b)-1])
}
