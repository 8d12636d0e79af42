package interceptor

import "context"

type untrackedKey struct{}

// Untracked - 이 context로 나가는 HTTP 요청은 Transport가 캡처하지 않음
// 알림 채널/AI 분석 등 캡처 파이프라인 내부 요청에 사용 (캡처 루프 방지)
func Untracked(ctx context.Context) context.Context {
	return context.WithValue(ctx, untrackedKey{}, true)
}

// IsUntracked - Untracked 표시 여부
func IsUntracked(ctx context.Context) bool {
	v, _ := ctx.Value(untrackedKey{}).(bool)
	return v
}
