// 외부 HTTP API 호출 공통 유틸
// 알림 채널/Agent 요청은 모두 캡처 파이프라인 내부 요청이므로 Untracked로 표시

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kube-rca/bugsys/internal/interceptor"
	"github.com/kube-rca/bugsys/internal/resilience"
)

const defaultHTTPTimeout = 10 * time.Second

// 응답 body는 에러 메시지용으로 앞부분만 사용
const maxErrorBody = 512

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// postJSON - JSON 요청 전송 후 응답 body 반환
// 2xx가 아니면 *resilience.StatusError (재시도 판단에 사용)
func postJSON(ctx context.Context, httpClient *http.Client, url string, headers map[string]string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return doRequest(ctx, httpClient, http.MethodPost, url, "application/json", headers, body)
}

func doRequest(ctx context.Context, httpClient *http.Client, method, url, contentType string, headers map[string]string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(interceptor.Untracked(ctx), method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(respBody)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return nil, &resilience.StatusError{StatusCode: resp.StatusCode, Message: msg}
	}
	return respBody, nil
}
