package interceptor

import (
	"io"
	"log"
	"log/slog"
	"net/http"
	"sync"
)

// Installer - 프로세스 전역 hook 설치/해제
//
// Install은 slog.Default()와 http.DefaultTransport를 감싸고 원래 참조를 보관함.
// Uninstall은 원래 참조를 되돌림. 둘 다 여러 번 호출해도 안전.
// slog.SetDefault가 log 패키지 출력도 바꾸므로 log의 writer/flags도 함께 보관.
// 기본 slog handler를 그대로 감싸면 log 패키지와 순환하므로 Install 전에 slog.SetDefault로 handler를 지정할 것.
type Installer struct {
	sink         Capturer
	warnPatterns []string
	transport    *Transport

	mu            sync.Mutex
	installed     bool
	origLogger    *slog.Logger
	origLogWriter io.Writer
	origLogFlags  int
	origTransport http.RoundTripper
}

// NewInstaller - warnPatterns가 비어 있으면 DefaultWarnPatterns 사용
func NewInstaller(sink Capturer, warnPatterns []string) *Installer {
	return &Installer{
		sink:         sink,
		warnPatterns: warnPatterns,
		transport:    NewTransport(nil, sink),
	}
}

// Transport - 설치되는 RoundTripper (요청/실패 카운터 조회용)
func (i *Installer) Transport() *Transport {
	return i.transport
}

// Install - 이미 설치되어 있으면 아무것도 하지 않음
func (i *Installer) Install() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.installed {
		return
	}

	i.origLogger = slog.Default()
	i.origLogWriter = log.Writer()
	i.origLogFlags = log.Flags()
	slog.SetDefault(slog.New(NewHandler(i.origLogger.Handler(), i.sink, i.warnPatterns)))

	i.origTransport = http.DefaultTransport
	i.transport.Base = i.origTransport
	http.DefaultTransport = i.transport

	i.installed = true
}

// Uninstall - 설치 전 상태로 복원
func (i *Installer) Uninstall() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.installed {
		return
	}

	slog.SetDefault(i.origLogger)
	log.SetOutput(i.origLogWriter)
	log.SetFlags(i.origLogFlags)
	http.DefaultTransport = i.origTransport
	i.origLogger = nil
	i.origLogWriter = nil
	i.origTransport = nil
	i.installed = false
}

// Installed - 설치 여부
func (i *Installer) Installed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.installed
}
