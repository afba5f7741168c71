package contract

import (
	"context"
	"fmt"
	"net/http"
)

// BackendClient: 文本生成后端（黑盒）。
// 单次调用、同步返回；超时由实现负责并归类为 ErrTransient。
type BackendClient interface {
	Generate(ctx context.Context, text string, maxTokens int) (string, error)
}

// UpstreamError 承载 HTTP 上游错误的最小诊断信息，供日志记录状态码。
type UpstreamError interface {
	error
	UpstreamStatus() int
	UpstreamMessage() string
}

// RetryableStatus 判定状态码是否可重试：408、429 与 5xx。
func RetryableStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code/100 == 5
}

// StatusError 为上游非 2xx 响应；Unwrap 按状态码返回 ErrTransient 或 ErrFatal。
type StatusError struct {
	Provider string
	Status   int
	Message  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s upstream %d: %s", e.Provider, e.Status, e.Message)
}

func (e *StatusError) Unwrap() error {
	if RetryableStatus(e.Status) {
		return ErrTransient
	}
	return ErrFatal
}

func (e *StatusError) UpstreamStatus() int     { return e.Status }
func (e *StatusError) UpstreamMessage() string { return e.Message }

var _ UpstreamError = (*StatusError)(nil)
