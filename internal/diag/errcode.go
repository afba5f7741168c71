package diag

import (
	"context"
	"errors"
	"net"
	"os"
	"strconv"

	"pagegen/pkg/contract"
)

// Code 是错误分类代码。
// 仅用于日志/指标汇总，与退出码解耦。
type Code string

const (
	CodeUnknown    Code = "unknown"
	CodeValidation Code = "validation"
	CodeConfig     Code = "config"
	CodeTransient  Code = "transient"
	CodeFatal      Code = "fatal"
	CodeParse      Code = "parse"
	CodeCancel     Code = "cancel"
	CodeNetwork    Code = "network"
	CodeIO         Code = "io"
)

// Classify 将错误归类。
// 仅依赖哨兵错误与标准库错误类型，不做字符串匹配。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	// 取消/超时优先
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	switch {
	case errors.Is(err, contract.ErrValidation):
		return CodeValidation
	case errors.Is(err, contract.ErrConfiguration), errors.Is(err, contract.ErrInvalidArgument):
		return CodeConfig
	case errors.Is(err, contract.ErrParse):
		return CodeParse
	case errors.Is(err, contract.ErrFatal):
		return CodeFatal
	case errors.Is(err, contract.ErrTransient):
		return CodeTransient
	case errors.Is(err, contract.ErrPathInvalid):
		return CodeIO
	}
	var perr *os.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return CodeNetwork
	}
	return CodeUnknown
}

// StatusKV 提取上游 HTTP 状态用于日志；非上游错误返回 nil。
func StatusKV(err error) map[string]string {
	var ue contract.UpstreamError
	if !errors.As(err, &ue) {
		return nil
	}
	kv := map[string]string{"status": strconv.Itoa(ue.UpstreamStatus())}
	if msg := ue.UpstreamMessage(); msg != "" {
		if len(msg) > 200 {
			msg = msg[:200]
		}
		kv["upstream"] = msg
	}
	return kv
}
