// Package retry 驱动"请求→解析"循环：线性退避，致命错误短路，耗尽后返回诊断而非 panic。
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"pagegen/pkg/contract"
)

// Producer 执行一次后端调用，返回原始文本。
type Producer func(ctx context.Context) (string, error)

// Parser 从原始文本恢复结构化载荷；false 视为解析未命中并触发重试。
type Parser func(raw string) (map[string]any, bool)

// Outcome 为一次 Invoke 的结果。Value 为 nil 时 Err 给出诊断。
type Outcome struct {
	Value    map[string]any
	Raw      string
	Attempts int
	Err      error
}

// Coordinator 最多执行 MaxAttempts+1 次尝试；第 k 次（从 0 计）失败后等待 BaseDelay*(k+1)。
type Coordinator struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Timer 为 nil 时使用真实计时器；测试注入假计时器以免睡眠。
	Timer backoff.Timer
	// OnRetry 在每次等待前回调（可选），attempt 从 1 计。
	OnRetry func(attempt int, err error, next time.Duration)
}

// Linear 是 backoff.BackOff 的线性实现：第 n 次返回 base*n，超过 max 次返回 Stop。
type Linear struct {
	base time.Duration
	max  int
	n    int
}

// NewLinear 构造线性退避；max<0 视为 0。
func NewLinear(base time.Duration, max int) *Linear {
	if max < 0 {
		max = 0
	}
	if base < 0 {
		base = 0
	}
	return &Linear{base: base, max: max}
}

func (l *Linear) NextBackOff() time.Duration {
	if l.n >= l.max {
		return backoff.Stop
	}
	l.n++
	return l.base * time.Duration(l.n)
}

func (l *Linear) Reset() { l.n = 0 }

var _ backoff.BackOff = (*Linear)(nil)

var errParseMiss = fmt.Errorf("parse miss: %w", contract.ErrParse)

// Invoke 反复调用 producer 与 parser 直到得到载荷、遇到致命错误或尝试耗尽。
func (c Coordinator) Invoke(ctx context.Context, producer Producer, parser Parser) Outcome {
	var out Outcome
	if producer == nil || parser == nil {
		out.Err = fmt.Errorf("retry: nil producer or parser: %w", contract.ErrInvalidArgument)
		return out
	}
	op := func() error {
		out.Attempts++
		raw, err := producer(ctx)
		if err != nil {
			out.Raw = ""
			if errors.Is(err, contract.ErrFatal) || errors.Is(err, contract.ErrConfiguration) {
				return backoff.Permanent(err)
			}
			return err
		}
		out.Raw = raw
		v, ok := parser(raw)
		if !ok {
			return errParseMiss
		}
		out.Value = v
		return nil
	}
	var notify backoff.Notify
	if c.OnRetry != nil {
		notify = func(err error, next time.Duration) { c.OnRetry(out.Attempts, err, next) }
	}
	bo := backoff.WithContext(NewLinear(c.BaseDelay, c.MaxAttempts), ctx)
	err := backoff.RetryNotifyWithTimer(op, bo, notify, c.Timer)
	switch {
	case err == nil:
		return out
	case errors.Is(err, errParseMiss):
		out.Value = nil
		out.Err = fmt.Errorf("no valid payload after %d attempts: %w", out.Attempts, contract.ErrParse)
	default:
		out.Value = nil
		out.Err = err
	}
	return out
}
