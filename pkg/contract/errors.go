package contract

import "errors"

// 最小错误分类（用于上层策略判定与日志归类）。
var (
	// ErrValidation: 输入为空等整体性错误，终止整次运行。
	ErrValidation = errors.New("validation failed")
	// ErrConfiguration: 未知类型、缺失组件或选项非法；单条失败，批次继续。
	ErrConfiguration = errors.New("configuration error")
	// ErrTransient: 超时/限流/上游 5xx，可重试。
	ErrTransient = errors.New("transient backend failure")
	// ErrFatal: 鉴权失败/请求非法，不重试。
	ErrFatal = errors.New("fatal backend failure")
	// ErrParse: 重试耗尽后仍无法恢复结构化载荷。
	ErrParse = errors.New("no structured payload")
	// ErrInvalidArgument: 调用方违反契约（如空候选集）。
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrPathInvalid: 工件标识映射为无效/越界路径。
	ErrPathInvalid = errors.New("path invalid")
)
