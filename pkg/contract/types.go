package contract

import (
	"strings"
	"time"
)

// Category: 活动页类型（封闭枚举）。
type Category string

const (
	Coloring    Category = "coloring"
	Tracing     Category = "tracing"
	Counting    Category = "counting"
	Maze        Category = "maze"
	Matching    Category = "matching"
	ConnectDots Category = "connect-the-dots"
)

// Categories 返回全部已知类型（稳定顺序）。
func Categories() []Category {
	return []Category{Coloring, Tracing, Counting, Maze, Matching, ConnectDots}
}

var categoryAliases = map[string]Category{
	"dot-to-dot":       ConnectDots,
	"dot_to_dot":       ConnectDots,
	"connect_the_dots": ConnectDots,
	"connect the dots": ConnectDots,
	"dots":             ConnectDots,
}

// ParseCategory 归一化（去空白+小写）并识别别名。
// 未知值原样（归一化后）返回，ok=false。
func ParseCategory(s string) (Category, bool) {
	n := strings.ToLower(strings.TrimSpace(s))
	for _, c := range Categories() {
		if string(c) == n {
			return c, true
		}
	}
	if c, ok := categoryAliases[n]; ok {
		return c, true
	}
	return Category(n), false
}

// PageRequest: 单页生成请求（输入，不可变）。
type PageRequest struct {
	Sequence   int      `json:"sequence"`
	Category   Category `json:"category"`
	Theme      string   `json:"theme"`
	PageNumber int      `json:"page_number"`
}

// PageResult: 每个被处理（未跳过）的请求恰好产出一条。
// Content 为类型相关的生成字段（已与页面字段合并）。
type PageResult struct {
	Sequence    int            `json:"sequence"`
	Category    Category       `json:"category"`
	Theme       string         `json:"theme"`
	PageNumber  int            `json:"page_number"`
	Label       string         `json:"label,omitempty"`
	Content     map[string]any `json:"content,omitempty"`
	Success     bool           `json:"success"`
	Error       string         `json:"error,omitempty"`
	ErrorCode   string         `json:"error_code,omitempty"`
	RawResponse string         `json:"raw_response,omitempty"`
	Attempts    int            `json:"attempts,omitempty"`
}

// Skip: 被限额拒绝（或运行取消）的请求记录。
type Skip struct {
	Sequence   int      `json:"sequence"`
	PageNumber int      `json:"page_number"`
	Category   Category `json:"category"`
	Reason     string   `json:"reason"`
}

// Failure: 汇总中的失败条目（便于人读）。
type Failure struct {
	Sequence   int      `json:"sequence"`
	PageNumber int      `json:"page_number"`
	Category   Category `json:"category"`
	Code       string   `json:"code"`
	Reason     string   `json:"reason"`
}

// RunSummary: 一次运行的汇总。
type RunSummary struct {
	Total       int                 `json:"total_processed"`
	Succeeded   int                 `json:"succeeded"`
	Failed      int                 `json:"failed"`
	Skipped     int                 `json:"skipped"`
	MaxTotal    int                 `json:"max_total,omitempty"`
	PerCategory map[string]int      `json:"per_category"`
	Limits      map[string]int      `json:"per_category_limits,omitempty"`
	Skips       []Skip              `json:"skips"`
	Failures    []Failure           `json:"failures"`
	Variety     map[string][]string `json:"variety_used"`
	Elapsed     time.Duration       `json:"elapsed_ns"`
	Canceled    bool                `json:"canceled,omitempty"`
}
