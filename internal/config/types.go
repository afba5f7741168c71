package config

import (
	"encoding/json"

	"pagegen/internal/limiter"
	"pagegen/internal/rate"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON/YAML 使用 snake_case；未知字段在解析期失败。
type Config struct {
	Inputs []string `json:"inputs"`
	// Difficulty: easy|medium|hard，空值与未知值按 easy 处理。
	Difficulty string `json:"difficulty"`
	// Seed: 多样性选择的随机种子；为空则每次运行不同。
	Seed *int64 `json:"seed,omitempty"`

	// 整型字段为指针：nil 表示未提供，显式 0 与负值都会被保留并交给 Validate。

	// MaxTotalPages: 总页数上限，0 表示不限。
	MaxTotalPages    *int         `json:"max_total_pages"`
	PagesPerCategory limiter.Caps `json:"pages_per_category"`

	Concurrency *int `json:"concurrency"`
	// MaxRetries: 每页额外重试次数（>=0）。0 表示不重试。
	MaxRetries       *int `json:"max_retries"`
	RetryBaseDelayMS *int `json:"retry_base_delay_ms"`
	PauseMS          *int `json:"pause_ms"`
	MaxOutputTokens  *int `json:"max_output_tokens"`

	Logging Logging `json:"logging"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`

	// 后端选择与定义。
	LLM      string              `json:"llm"`
	Provider map[string]Provider `json:"provider"`

	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`
}

// Logging: 仅日志等级可配置；输出路径与轮转策略为固定默认。
type Logging struct {
	Level string `json:"level"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader    string `json:"reader"`
	Splitter  string `json:"splitter"`
	Decoder   string `json:"decoder"`
	Assembler string `json:"assembler"`
	Writer    string `json:"writer"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Reader    json.RawMessage `json:"reader"`
	Splitter  json.RawMessage `json:"splitter"`
	Decoder   json.RawMessage `json:"decoder"`
	Assembler json.RawMessage `json:"assembler"`
	Writer    json.RawMessage `json:"writer"`
}

// Provider: 命名后端定义（client 实现 + options + 限额）。
type Provider struct {
	Client  string          `json:"client"`
	Options json.RawMessage `json:"options"`
	Limits  rate.Limits     `json:"limits"`
}

// Blank 返回一个空覆盖层（全部字段未设置）。
// CLI 标志与环境变量在此基础上填写后交给 Merge。
func Blank() Config {
	return Config{}
}

// Int 返回 v 的指针，便于填写整型字段。
func Int(v int) *int { return &v }

// IntValue 返回整型字段的值；未设置时为 0。
func IntValue(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
