// Package mock 提供离线后端：回显请求文本中内嵌的 JSON 契约，便于无网络联调。
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"pagegen/pkg/contract"
)

// 契约标记：请求文本在该标记之后给出期望的 JSON 结构。
const contractMarker = "Return ONLY valid JSON"

// Options: 最小调试配置（可选）。
type Options struct {
	// ResponseMode 响应模式：
	//  - "" 或 "fenced": 以 ```json 围栏包裹契约 JSON（默认，检验围栏剥离）。
	//  - "plain": 原样返回契约 JSON。
	//  - "invalid": 始终返回不可解析文本。
	ResponseMode string `json:"response_mode,omitempty"`
	// APIKey: 仅用于限流分组（调试用），不参与任何网络请求。
	APIKey string `json:"api_key,omitempty"`
}

type Client struct {
	mode string
}

func New(raw json.RawMessage) (contract.BackendClient, error) {
	var o Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("mock options: %v: %w", err, contract.ErrConfiguration)
		}
	}
	switch o.ResponseMode {
	case "", "fenced", "plain", "invalid":
	default:
		return nil, fmt.Errorf("mock: unknown response_mode %q: %w", o.ResponseMode, contract.ErrConfiguration)
	}
	return &Client{mode: o.ResponseMode}, nil
}

// Contract 取出请求文本中契约标记之后的 JSON 片段；缺失时返回 false。
func Contract(text string) (string, bool) {
	i := strings.Index(text, contractMarker)
	if i < 0 {
		return "", false
	}
	rest := text[i:]
	l, r := strings.Index(rest, "{"), strings.LastIndex(rest, "}")
	if l < 0 || r <= l {
		return "", false
	}
	return rest[l : r+1], true
}

func (c *Client) Generate(ctx context.Context, text string, _ int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.mode == "invalid" {
		return "I am not able to produce JSON today.", nil
	}
	body, ok := Contract(text)
	if !ok {
		return "", fmt.Errorf("mock: request has no json contract: %w", contract.ErrFatal)
	}
	if c.mode == "plain" {
		return body, nil
	}
	return "```json\n" + body + "\n```", nil
}

var _ contract.BackendClient = (*Client)(nil)
