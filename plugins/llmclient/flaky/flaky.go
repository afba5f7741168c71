package flaky

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"

	"pagegen/pkg/contract"
	"pagegen/plugins/llmclient/mock"
)

// Options 定义可选项。
type Options struct {
	// LogPath: 调试用日志文件，记录每次调用结果（可选）。
	LogPath string `json:"log_path,omitempty"`
}

// Client 是带状态的后端实现：
// 第一次 Generate 返回 ErrTransient；
// 第二次返回无法解析的文本；
// 之后委托给 mock 后端回显契约。
type Client struct {
	logPath string
	count   atomic.Int32
	next    contract.BackendClient
}

// New 构造 Client。
func New(raw json.RawMessage) (contract.BackendClient, error) {
	var o Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("flaky options: %v: %w", err, contract.ErrConfiguration)
		}
	}
	next, err := mock.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{logPath: o.LogPath, next: next}, nil
}

func (c *Client) log(s string) {
	if c.logPath == "" {
		return
	}
	// 追加写入，忽略错误。
	_ = appendFile(c.logPath, s+"\n")
}

// appendFile 以追加方式写入。
func appendFile(path, s string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(s)
	return err
}

// Generate 实现 contract.BackendClient。
func (c *Client) Generate(ctx context.Context, text string, maxTokens int) (string, error) {
	switch c.count.Add(1) {
	case 1:
		c.log("transient")
		return "", fmt.Errorf("flaky: simulated rate limit: %w", contract.ErrTransient)
	case 2:
		c.log("invalid")
		return "invalid", nil
	default:
		c.log("ok")
		return c.next.Generate(ctx, text, maxTokens)
	}
}

var _ contract.BackendClient = (*Client)(nil)
