// Package anthropic 通过 Messages API（net/http）调用 Claude 生成页面载荷。
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"pagegen/pkg/contract"
)

const (
	DefaultModel     = "claude-3-5-sonnet-20241022"
	DefaultMaxTokens = 768
	apiVersion       = "2023-06-01"
)

// Options: 最小必需配置。
type Options struct {
	BaseURL        string            `json:"base_url"`    // 默认 https://api.anthropic.com
	Model          string            `json:"model"`       // 为空则使用 DefaultModel
	APIKeyEnv      string            `json:"api_key_env"` // 默认 ANTHROPIC_API_KEY
	APIKey         string            `json:"api_key"`
	TimeoutSeconds int               `json:"timeout_seconds"` // 单次调用超时，默认 120
	MaxTokens      int               `json:"max_tokens"`      // 调用方未指定时的上限
	Temperature    *float64          `json:"temperature,omitempty"`
	ExtraHeaders   map[string]string `json:"extra_headers"`
}

func (o *Options) defaults() {
	if o.BaseURL == "" {
		o.BaseURL = "https://api.anthropic.com"
	}
	if o.Model == "" {
		o.Model = DefaultModel
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "ANTHROPIC_API_KEY"
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 120
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
}

type Client struct {
	url       string
	apiKey    string
	model     string
	maxTokens int
	temp      *float64
	extraH    map[string]string
	do        func(*http.Request) (*http.Response, error)
}

// New 从原样 JSON 选项构造客户端。
func New(raw json.RawMessage) (contract.BackendClient, error) {
	var opts Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, fmt.Errorf("anthropic options: %v: %w", err, contract.ErrConfiguration)
		}
	}
	opts.defaults()
	key := opts.APIKey
	if key == "" {
		key = os.Getenv(opts.APIKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("anthropic: %w: missing api key", contract.ErrConfiguration)
	}
	hc := &http.Client{Timeout: time.Duration(opts.TimeoutSeconds) * time.Second}
	return &Client{
		url:       strings.TrimRight(opts.BaseURL, "/") + "/v1/messages",
		apiKey:    key,
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		temp:      opts.Temperature,
		extraH:    opts.ExtraHeaders,
		do:        hc.Do,
	}, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Messages    []message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type response struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Generate 单次调用，同步返回拼接后的文本块。
func (c *Client) Generate(ctx context.Context, text string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	body, err := json.Marshal(&request{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Messages:    []message{{Role: "user", Content: text}},
		Temperature: c.temp,
	})
	if err != nil {
		return "", fmt.Errorf("encode: %v: %w", err, contract.ErrFatal)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %v: %w", err, contract.ErrFatal)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.extraH {
		if k != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.do(req)
	if err != nil {
		return "", transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", &contract.StatusError{Provider: "anthropic", Status: resp.StatusCode, Message: strings.TrimSpace(string(slurp))}
	}
	var ar response
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return "", fmt.Errorf("anthropic decode: %v: %w", err, contract.ErrTransient)
	}
	var sb strings.Builder
	for _, blk := range ar.Content {
		if blk.Type == "" || blk.Type == "text" {
			sb.WriteString(blk.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("anthropic: empty content: %w", contract.ErrTransient)
	}
	return sb.String(), nil
}

// transportError 将超时与网络错误归为可重试；调用方取消原样返回。
func transportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("anthropic transport: %v: %w", err, contract.ErrTransient)
}

var _ contract.BackendClient = (*Client)(nil)
