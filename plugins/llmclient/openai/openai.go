// Package openai 通过官方 openai-go SDK 的 Chat Completions 生成页面载荷。
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"pagegen/pkg/contract"
)

// Options: 最小必需配置。
type Options struct {
	BaseURL        string            `json:"base_url"`    // 例如 https://api.openai.com/v1；OpenAI 兼容服务可覆盖
	Model          string            `json:"model"`       // 为空则使用默认
	APIKeyEnv      string            `json:"api_key_env"` // 优先从环境变量读取
	APIKey         string            `json:"api_key"`     // 明文传入（不推荐，按需用于测试）
	TimeoutSeconds int               `json:"timeout_seconds"`
	Temperature    *float64          `json:"temperature,omitempty"`
	ExtraHeaders   map[string]string `json:"extra_headers"`
}

func (o *Options) defaults() {
	if o.Model == "" {
		o.Model = "gpt-4.1-mini"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "OPENAI_API_KEY"
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 60
	}
}

type Client struct {
	client openai.Client
	model  string
	temp   *float64
}

// New 从原样 JSON 选项构造客户端；SDK 自带重试关闭，由上层协调重试。
func New(raw json.RawMessage) (contract.BackendClient, error) {
	var opts Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, fmt.Errorf("openai options: %v: %w", err, contract.ErrConfiguration)
		}
	}
	opts.defaults()
	key := opts.APIKey
	if key == "" {
		key = os.Getenv(opts.APIKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("openai: %w: missing api key", contract.ErrConfiguration)
	}
	ro := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(time.Duration(opts.TimeoutSeconds) * time.Second),
	}
	if opts.BaseURL != "" {
		ro = append(ro, option.WithBaseURL(opts.BaseURL))
	}
	for k, v := range opts.ExtraHeaders {
		if k != "" {
			ro = append(ro, option.WithHeader(k, v))
		}
	}
	return &Client{client: openai.NewClient(ro...), model: opts.Model, temp: opts.Temperature}, nil
}

// Generate: 单次调用，同步返回首个候选文本。
func (c *Client) Generate(ctx context.Context, text string, maxTokens int) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(text)},
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(maxTokens))
	}
	if c.temp != nil {
		params.Temperature = openai.Float(*c.temp)
	}
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("openai: empty choices: %w", contract.ErrTransient)
	}
	return resp.Choices[0].Message.Content, nil
}

// classify 将 SDK 错误映射为分类错误；API 错误保留状态码。
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &contract.StatusError{Provider: "openai", Status: apiErr.StatusCode, Message: apiErr.Error()}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("openai transport: %v: %w", err, contract.ErrTransient)
}

var _ contract.BackendClient = (*Client)(nil)
