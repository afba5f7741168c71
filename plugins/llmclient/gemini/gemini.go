// Package gemini 通过 google.golang.org/genai 的 Models.GenerateContent 生成页面载荷。
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"google.golang.org/genai"

	"pagegen/pkg/contract"
)

// Options: Gemini API 最小必需。
type Options struct {
	BaseURL   string `json:"base_url"`    // 为空则使用 SDK 默认端点
	Model     string `json:"model"`       // 默认 gemini-2.5-flash
	APIKeyEnv string `json:"api_key_env"` // 默认 GOOGLE_API_KEY
	APIKey    string `json:"api_key"`
	// 单次调用超时（秒）。未设置或 <=0 时采用默认 60 秒。
	TimeoutSeconds int      `json:"timeout_seconds,omitempty"`
	Temperature    *float32 `json:"temperature,omitempty"`
	// ResponseMIMEType 非空时要求后端按该 MIME 输出（如 application/json）。
	ResponseMIMEType string `json:"response_mime_type,omitempty"`
}

func (o *Options) defaults() {
	if o.Model == "" {
		o.Model = "gemini-2.5-flash"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "GOOGLE_API_KEY"
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 60
	}
}

type Client struct {
	client   *genai.Client
	model    string
	temp     *float32
	respMIME string
}

func New(raw json.RawMessage) (contract.BackendClient, error) {
	var opts Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, fmt.Errorf("gemini options: %v: %w", err, contract.ErrConfiguration)
		}
	}
	opts.defaults()
	key := opts.APIKey
	if key == "" {
		key = os.Getenv(opts.APIKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("gemini: %w: missing api key", contract.ErrConfiguration)
	}
	cfg := &genai.ClientConfig{
		APIKey:     key,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: time.Duration(opts.TimeoutSeconds) * time.Second},
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	gc, err := genai.NewClient(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %v: %w", err, contract.ErrConfiguration)
	}
	return &Client{client: gc, model: opts.Model, temp: opts.Temperature, respMIME: opts.ResponseMIMEType}, nil
}

func (c *Client) Generate(ctx context.Context, text string, maxTokens int) (string, error) {
	gcfg := &genai.GenerateContentConfig{Temperature: c.temp, ResponseMIMEType: c.respMIME}
	if maxTokens > 0 {
		gcfg.MaxOutputTokens = int32(maxTokens)
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(text), gcfg)
	if err != nil {
		return "", classify(err)
	}
	out := resp.Text()
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("gemini: empty candidates: %w", contract.ErrTransient)
	}
	return out, nil
}

// classify 将 SDK 错误映射为分类错误；API 错误保留状态码。
func classify(err error) error {
	var ae genai.APIError
	if errors.As(err, &ae) {
		return &contract.StatusError{Provider: "gemini", Status: ae.Code, Message: ae.Message}
	}
	var pae *genai.APIError
	if errors.As(err, &pae) && pae != nil {
		return &contract.StatusError{Provider: "gemini", Status: pae.Code, Message: pae.Message}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("gemini transport: %v: %w", err, contract.ErrTransient)
}

var _ contract.BackendClient = (*Client)(nil)
