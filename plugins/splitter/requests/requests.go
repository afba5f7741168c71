// Package requests 将请求文件解析为有序 PageRequest 序列。
//
// 支持的格式：JSON 数组、{"pages":[...]} 包装、单个 JSON 对象、JSONL 与 YAML。
// 每条请求接受 category 或 type、page_number 或 pageNumber 两套字段名。
package requests

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"pagegen/pkg/contract"
)

// Options 为 requests Splitter 的可选配置。
type Options struct {
	// Format: auto（默认，按扩展名与内容嗅探）、json、jsonl、yaml。
	Format string `json:"format"`
	// DefaultTheme: 条目缺少 theme 时使用；为空则留空交由管线归一化。
	DefaultTheme string `json:"default_theme"`
}

type Splitter struct {
	format string
	theme  string
}

// New 创建 Splitter；未知格式名报 ErrConfiguration。
func New(opts *Options) (*Splitter, error) {
	if opts == nil {
		opts = &Options{}
	}
	f := strings.ToLower(strings.TrimSpace(opts.Format))
	switch f {
	case "", "auto":
		f = "auto"
	case "json", "jsonl", "yaml":
	case "yml":
		f = "yaml"
	default:
		return nil, fmt.Errorf("requests splitter: unknown format %q: %w", opts.Format, contract.ErrConfiguration)
	}
	return &Splitter{format: f, theme: opts.DefaultTheme}, nil
}

var _ contract.Splitter = (*Splitter)(nil)

// Split 解析单个输入源。空输入返回零条请求。
func (s *Splitter) Split(ctx context.Context, src contract.SourceID, r io.Reader) ([]contract.PageRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s: read: %w", src, err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	entries, err := s.decode(src, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", src, err, contract.ErrValidation)
	}
	out := make([]contract.PageRequest, 0, len(entries))
	for i, e := range entries {
		m, ok := e.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: entry %d is not an object: %w", src, i+1, contract.ErrValidation)
		}
		pr, err := s.request(m)
		if err != nil {
			return nil, fmt.Errorf("%s: entry %d: %v: %w", src, i+1, err, contract.ErrValidation)
		}
		pr.Sequence = i
		out = append(out, pr)
	}
	return out, nil
}

func (s *Splitter) decode(src contract.SourceID, data []byte) ([]any, error) {
	format := s.format
	if format == "auto" {
		format = sniff(string(src), data)
	}
	switch format {
	case "jsonl":
		return decodeJSONL(data)
	case "yaml":
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("yaml: %v", err)
		}
		return unwrap(v)
	default:
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			// 多个顶层对象按 JSONL 处理
			if s.format == "auto" && firstByte(data) == '{' {
				return decodeJSONL(data)
			}
			return nil, fmt.Errorf("json: %v", err)
		}
		return unwrap(v)
	}
}

// sniff 依扩展名优先判定格式；否则以首个非空白字符区分 JSON 与 YAML。
func sniff(src string, data []byte) string {
	switch strings.ToLower(path.Ext(src)) {
	case ".jsonl", ".ndjson":
		return "jsonl"
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	}
	switch firstByte(data) {
	case '[', '{':
		return "json"
	default:
		return "yaml"
	}
}

func firstByte(data []byte) byte {
	t := bytes.TrimSpace(data)
	if len(t) == 0 {
		return 0
	}
	return t[0]
}

func decodeJSONL(data []byte) ([]any, error) {
	var out []any
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 4<<20)
	line := 0
	for sc.Scan() {
		line++
		t := bytes.TrimSpace(sc.Bytes())
		if len(t) == 0 {
			continue
		}
		var v any
		if err := json.Unmarshal(t, &v); err != nil {
			return nil, fmt.Errorf("jsonl line %d: %v", line, err)
		}
		out = append(out, v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// unwrap 接受数组、{"pages":[...]} 或单个请求对象。
func unwrap(v any) ([]any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return t, nil
	case map[string]any:
		if p, ok := t["pages"]; ok {
			arr, ok := p.([]any)
			if !ok && p != nil {
				return nil, fmt.Errorf("pages must be a list")
			}
			return arr, nil
		}
		return []any{t}, nil
	default:
		return nil, fmt.Errorf("unsupported top-level %T", v)
	}
}

func (s *Splitter) request(m map[string]any) (contract.PageRequest, error) {
	var pr contract.PageRequest
	raw := firstString(m, "category", "type")
	if c, ok := contract.ParseCategory(raw); ok {
		pr.Category = c
	} else {
		// 未知类型原样保留，由管线记录为失败结果
		pr.Category = contract.Category(strings.ToLower(strings.TrimSpace(raw)))
	}
	pr.Theme = firstString(m, "theme")
	if pr.Theme == "" {
		pr.Theme = s.theme
	}
	for _, k := range []string{"page_number", "pageNumber"} {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		n, err := toInt(v)
		if err != nil {
			return pr, fmt.Errorf("%s: %v", k, err)
		}
		pr.PageNumber = n
		break
	}
	return pr, nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return strings.TrimSpace(fmt.Sprint(v))
		}
	}
	return ""
}

func toInt(v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case uint64:
		return int(t), nil
	case float64:
		if t != float64(int(t)) {
			return 0, fmt.Errorf("not an integer: %v", t)
		}
		return int(t), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(t))
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
