// Package booklet 将有序页面结果与运行汇总编码为 JSON 工件。
package booklet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"pagegen/pkg/contract"
)

// Options 装配选项。
type Options struct {
	// Format: json（默认，单个数组）或 jsonl（每页一行）。
	Format string `json:"format"`
	// Name: 工件基名，默认 "pages"；汇总固定为 <Name 前缀>summary.json。
	Name string `json:"name"`
	// Compact: 为 true 时不缩进（jsonl 恒为紧凑）。
	Compact bool `json:"compact"`
	// KeepRaw: 成功页也保留原始响应文本；默认只有失败页保留。
	KeepRaw bool `json:"keep_raw"`
}

type assembler struct {
	jsonl   bool
	name    string
	compact bool
	keepRaw bool
}

// New 从原样 JSON Options 创建装配器（未知字段报错）。
func New(raw json.RawMessage) (contract.Assembler, error) {
	var opts Options
	if len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&opts); err != nil {
			return nil, fmt.Errorf("booklet options: %v: %w", err, contract.ErrConfiguration)
		}
	}
	a := &assembler{name: strings.TrimSpace(opts.Name), compact: opts.Compact, keepRaw: opts.KeepRaw}
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "json":
	case "jsonl":
		a.jsonl = true
	default:
		return nil, fmt.Errorf("booklet: unknown format %q: %w", opts.Format, contract.ErrConfiguration)
	}
	if a.name == "" {
		a.name = "pages"
	}
	return a, nil
}

// Assemble 输出两个工件：页面（按输入顺序，调用方已排序）与汇总。
func (a *assembler) Assemble(ctx context.Context, pages []contract.PageResult, summary contract.RunSummary) (map[contract.ArtifactID]io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]contract.PageResult, len(pages))
	for i, p := range pages {
		if p.Success && !a.keepRaw {
			p.RawResponse = ""
		}
		out[i] = p
	}
	var pagesBuf bytes.Buffer
	ext := ".json"
	if a.jsonl {
		ext = ".jsonl"
		enc := json.NewEncoder(&pagesBuf)
		enc.SetEscapeHTML(false)
		for _, p := range out {
			if err := enc.Encode(p); err != nil {
				return nil, err
			}
		}
	} else if err := a.encode(&pagesBuf, out); err != nil {
		return nil, err
	}
	if summary.Skips == nil {
		summary.Skips = []contract.Skip{}
	}
	if summary.Failures == nil {
		summary.Failures = []contract.Failure{}
	}
	var sumBuf bytes.Buffer
	if err := a.encode(&sumBuf, summary); err != nil {
		return nil, err
	}
	return map[contract.ArtifactID]io.Reader{
		contract.ArtifactID(a.name + ext):   &pagesBuf,
		contract.ArtifactID("summary.json"): &sumBuf,
	}, nil
}

func (a *assembler) encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if !a.compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

var _ contract.Assembler = (*assembler)(nil)
