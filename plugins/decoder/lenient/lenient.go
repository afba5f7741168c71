// Package lenient 从后端自由文本中尽力恢复 JSON 对象载荷。
//
// 处理顺序：去除 ```json / ``` 围栏标记；取第一个 '{' 到最后一个 '}' 之间的片段；
// 解析失败时删除 '}' / ']' 前的尾逗号再解析一次；仍失败则返回 none。从不报错。
package lenient

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"pagegen/pkg/contract"
)

// Options 当前无可调项；保留以便注册表严格解码。
type Options struct{}

type extractor struct{}

// New 从原样 JSON Options 创建解析器（未知字段报错）。
func New(raw json.RawMessage) (contract.Extractor, error) {
	if len(raw) > 0 {
		var opts Options
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&opts); err != nil {
			return nil, err
		}
	}
	return extractor{}, nil
}

var _ contract.Extractor = extractor{}

var trailingComma = regexp.MustCompile(`,\s*([}\]])`)

func (extractor) Extract(raw string) (map[string]any, bool) {
	return Extract(raw)
}

// Extract 为包级便捷入口，供 mock 后端与测试复用。
func Extract(raw string) (map[string]any, bool) {
	s := strings.ReplaceAll(raw, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	i, j := strings.Index(s, "{"), strings.LastIndex(s, "}")
	if i < 0 || j <= i {
		return nil, false
	}
	frag := s[i : j+1]
	if m, ok := object(frag); ok {
		return m, true
	}
	return object(trailingComma.ReplaceAllString(frag, "$1"))
}

func object(s string) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}
