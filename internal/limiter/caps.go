package limiter

import (
	"encoding/json"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Caps: 分类型上限（键已归一化）。
// 可由 JSON/YAML 对象或紧凑文本 "coloring=2,maze=1" 构造。
type Caps map[string]int

// ParseCaps 解析紧凑文本或 JSON 对象文本。
// 键小写；非正数与无法解析的条目被丢弃。
func ParseCaps(text string) Caps {
	s := strings.TrimSpace(text)
	if s == "" {
		return Caps{}
	}
	if strings.HasPrefix(s, "{") {
		var m map[string]any
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			return Caps{}
		}
		return fromAny(m)
	}
	out := Caps{}
	for _, part := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if n, ok := positive(strings.TrimSpace(v)); ok {
			out[k] = n
		}
	}
	return out
}

func fromAny(m map[string]any) Caps {
	out := Caps{}
	for k, v := range m {
		key := strings.ToLower(strings.TrimSpace(k))
		if key == "" {
			continue
		}
		if n, ok := positive(v); ok {
			out[key] = n
		}
	}
	return out
}

// positive 将数值/数字字符串转换为正整数。
func positive(v any) (int, bool) {
	var n int
	switch t := v.(type) {
	case int:
		n = t
	case int64:
		n = int(t)
	case float64:
		if t != float64(int(t)) {
			return 0, false
		}
		n = int(t)
	case string:
		p, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		n = p
	default:
		return 0, false
	}
	if n <= 0 {
		return 0, false
	}
	return n, true
}

// UnmarshalJSON 接受对象或紧凑文本字符串。
func (c *Caps) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*c = nil
		return nil
	}
	if strings.HasPrefix(s, "\"") {
		var text string
		if err := json.Unmarshal(b, &text); err != nil {
			return err
		}
		*c = ParseCaps(text)
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*c = fromAny(m)
	return nil
}

// UnmarshalYAML 与 UnmarshalJSON 语义一致。
func (c *Caps) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*c = ParseCaps(node.Value)
		return nil
	}
	var m map[string]any
	if err := node.Decode(&m); err != nil {
		return err
	}
	*c = fromAny(m)
	return nil
}
