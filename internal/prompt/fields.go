package prompt

import (
	"strconv"
	"strings"
	"unicode"
)

// StringField 读取解析载荷中的标量字段并转为字符串；数值按整数格式化。
func StringField(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", false
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case float64:
		if t != float64(int64(t)) {
			s = strconv.FormatFloat(t, 'f', -1, 64)
		} else {
			s = strconv.FormatInt(int64(t), 10)
		}
	case int:
		s = strconv.Itoa(t)
	case bool:
		s = strconv.FormatBool(t)
	default:
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// HasFields 判断载荷包含全部必填键（值非 nil）。
func HasFields(m map[string]any, keys []string) bool {
	for _, k := range keys {
		if v, ok := m[k]; !ok || v == nil {
			return false
		}
	}
	return true
}

// Title 将每个单词首字母大写。
func Title(s string) string {
	rs := []rune(s)
	up := true
	for i, r := range rs {
		if unicode.IsSpace(r) || r == '-' {
			up = true
			continue
		}
		if up {
			rs[i] = unicode.ToUpper(r)
			up = false
		}
	}
	return string(rs)
}
