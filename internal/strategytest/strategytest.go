// Package strategytest 提供策略测试共用的桩件。
package strategytest

import (
	"encoding/json"
	"fmt"
	"strings"

	"pagegen/pkg/contract"
)

// FirstChooser 总是选第一个候选，并记录收到的候选集。
type FirstChooser struct {
	Seen [][]string
}

func (c *FirstChooser) Choose(cands []string) (string, error) {
	c.Seen = append(c.Seen, cands)
	if len(cands) == 0 {
		return "", contract.ErrInvalidArgument
	}
	return cands[0], nil
}

// Pick 返回固定标签的 Chooser。
func Pick(label string) contract.Chooser {
	return func([]string) (string, error) { return label, nil }
}

// Contract 取出请求文本中内嵌的 JSON 契约并解析。
func Contract(text string) (map[string]any, error) {
	i, j := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if i < 0 || j < i {
		return nil, fmt.Errorf("no json block")
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(text[i:j+1]), &m); err != nil {
		return nil, err
	}
	return m, nil
}
