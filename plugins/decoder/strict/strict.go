// Package strict 只接受整段文本恰为一个 JSON 对象的响应，不做修复。
package strict

import (
	"bytes"
	"encoding/json"
	"strings"

	"pagegen/pkg/contract"
)

type Options struct{}

type extractor struct{}

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

func (extractor) Extract(raw string) (map[string]any, bool) {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	dec := json.NewDecoder(strings.NewReader(s))
	var m map[string]any
	if err := dec.Decode(&m); err != nil || m == nil {
		return nil, false
	}
	// 对象之后不得再有内容
	if dec.More() {
		return nil, false
	}
	if _, err := dec.Token(); err == nil {
		return nil, false
	}
	return m, true
}
