package contract

// Extractor: 从自由文本中尽力恢复结构化载荷；永不报错。
type Extractor interface {
	Extract(raw string) (map[string]any, bool)
}
