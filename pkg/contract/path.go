package contract

import (
	"path"
	"strings"
)

// NormalizeSourceID 规范化路径为跨平台稳定的 SourceID：统一正斜杠并清理冗余片段。
func NormalizeSourceID(p string) SourceID {
	return SourceID(path.Clean(strings.ReplaceAll(p, "\\", "/")))
}
