package contract

import (
	"context"
	"io"
)

// Splitter: 将单个输入源解析为有序 PageRequest 序列。
// Sequence 由调用方统一重排，实现仅保证源内顺序。
type Splitter interface {
	Split(ctx context.Context, src SourceID, r io.Reader) ([]PageRequest, error)
}
