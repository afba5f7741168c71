package contract

import (
	"context"
	"io"
)

// SourceID: 输入源标识（规范化路径或 "stdin"）。
type SourceID string

// Reader: 输入源抽象（文件/目录/STDIN）。
// 约束：按稳定顺序逐源回调；不做解析；不在内部起并发。
type Reader interface {
	Iterate(ctx context.Context, roots []string, yield func(src SourceID, r io.ReadCloser) error) error
}
