package contract

import (
	"context"
	"io"
)

// ArtifactID: 输出工件标识（相对路径）。
type ArtifactID string

// Writer: 将工件以流式方式持久化。
// 约束：同一 ArtifactID 单写者；按字节透传；ctx 取消需尽快返回；错误直接上抛。
type Writer interface {
	Write(ctx context.Context, id ArtifactID, r io.Reader) error
}
