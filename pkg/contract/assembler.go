package contract

import (
	"context"
	"io"
)

// Assembler: 将已排序的结果与汇总编码为交付给渲染端的工件。
type Assembler interface {
	Assemble(ctx context.Context, pages []PageResult, summary RunSummary) (map[ArtifactID]io.Reader, error)
}
