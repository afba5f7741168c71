// Package matching 构建连线配对页请求（固定 4 对）；无可追踪标签。
package matching

import (
	"fmt"
	"strings"

	"pagegen/internal/prompt"
	"pagegen/pkg/contract"
)

// Pairs 为请求中示例配对的形状。
var Pairs = []string{"circle", "star", "heart", "square"}

type Strategy struct{}

func New() *Strategy { return &Strategy{} }

var _ contract.Strategy = (*Strategy)(nil)

func (*Strategy) Category() contract.Category { return contract.Matching }

func (*Strategy) Required() []string { return []string{"title", "instruction", "pairs"} }

func (*Strategy) Build(in contract.BuildInput) (contract.Request, error) {
	var b strings.Builder
	b.WriteString(prompt.StyleGuard(in.Theme, in.Difficulty))
	b.WriteString("Create a matching exercise for preschoolers.\n")
	fmt.Fprintf(&b, "Theme: %s\nPage: %d\n", in.Theme, in.PageNumber)
	fmt.Fprintf(&b, "Create EXACTLY %d pairs using variety.\n\n", len(Pairs))
	b.WriteString("Return ONLY valid JSON:\n")
	b.WriteString("{\n  \"title\": \"Match the Pairs!\",\n  \"instruction\": \"Draw lines to connect matching items\",\n  \"pairs\": [\n")
	for i, s := range Pairs {
		sep := ","
		if i == len(Pairs)-1 {
			sep = ""
		}
		fmt.Fprintf(&b, "    [{\"type\": \"shape\", \"shape\": %q}, {\"type\": \"shape\", \"shape\": %q}]%s\n", s, s, sep)
	}
	fmt.Fprintf(&b, "  ],\n  \"theme\": %q\n}", in.Theme)
	return contract.Request{Text: b.String()}, nil
}

func (*Strategy) ExtractSelection(map[string]any) (string, bool) { return "", false }
