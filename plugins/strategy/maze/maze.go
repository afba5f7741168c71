// Package maze 构建迷宫页请求；无可追踪标签。
package maze

import (
	"fmt"
	"strings"

	"pagegen/internal/prompt"
	"pagegen/pkg/contract"
)

type Strategy struct{}

func New() *Strategy { return &Strategy{} }

var _ contract.Strategy = (*Strategy)(nil)

func (*Strategy) Category() contract.Category { return contract.Maze }

func (*Strategy) Required() []string { return []string{"title", "instruction", "difficulty"} }

func (*Strategy) Build(in contract.BuildInput) (contract.Request, error) {
	d := prompt.NormalizeDifficulty(in.Difficulty)
	var b strings.Builder
	b.WriteString(prompt.StyleGuard(in.Theme, d))
	b.WriteString("Create a maze title for preschoolers.\n")
	fmt.Fprintf(&b, "Theme: %s\nPage: %d\n\n", in.Theme, in.PageNumber)
	b.WriteString("Return ONLY valid JSON:\n")
	fmt.Fprintf(&b, "{\n  \"title\": \"Fun Maze\",\n  \"instruction\": \"Help find the way!\",\n  \"difficulty\": %q,\n  \"theme\": %q\n}", d, in.Theme)
	return contract.Request{Text: b.String()}, nil
}

func (*Strategy) ExtractSelection(map[string]any) (string, bool) { return "", false }
