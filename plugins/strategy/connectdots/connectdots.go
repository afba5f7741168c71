// Package connectdots 构建连点成画页请求，追踪 shape 字段。
package connectdots

import (
	"fmt"
	"strings"

	"pagegen/internal/prompt"
	"pagegen/pkg/contract"
)

// Dots 每页点数。
const Dots = 12

var Shapes = []string{"star", "circle", "heart", "square", "triangle", "diamond", "house", "tree", "flower", "butterfly", "fish", "apple"}

type Strategy struct{}

func New() *Strategy { return &Strategy{} }

var _ contract.Strategy = (*Strategy)(nil)

func (*Strategy) Category() contract.Category { return contract.ConnectDots }

func (*Strategy) Required() []string { return []string{"title", "instruction", "dots", "shape"} }

func (*Strategy) Build(in contract.BuildInput) (contract.Request, error) {
	if in.Choose == nil {
		return contract.Request{}, fmt.Errorf("connect-the-dots: nil chooser: %w", contract.ErrInvalidArgument)
	}
	picked, err := in.Choose(Shapes)
	if err != nil {
		return contract.Request{}, fmt.Errorf("connect-the-dots: %w", err)
	}
	var b strings.Builder
	b.WriteString(prompt.StyleGuard(in.Theme, in.Difficulty))
	b.WriteString("Create a dot-to-dot exercise.\n")
	fmt.Fprintf(&b, "Theme: %s\nPage: %d\n\n", in.Theme, in.PageNumber)
	fmt.Fprintf(&b, "CRITICAL: You MUST use THIS EXACT shape: %q\n", picked)
	fmt.Fprintf(&b, "Available shapes were: %s\n", prompt.JoinOr(prompt.Unused(Shapes, in.History, 0), "none"))
	fmt.Fprintf(&b, "Already used: %s\n\n", prompt.JoinOr(in.History, "none"))
	b.WriteString("Return ONLY valid JSON:\n")
	fmt.Fprintf(&b, "{\n  \"title\": \"Connect the Dots\",\n  \"instruction\": \"Connect 1 to %d to reveal a %s\",\n  \"dots\": %d,\n  \"shape\": %q,\n  \"theme\": %q\n}",
		Dots, picked, Dots, picked, in.Theme)
	return contract.Request{Text: b.String(), Label: picked}, nil
}

func (*Strategy) ExtractSelection(parsed map[string]any) (string, bool) {
	v, ok := prompt.StringField(parsed, "shape")
	if !ok {
		return "", false
	}
	return strings.ToLower(v), true
}
