// Package coloring 构建涂色页请求：按主题选取主体，追踪 subject 字段。
package coloring

import (
	"fmt"
	"strings"

	"pagegen/internal/prompt"
	"pagegen/pkg/contract"
)

// themeSubjects 按主题列出可选主体；未知主题使用 animals。
var themeSubjects = map[string][]string{
	"forest-friends": {"fox", "bear", "owl", "rabbit", "hedgehog", "deer", "squirrel", "raccoon", "snail", "mushroom", "acorn", "pine tree"},
	"under-the-sea":  {"fish", "dolphin", "starfish", "shell", "turtle", "seahorse", "crab", "octopus", "bubble", "coral"},
	"farm-day":       {"cow", "chicken", "sheep", "pig", "barn", "tractor", "duck", "horse", "hay bale"},
	"space-explorer": {"rocket", "planet", "star", "moon", "astronaut", "satellite", "comet"},
	"shapes":         {"circle", "square", "triangle", "star", "heart", "diamond", "oval", "rectangle", "hexagon", "pentagon"},
	"animals":        {"cat", "dog", "rabbit", "bird", "fish", "elephant", "giraffe", "lion", "bear", "monkey", "butterfly", "bee", "duck", "frog"},
}

// Subjects 返回主题对应的主体候选（副本）。
func Subjects(theme string) []string {
	s, ok := themeSubjects[theme]
	if !ok {
		s = themeSubjects[prompt.DefaultTheme]
	}
	return append([]string(nil), s...)
}

type Strategy struct{}

func New() *Strategy { return &Strategy{} }

var _ contract.Strategy = (*Strategy)(nil)

func (*Strategy) Category() contract.Category { return contract.Coloring }

func (*Strategy) Required() []string {
	return []string{"title", "instruction", "subject", "description"}
}

func (*Strategy) Build(in contract.BuildInput) (contract.Request, error) {
	if in.Choose == nil {
		return contract.Request{}, fmt.Errorf("coloring: nil chooser: %w", contract.ErrInvalidArgument)
	}
	subjects := Subjects(in.Theme)
	picked, err := in.Choose(subjects)
	if err != nil {
		return contract.Request{}, fmt.Errorf("coloring: %w", err)
	}
	var b strings.Builder
	b.WriteString(prompt.StyleGuard(in.Theme, in.Difficulty))
	b.WriteString("Create specifications for a simple coloring page for a young child.\n")
	fmt.Fprintf(&b, "Theme: %s\nPage Number: %d\n\n", in.Theme, in.PageNumber)
	fmt.Fprintf(&b, "CRITICAL REQUIREMENT: You MUST use THIS EXACT subject: %q\n", picked)
	fmt.Fprintf(&b, "Available options were: %s\n", prompt.JoinOr(prompt.Unused(subjects, in.History, 10), "none"))
	fmt.Fprintf(&b, "Already used (DO NOT REPEAT): %s\n\n", prompt.JoinOr(in.History, "none yet"))
	b.WriteString("Return ONLY valid JSON (no markdown, no code blocks):\n")
	fmt.Fprintf(&b, "{\n  \"title\": \"Color the %s\",\n  \"instruction\": \"Use your crayons to color me in!\",\n  \"subject\": %q,\n  \"description\": \"[2-3 word fun description of the %s]\",\n  \"theme\": %q\n}",
		prompt.Title(picked), picked, picked, in.Theme)
	return contract.Request{Text: b.String(), Label: picked}, nil
}

func (*Strategy) ExtractSelection(parsed map[string]any) (string, bool) {
	v, ok := prompt.StringField(parsed, "subject")
	if !ok {
		return "", false
	}
	return strings.ToLower(v), true
}
