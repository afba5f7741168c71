// Package counting 构建数数练习请求；标签为 "数量-物品" 组合。
package counting

import (
	"fmt"
	"strconv"
	"strings"

	"pagegen/internal/prompt"
	"pagegen/pkg/contract"
)

var (
	counts = []int{2, 3, 4, 5, 6, 7, 8, 9, 10}
	items  = []string{"circle", "star", "heart", "square", "triangle", "apple", "flower", "car", "ball", "balloon", "butterfly", "fish"}
)

// Combinations 返回全部 "count-item" 组合（数量优先的稳定顺序）。
func Combinations() []string {
	out := make([]string, 0, len(counts)*len(items))
	for _, c := range counts {
		for _, it := range items {
			out = append(out, fmt.Sprintf("%d-%s", c, it))
		}
	}
	return out
}

// Label 由数量与物品组成标签。
func Label(count int, item string) string {
	return fmt.Sprintf("%d-%s", count, strings.ToLower(strings.TrimSpace(item)))
}

type Strategy struct{ all []string }

func New() *Strategy { return &Strategy{all: Combinations()} }

var _ contract.Strategy = (*Strategy)(nil)

func (*Strategy) Category() contract.Category { return contract.Counting }

func (*Strategy) Required() []string { return []string{"title", "count", "item", "instruction"} }

func (s *Strategy) Build(in contract.BuildInput) (contract.Request, error) {
	if in.Choose == nil {
		return contract.Request{}, fmt.Errorf("counting: nil chooser: %w", contract.ErrInvalidArgument)
	}
	picked, err := in.Choose(s.all)
	if err != nil {
		return contract.Request{}, fmt.Errorf("counting: %w", err)
	}
	n, item, ok := strings.Cut(picked, "-")
	if !ok {
		return contract.Request{}, fmt.Errorf("counting: malformed label %q: %w", picked, contract.ErrInvalidArgument)
	}
	remaining := prompt.Unused(s.all, in.History, 0)
	shown := remaining
	more := ""
	if len(shown) > 10 {
		shown, more = shown[:10], "..."
	}
	var b strings.Builder
	b.WriteString(prompt.StyleGuard(in.Theme, in.Difficulty))
	b.WriteString("Create a counting exercise for preschoolers.\n")
	fmt.Fprintf(&b, "Theme: %s\nPage: %d\n\n", in.Theme, in.PageNumber)
	fmt.Fprintf(&b, "CRITICAL: YOU MUST USE EXACTLY: %s %ss\n", n, item)
	fmt.Fprintf(&b, "Available combinations were: %s%s\n", prompt.JoinOr(shown, "none"), more)
	fmt.Fprintf(&b, "Already used: %s\n\n", prompt.JoinOr(in.History, "none"))
	b.WriteString("Return ONLY valid JSON:\n")
	fmt.Fprintf(&b, "{\n  \"title\": \"Count the %ss\",\n  \"count\": %s,\n  \"item\": %q,\n  \"instruction\": \"Count how many you see and write your answer\",\n  \"theme\": %q\n}",
		prompt.Title(item), n, item, in.Theme)
	return contract.Request{Text: b.String(), Label: picked}, nil
}

func (*Strategy) ExtractSelection(parsed map[string]any) (string, bool) {
	c, ok := prompt.StringField(parsed, "count")
	if !ok {
		return "", false
	}
	n, err := strconv.Atoi(c)
	if err != nil {
		return "", false
	}
	item, ok := prompt.StringField(parsed, "item")
	if !ok {
		return "", false
	}
	return Label(n, item), true
}
