// Package tracing 构建描红练习请求：字母与数字轮换，重复次数随难度变化。
package tracing

import (
	"fmt"
	"strings"
	"unicode"

	"pagegen/internal/prompt"
	"pagegen/pkg/contract"
)

// Options 为可描红字符：A–P 与 0–9。
var Options = []string{
	"A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K", "L", "M", "N", "O", "P",
	"1", "2", "3", "4", "5", "6", "7", "8", "9", "0",
}

type Strategy struct{}

func New() *Strategy { return &Strategy{} }

var _ contract.Strategy = (*Strategy)(nil)

func (*Strategy) Category() contract.Category { return contract.Tracing }

func (*Strategy) Required() []string {
	return []string{"title", "content", "instruction", "repetitions"}
}

// kind 标题用的字符类别。
func kind(s string) string {
	r := []rune(s)
	switch {
	case len(r) == 1 && unicode.IsLetter(r[0]):
		return "Letter"
	case len(r) == 1 && unicode.IsDigit(r[0]):
		return "Number"
	default:
		return "Shape"
	}
}

func (*Strategy) Build(in contract.BuildInput) (contract.Request, error) {
	if in.Choose == nil {
		return contract.Request{}, fmt.Errorf("tracing: nil chooser: %w", contract.ErrInvalidArgument)
	}
	picked, err := in.Choose(Options)
	if err != nil {
		return contract.Request{}, fmt.Errorf("tracing: %w", err)
	}
	reps := prompt.Repetitions(in.Difficulty)
	var b strings.Builder
	b.WriteString(prompt.StyleGuard(in.Theme, in.Difficulty))
	b.WriteString("Create a tracing worksheet for preschoolers.\n")
	fmt.Fprintf(&b, "Theme: %s\nPage: %d\n\n", in.Theme, in.PageNumber)
	fmt.Fprintf(&b, "CRITICAL: You MUST use THIS EXACT character: %q\n", picked)
	fmt.Fprintf(&b, "Available options were: %s\n", prompt.JoinOr(prompt.Unused(Options, in.History, 15), "none"))
	fmt.Fprintf(&b, "Already used (DO NOT REPEAT): %s\n\n", prompt.JoinOr(in.History, "none"))
	b.WriteString("Return ONLY valid JSON:\n")
	fmt.Fprintf(&b, "{\n  \"title\": \"Trace the %s %s\",\n  \"content\": %q,\n  \"instruction\": \"Trace over the dotted lines\",\n  \"repetitions\": %d,\n  \"theme\": %q\n}",
		kind(picked), picked, picked, reps, in.Theme)
	return contract.Request{Text: b.String(), Label: picked}, nil
}

func (*Strategy) ExtractSelection(parsed map[string]any) (string, bool) {
	v, ok := prompt.StringField(parsed, "content")
	if !ok {
		return "", false
	}
	return strings.ToUpper(v), true
}
