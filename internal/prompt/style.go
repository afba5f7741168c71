package prompt

import (
	"fmt"
	"strings"
)

// 难度等级。
const (
	Easy   = "easy"
	Medium = "medium"
	Hard   = "hard"

	DefaultTheme = "animals"
)

// 主题友好重映射（子串匹配，按顺序取第一个命中）。
var themeFallbacks = []struct{ match, theme string }{
	{"forest friends", "forest-friends"},
	{"forest", "forest-friends"},
	{"woods", "forest-friends"},
	{"under the sea", "under-the-sea"},
	{"ocean", "under-the-sea"},
	{"sea", "under-the-sea"},
	{"farm", "farm-day"},
	{"space", "space-explorer"},
	{"galaxy", "space-explorer"},
}

// 品牌/版权主题一律替换为默认主题。
var blockedThemes = []string{"peppa", "paw patrol", "paw-patrol", "disney", "marvel", "pokemon", "barbie"}

// SanitizeTheme 归一化主题：小写去空白、友好重映射、屏蔽品牌主题；空值回落 animals。
func SanitizeTheme(theme string) string {
	t := strings.ToLower(strings.TrimSpace(theme))
	for _, f := range themeFallbacks {
		if strings.Contains(t, f.match) {
			t = f.theme
			break
		}
	}
	for _, b := range blockedThemes {
		if strings.Contains(t, b) {
			return DefaultTheme
		}
	}
	if t == "" {
		return DefaultTheme
	}
	return t
}

// NormalizeDifficulty 返回 easy|medium|hard，未知值回落 easy。
func NormalizeDifficulty(d string) string {
	switch v := strings.ToLower(strings.TrimSpace(d)); v {
	case Easy, Medium, Hard:
		return v
	default:
		return Easy
	}
}

// Repetitions 描红重复次数。
func Repetitions(difficulty string) int {
	switch NormalizeDifficulty(difficulty) {
	case Medium:
		return 12
	case Hard:
		return 16
	default:
		return 8
	}
}

// StyleGuard 所有请求共享的风格约束前缀。
func StyleGuard(theme, difficulty string) string {
	var b strings.Builder
	b.WriteString("\nGLOBAL STYLE REQUIREMENTS:\n")
	b.WriteString("- Target age: 2-3 years old\n")
	b.WriteString("- Illustration style: thick black outlines, simple cute shapes, no shading\n")
	b.WriteString("- Lots of white space; minimal clutter\n")
	b.WriteString("- Friendly 1-sentence instructions\n")
	fmt.Fprintf(&b, "- Difficulty: %s\n", NormalizeDifficulty(difficulty))
	b.WriteString("- No copyrighted characters or brands\n")
	fmt.Fprintf(&b, "- Keep the theme consistent across pages: '%s'\n", theme)
	return b.String()
}

// Unused 返回未出现在 used 中的候选（保持候选顺序），最多 limit 个；limit<=0 表示不截断。
func Unused(candidates, used []string, limit int) []string {
	seen := make(map[string]struct{}, len(used))
	for _, u := range used {
		seen[u] = struct{}{}
	}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := seen[c]; ok {
			continue
		}
		out = append(out, c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// JoinOr 以逗号连接；空时返回 fallback。
func JoinOr(items []string, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	return strings.Join(items, ", ")
}
