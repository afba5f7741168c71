package prompt

import (
	"strings"
	"testing"
)

func TestSanitizeTheme(t *testing.T) {
	cases := map[string]string{
		"":                "animals",
		"   ":             "animals",
		"Forest":          "forest-friends",
		"deep woods":      "forest-friends",
		"OCEAN":           "under-the-sea",
		"Under The Sea":   "under-the-sea",
		"farm animals":    "farm-day",
		"Galaxy":          "space-explorer",
		"peppa pig":       "animals",
		"Paw Patrol":      "animals",
		"Disney Princess": "animals",
		"shapes":          "shapes",
		"  Dinosaurs ":    "dinosaurs",
		"space-explorer":  "space-explorer",
		"forest-friends":  "forest-friends",
	}
	for in, want := range cases {
		if got := SanitizeTheme(in); got != want {
			t.Fatalf("SanitizeTheme(%q) = %q 预期 %q", in, got, want)
		}
	}
}

func TestDifficulty(t *testing.T) {
	if NormalizeDifficulty(" HARD ") != Hard || NormalizeDifficulty("extreme") != Easy || NormalizeDifficulty("") != Easy {
		t.Fatalf("难度归一化错误")
	}
	if Repetitions("easy") != 8 || Repetitions("medium") != 12 || Repetitions("hard") != 16 || Repetitions("?") != 8 {
		t.Fatalf("重复次数错误")
	}
}

func TestStyleGuard(t *testing.T) {
	g := StyleGuard("farm-day", "Medium")
	for _, want := range []string{"2-3 years", "thick black outlines", "Difficulty: medium", "No copyrighted", "'farm-day'"} {
		if !strings.Contains(g, want) {
			t.Fatalf("风格约束缺少 %q:\n%s", want, g)
		}
	}
}

func TestUnusedAndJoin(t *testing.T) {
	got := Unused([]string{"a", "b", "c", "d"}, []string{"b"}, 2)
	if strings.Join(got, ",") != "a,c" {
		t.Fatalf("Unused 结果错误: %v", got)
	}
	if JoinOr(nil, "none") != "none" || JoinOr([]string{"x", "y"}, "none") != "x, y" {
		t.Fatalf("JoinOr 错误")
	}
}

func TestFields(t *testing.T) {
	m := map[string]any{"s": " fox ", "n": float64(7), "f": 1.5, "b": true, "nil": nil, "arr": []any{1}}
	if v, ok := StringField(m, "s"); !ok || v != "fox" {
		t.Fatalf("字符串字段错误: %q", v)
	}
	if v, ok := StringField(m, "n"); !ok || v != "7" {
		t.Fatalf("整数字段错误: %q", v)
	}
	if v, _ := StringField(m, "f"); v != "1.5" {
		t.Fatalf("小数字段错误: %q", v)
	}
	for _, k := range []string{"nil", "arr", "missing"} {
		if _, ok := StringField(m, k); ok {
			t.Fatalf("%s 不应可读", k)
		}
	}
	if !HasFields(m, []string{"s", "n"}) || HasFields(m, []string{"s", "nil"}) {
		t.Fatalf("HasFields 错误")
	}
	if Title("pine tree") != "Pine Tree" || Title("hay-bale") != "Hay-Bale" {
		t.Fatalf("Title 错误: %s", Title("pine tree"))
	}
}
