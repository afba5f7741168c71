package limiter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"pagegen/pkg/contract"
)

// 总量上限优先于类型上限。
func TestTotalCheckedBeforeCategory(t *testing.T) {
	l := New(2, Caps{"coloring": 5})
	for i := 0; i < 2; i++ {
		ok, _ := l.ShouldProcess(contract.Coloring)
		require.True(t, ok)
		l.MarkProcessed(contract.Coloring)
	}
	ok, reason := l.ShouldProcess(contract.Coloring)
	require.False(t, ok)
	require.Equal(t, "Total limit 2 reached", reason)
	ok, reason = l.ShouldProcess(contract.Maze)
	require.False(t, ok)
	require.Equal(t, "Total limit 2 reached", reason)
}

// max_total=2, coloring=1, 三个 coloring 请求：通过、类型拒绝、再类型拒绝前先看总量。
func TestThreeColoringRequests(t *testing.T) {
	l := New(2, ParseCaps("coloring=1"))

	ok, _ := l.ShouldProcess(contract.Coloring)
	require.True(t, ok)
	l.MarkProcessed(contract.Coloring)

	ok, reason := l.ShouldProcess(contract.Coloring)
	require.False(t, ok)
	require.Equal(t, "Category limit 1 reached for 'coloring'", reason)

	// 其他类型消耗第二个总量
	ok, _ = l.ShouldProcess(contract.Maze)
	require.True(t, ok)
	l.MarkProcessed(contract.Maze)

	ok, reason = l.ShouldProcess(contract.Coloring)
	require.False(t, ok)
	require.Equal(t, "Total limit 2 reached", reason)
}

func TestCategoryKeyNormalization(t *testing.T) {
	l := New(0, Caps{" Maze ": 1, UnknownBucket: 1})
	ok, _ := l.ShouldProcess(contract.Category("MAZE"))
	require.True(t, ok)
	l.MarkProcessed(contract.Category("  maze"))
	ok, reason := l.ShouldProcess(contract.Maze)
	require.False(t, ok)
	require.Contains(t, reason, "'maze'")

	ok, _ = l.ShouldProcess(contract.Category(""))
	require.True(t, ok)
	l.MarkProcessed(contract.Category("   "))
	ok, _ = l.ShouldProcess(contract.Category(""))
	require.False(t, ok)

	s := l.Summary()
	require.Equal(t, 2, s.Total)
	require.Equal(t, map[string]int{"maze": 1, UnknownBucket: 1}, s.PerCategory)
}

// 上限键与请求类型都经过别名归一。
func TestCategoryAliases(t *testing.T) {
	for _, alias := range []string{"dot-to-dot", "dots", "connect_the_dots", " Connect-The-Dots "} {
		l := New(0, Caps{alias: 1})
		ok, _ := l.ShouldProcess(contract.ConnectDots)
		require.True(t, ok, alias)
		l.MarkProcessed(contract.Category("dots"))
		ok, reason := l.ShouldProcess(contract.ConnectDots)
		require.False(t, ok, alias)
		require.Equal(t, "Category limit 1 reached for 'connect-the-dots'", reason)
	}
}

// 无法识别的类型共用一个桶。
func TestUnrecognizedShareBucket(t *testing.T) {
	require.Equal(t, UnknownBucket, Key("foo"))
	require.Equal(t, UnknownBucket, Key("bar"))
	require.Equal(t, UnknownBucket, Key(""))

	l := New(0, Caps{UnknownBucket: 1})
	l.MarkProcessed(contract.Category("foo"))
	ok, _ := l.ShouldProcess(contract.Category("bar"))
	require.False(t, ok)
	ok, _ = l.ShouldProcess(contract.Maze)
	require.True(t, ok)
	require.Equal(t, map[string]int{UnknownBucket: 1}, l.Summary().PerCategory)
}

func TestUnlimited(t *testing.T) {
	l := New(0, nil)
	for i := 0; i < 100; i++ {
		ok, _ := l.ShouldProcess(contract.Tracing)
		require.True(t, ok)
		l.MarkProcessed(contract.Tracing)
	}
	require.Equal(t, 100, l.Summary().PerCategory["tracing"])
}

func TestResetAndSkips(t *testing.T) {
	l := New(1, nil)
	l.MarkProcessed(contract.Coloring)
	l.TrackSkip(contract.Skip{Sequence: 1, Category: contract.Coloring, Reason: "Total limit 1 reached"})
	s := l.Summary()
	require.Len(t, s.Skips, 1)
	require.Equal(t, 1, s.MaxTotal)

	l.Reset()
	s = l.Summary()
	require.Zero(t, s.Total)
	require.Empty(t, s.PerCategory)
	require.Empty(t, s.Skips)
	ok, _ := l.ShouldProcess(contract.Coloring)
	require.True(t, ok)
}

func TestParseCaps(t *testing.T) {
	cases := []struct {
		in   string
		want Caps
	}{
		{"coloring=2,Maze=1", Caps{"coloring": 2, "maze": 1}},
		{" tracing = 3 , bad, counting=0, x=abc, =4", Caps{"tracing": 3}},
		{`{"Coloring": 2, "maze": "3", "neg": -1, "frac": 1.5}`, Caps{"coloring": 2, "maze": 3}},
		{"{broken", Caps{}},
		{"", Caps{}},
	}
	for _, c := range cases {
		require.Equal(t, c.want, ParseCaps(c.in), "input=%q", c.in)
	}
	require.Equal(t, "coloring=2,maze=1", Caps{"maze": 1, "coloring": 2}.String())
}

func TestCapsUnmarshal(t *testing.T) {
	var v struct {
		A Caps `json:"a" yaml:"a"`
		B Caps `json:"b" yaml:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":{"coloring":2},"b":"maze=1,tracing=4"}`), &v))
	require.Equal(t, Caps{"coloring": 2}, v.A)
	require.Equal(t, Caps{"maze": 1, "tracing": 4}, v.B)

	v.A, v.B = nil, nil
	require.NoError(t, yaml.Unmarshal([]byte("a:\n  Coloring: 3\nb: counting=2\n"), &v))
	require.Equal(t, Caps{"coloring": 3}, v.A)
	require.Equal(t, Caps{"counting": 2}, v.B)
}
