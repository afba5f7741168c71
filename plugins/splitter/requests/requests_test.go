package requests

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"pagegen/pkg/contract"
)

func split(t *testing.T, s *Splitter, src, body string) []contract.PageRequest {
	t.Helper()
	out, err := s.Split(context.Background(), contract.SourceID(src), strings.NewReader(body))
	require.NoError(t, err)
	return out
}

func TestSplitFormats(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)
	want := []contract.PageRequest{
		{Sequence: 0, Category: contract.Coloring, Theme: "animals", PageNumber: 1},
		{Sequence: 1, Category: contract.Maze, Theme: "space", PageNumber: 2},
	}
	cases := map[string]struct{ src, body string }{
		"array":   {"a.json", `[{"type":"coloring","theme":"animals","pageNumber":1},{"category":"maze","theme":"space","page_number":2}]`},
		"pages":   {"stdin", `{"pages":[{"type":"coloring","theme":"animals","pageNumber":1},{"type":"Maze","theme":"space","pageNumber":"2"}]}`},
		"jsonl":   {"a.jsonl", "{\"type\":\"coloring\",\"theme\":\"animals\",\"pageNumber\":1}\n\n{\"type\":\"maze\",\"theme\":\"space\",\"pageNumber\":2}\n"},
		"sniffed": {"stdin", "{\"type\":\"coloring\",\"theme\":\"animals\",\"pageNumber\":1}\n{\"type\":\"maze\",\"theme\":\"space\",\"pageNumber\":2}"},
		"yaml":    {"book.yaml", "pages:\n  - type: coloring\n    theme: animals\n    pageNumber: 1\n  - category: maze\n    theme: space\n    page_number: 2\n"},
		"yaml-ls": {"stdin", "- type: coloring\n  theme: animals\n  pageNumber: 1\n- type: maze\n  theme: space\n  pageNumber: 2\n"},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, want, split(t, s, c.src, c.body))
		})
	}
}

func TestSplitSingleObjectAndAliases(t *testing.T) {
	s, _ := New(&Options{DefaultTheme: "shapes"})
	out := split(t, s, "one.json", `{"type":"dot-to-dot","pageNumber":7}`)
	require.Len(t, out, 1)
	require.Equal(t, contract.ConnectDots, out[0].Category)
	require.Equal(t, "shapes", out[0].Theme)
	require.Equal(t, 7, out[0].PageNumber)
}

func TestSplitKeepsUnknownCategory(t *testing.T) {
	s, _ := New(nil)
	out := split(t, s, "x.json", `[{"type":" Puzzle ","pageNumber":3},{"theme":"animals"}]`)
	require.Equal(t, contract.Category("puzzle"), out[0].Category)
	require.Equal(t, contract.Category(""), out[1].Category)
	require.Equal(t, 0, out[1].PageNumber)
}

func TestSplitEmpty(t *testing.T) {
	s, _ := New(nil)
	require.Empty(t, split(t, s, "e.json", "  \n"))
	require.Empty(t, split(t, s, "e.json", "[]"))
	require.Empty(t, split(t, s, "e.json", `{"pages":[]}`))
}

func TestSplitErrors(t *testing.T) {
	s, _ := New(nil)
	for name, body := range map[string]string{
		"bad json":     `[{"type":}`,
		"not object":   `[1,2]`,
		"bad page":     `[{"type":"maze","pageNumber":"two"}]`,
		"fraction":     `[{"type":"maze","pageNumber":1.5}]`,
		"pages scalar": `{"pages":3}`,
	} {
		_, err := s.Split(context.Background(), "f.json", strings.NewReader(body))
		require.ErrorIs(t, err, contract.ErrValidation, name)
	}
	_, err := New(&Options{Format: "xml"})
	require.ErrorIs(t, err, contract.ErrConfiguration)
}

func TestSplitForcedFormat(t *testing.T) {
	s, _ := New(&Options{Format: "yml"})
	out := split(t, s, "pages.txt", "- type: tracing\n  pageNumber: 4\n")
	require.Equal(t, contract.Tracing, out[0].Category)
	require.Equal(t, 4, out[0].PageNumber)
}
