package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"pagegen/pkg/contract"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	raw := json.RawMessage(fmt.Sprintf(`{"base_url":%q,"api_key":"k"}`, srv.URL))
	c, err := New(raw)
	require.NoError(t, err)
	return c.(*Client)
}

func TestGenerateSuccess(t *testing.T) {
	var got request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		require.Equal(t, "k", r.Header.Get("x-api-key"))
		require.Equal(t, apiVersion, r.Header.Get("anthropic-version"))
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		_, _ = io.WriteString(w, `{"content":[{"type":"text","text":"{\"title\":"},{"type":"text","text":"\"x\"}"}]}`)
	})
	out, err := c.Generate(context.Background(), "hello", 0)
	require.NoError(t, err)
	require.Equal(t, `{"title":"x"}`, out)
	require.Equal(t, DefaultModel, got.Model)
	require.Equal(t, DefaultMaxTokens, got.MaxTokens)
	require.Equal(t, "hello", got.Messages[0].Content)

	_, err = c.Generate(context.Background(), "hello", 100)
	require.NoError(t, err)
	require.Equal(t, 100, got.MaxTokens)
}

func TestGenerateStatusClassification(t *testing.T) {
	cases := map[int]error{
		http.StatusUnauthorized:        contract.ErrFatal,
		http.StatusBadRequest:          contract.ErrFatal,
		http.StatusTooManyRequests:     contract.ErrTransient,
		http.StatusInternalServerError: contract.ErrTransient,
		529:                            contract.ErrTransient,
	}
	for code, want := range cases {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", code)
		})
		_, err := c.Generate(context.Background(), "x", 10)
		require.ErrorIs(t, err, want, "status %d", code)
		var ue contract.UpstreamError
		require.True(t, errors.As(err, &ue))
		require.Equal(t, code, ue.UpstreamStatus())
	}
}

func TestGenerateEmptyContentIsTransient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"content":[]}`)
	})
	_, err := c.Generate(context.Background(), "x", 10)
	require.ErrorIs(t, err, contract.ErrTransient)
}

func TestTransportErrorIsTransient(t *testing.T) {
	c := &Client{url: "http://example.invalid", do: func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection reset")
	}}
	_, err := c.Generate(context.Background(), "x", 1)
	require.ErrorIs(t, err, contract.ErrTransient)
}

func TestNewMissingKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := New(nil)
	require.ErrorIs(t, err, contract.ErrConfiguration)
	t.Setenv("ANTHROPIC_API_KEY", "env-key")
	c, err := New(nil)
	require.NoError(t, err)
	require.Equal(t, "env-key", c.(*Client).apiKey)
}
