package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"pagegen/pkg/contract"
)

func newTestClient(t *testing.T, h http.HandlerFunc) contract.BackendClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(json.RawMessage(fmt.Sprintf(`{"base_url":%q,"api_key":"k","model":"test-model"}`, srv.URL)))
	require.NoError(t, err)
	return c
}

func TestGenerateSuccess(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"test-model",`+
			`"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"title\":\"ok\"}"}}]}`)
	})
	out, err := c.Generate(context.Background(), "draw a cat", 256)
	require.NoError(t, err)
	require.Equal(t, `{"title":"ok"}`, out)
	require.Equal(t, "test-model", body["model"])
	require.EqualValues(t, 256, body["max_completion_tokens"])
}

func TestGenerateStatusClassification(t *testing.T) {
	cases := map[int]error{
		http.StatusUnauthorized:        contract.ErrFatal,
		http.StatusTooManyRequests:     contract.ErrTransient,
		http.StatusInternalServerError: contract.ErrTransient,
	}
	for code, want := range cases {
		calls := 0
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(code)
			_, _ = io.WriteString(w, `{"error":{"message":"nope","type":"x"}}`)
		})
		_, err := c.Generate(context.Background(), "x", 0)
		require.ErrorIs(t, err, want, "status %d", code)
		require.Equal(t, 1, calls, "SDK 重试应关闭")
	}
}

func TestNewMissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := New(json.RawMessage(`{}`))
	require.ErrorIs(t, err, contract.ErrConfiguration)
}
