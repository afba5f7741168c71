package gemini

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
	c, err := New(json.RawMessage(fmt.Sprintf(`{"base_url":%q,"api_key":"k"}`, srv.URL)))
	require.NoError(t, err)
	return c
}

func TestGenerateSuccess(t *testing.T) {
	var path string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"title\":\"ok\"}"}]},"finishReason":"STOP"}]}`)
	})
	out, err := c.Generate(context.Background(), "draw", 128)
	require.NoError(t, err)
	require.Equal(t, `{"title":"ok"}`, out)
	require.Contains(t, path, "gemini-2.5-flash:generateContent")
}

func TestGenerateUnauthorizedIsFatal(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"code":401,"message":"bad key","status":"UNAUTHENTICATED"}}`)
	})
	_, err := c.Generate(context.Background(), "draw", 0)
	require.ErrorIs(t, err, contract.ErrFatal)
}

func TestNewMissingKey(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	_, err := New(nil)
	require.ErrorIs(t, err, contract.ErrConfiguration)
}
