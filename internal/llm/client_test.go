package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStreamSuccess(t *testing.T) {
	var gotReq ChatRequest
	var gotKey, gotVersion, gotContentType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("api-key")
		gotContentType = r.Header.Get("Content-Type")
		gotVersion = r.URL.Query().Get("api-version")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_, _ = w.Write([]byte("data: {\"choices\":[]}\n\ndata: [DONE]\n\n"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret-key", "2024-02-01")
	body, err := c.OpenStream(context.Background(), &ChatRequest{
		Messages: []ChatMessage{{Role: RoleUser, Content: "hi"}},
		Stream:   true,
	})
	require.NoError(t, err)
	defer body.Close()

	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "[DONE]")

	assert.Equal(t, "secret-key", gotKey)
	assert.Equal(t, "2024-02-01", gotVersion)
	assert.Equal(t, "application/json", gotContentType)
	assert.True(t, gotReq.Stream)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, RoleUser, gotReq.Messages[0].Role)
}

func TestOpenStreamNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("rate limited"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", "2024-02-01")
	body, err := c.OpenStream(context.Background(), &ChatRequest{Stream: true})
	require.Error(t, err)
	assert.Nil(t, body)

	var ue *UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, http.StatusTooManyRequests, ue.Status)
	assert.Equal(t, "rate limited", ue.Body)
}

func TestDataSourcesOmittedWhenEmpty(t *testing.T) {
	b, err := json.Marshal(&ChatRequest{Stream: true})
	require.NoError(t, err)
	assert.NotContains(t, string(b), "data_sources")
	assert.Contains(t, string(b), "\"stop\":null")
}
