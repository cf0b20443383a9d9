package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexName(t *testing.T) {
	assert.Equal(t, "courses-example-org-c1", IndexName("courses.example.org", "c1"))
	assert.Equal(t, "localhost-8080-x", IndexName("localhost:8080", "x"))
	assert.Equal(t, "my-host-abc", IndexName("My.Host", "abc"))
}

func newTestClient(srvURL string) *Client {
	return NewClient(srvURL, "search-key", "2024-07-01", EmbeddingConfig{
		ResourceURI: "https://example.openai.azure.com",
		Deployment:  "text-embedding-ada-002",
		Model:       "text-embedding-ada-002",
		APIKey:      "emb-key",
	})
}

func TestIndexExists(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "search-key", r.Header.Get("api-key"))
		assert.Equal(t, "2024-07-01", r.URL.Query().Get("api-version"))
		w.WriteHeader(status)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	ok, err := c.IndexExists(context.Background(), "idx")
	require.NoError(t, err)
	assert.True(t, ok)

	status = http.StatusNotFound
	ok, err = c.IndexExists(context.Background(), "idx")
	require.NoError(t, err)
	assert.False(t, ok)

	status = http.StatusForbidden
	_, err = c.IndexExists(context.Background(), "idx")
	assert.Error(t, err)
}

func TestCreateIndexSchema(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/indexes", r.URL.Path)
		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(raw, &body))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	require.NoError(t, c.CreateIndex(context.Background(), "courses-example-org-c1"))

	assert.Equal(t, "courses-example-org-c1", body["name"])

	fields := body["fields"].([]any)
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.(map[string]any)["name"].(string))
	}
	assert.ElementsMatch(t, []string{"chunk_id", "parent_id", "chunk", "title", "url", "text_vector"}, names)

	vs := body["vectorSearch"].(map[string]any)
	algo := vs["algorithms"].([]any)[0].(map[string]any)
	assert.Equal(t, "hnsw", algo["kind"])
	params := algo["hnswParameters"].(map[string]any)
	assert.Equal(t, float64(4), params["m"])
	assert.Equal(t, "cosine", params["metric"])
	assert.Equal(t, float64(400), params["efConstruction"])
	assert.Equal(t, float64(500), params["efSearch"])

	profile := vs["profiles"].([]any)[0].(map[string]any)
	assert.Equal(t, "courses-example-org-c1-azureOpenAi-text-profile", profile["name"])
	vectorizer := vs["vectorizers"].([]any)[0].(map[string]any)
	assert.Equal(t, "courses-example-org-c1-azureOpenAi-text-vectorizer", vectorizer["name"])

	sem := body["semantic"].(map[string]any)
	semCfg := sem["configurations"].([]any)[0].(map[string]any)
	assert.Equal(t, "courses-example-org-c1-semantic-configuration", semCfg["name"])
}

func TestUploadDocuments(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/indexes/idx/docs/index", r.URL.Path)
		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(raw, &body))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	docs := []Document{{
		ChunkID:    "p1-0",
		ParentID:   "p1",
		Chunk:      "hello",
		Title:      "Page one",
		URL:        "/course/page-1",
		TextVector: make([]float32, 4),
	}}
	require.NoError(t, c.UploadDocuments(context.Background(), "idx", docs))

	value := body["value"].([]any)
	require.Len(t, value, 1)
	first := value[0].(map[string]any)
	assert.Equal(t, "upload", first["@search.action"])
	assert.Equal(t, "p1-0", first["chunk_id"])
}

func TestUploadDocumentsEmptyBatchIsNoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for empty batch")
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	require.NoError(t, c.UploadDocuments(context.Background(), "idx", nil))
}
