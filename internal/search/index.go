package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// EmbeddingConfig identifies the vectorizer deployment baked into each index.
type EmbeddingConfig struct {
	ResourceURI string
	Deployment  string
	Model       string
	APIKey      string
}

type Document struct {
	ChunkID    string    `json:"chunk_id"`
	ParentID   string    `json:"parent_id"`
	Chunk      string    `json:"chunk"`
	Title      string    `json:"title"`
	URL        string    `json:"url"`
	TextVector []float32 `json:"text_vector"`
}

// Client manages course search indexes over the Azure-AI-Search REST API.
// All operations are idempotent and run outside the chat hot path; retries
// belong to the maintenance worker, not here.
type Client struct {
	Endpoint   string
	APIKey     string
	APIVersion string
	Embedding  EmbeddingConfig
	HTTPClient *http.Client
}

func NewClient(endpoint, apiKey, apiVersion string, emb EmbeddingConfig) *Client {
	return &Client{
		Endpoint:   strings.TrimRight(endpoint, "/"),
		APIKey:     apiKey,
		APIVersion: apiVersion,
		Embedding:  emb,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) indexURL(path string) string {
	return fmt.Sprintf("%s%s?api-version=%s", c.Endpoint, path, url.QueryEscape(c.APIVersion))
}

func (c *Client) do(ctx context.Context, method, u string, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("api-key", c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	return c.HTTPClient.Do(req)
}

func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
	return fmt.Errorf("search: %s: status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(body)))
}

// IndexExists reports whether the named index is present. 200 means yes,
// 404 means no, anything else is an error.
func (c *Client) IndexExists(ctx context.Context, name string) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, c.indexURL("/indexes/"+url.PathEscape(name)), nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, statusError("get index", resp)
	}
}

// CreateIndex creates the canonical course index schema under name.
func (c *Client) CreateIndex(ctx context.Context, name string) error {
	def := canonicalDefinition(name, c.Embedding)
	resp, err := c.do(ctx, http.MethodPost, c.indexURL("/indexes"), def)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError("create index", resp)
	}
	return nil
}

// EnsureIndex creates the index if it does not exist yet.
func (c *Client) EnsureIndex(ctx context.Context, name string) error {
	exists, err := c.IndexExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return c.CreateIndex(ctx, name)
}

type uploadEnvelope struct {
	Value []uploadAction `json:"value"`
}

type uploadAction struct {
	Action string `json:"@search.action"`
	Document
}

// UploadDocuments uploads a batch of chunk documents into the named index.
func (c *Client) UploadDocuments(ctx context.Context, name string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	env := uploadEnvelope{Value: make([]uploadAction, 0, len(docs))}
	for _, d := range docs {
		env.Value = append(env.Value, uploadAction{Action: "upload", Document: d})
	}

	u := c.indexURL("/indexes/" + url.PathEscape(name) + "/docs/index")
	resp, err := c.do(ctx, http.MethodPost, u, env)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError("upload documents", resp)
	}
	return nil
}
