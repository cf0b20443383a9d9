package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// UpstreamError carries the status and body of a non-2xx upstream response.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream: status %d: %s", e.Status, e.Body)
}

// Client opens streaming chat completions against an Azure-OpenAI-style
// endpoint. It does no SSE framing; callers read the raw body.
type Client struct {
	Endpoint   string // full chat-completions URL, without query string
	APIKey     string
	APIVersion string
	HTTPClient *http.Client
}

func NewClient(endpoint, apiKey, apiVersion string) *Client {
	return &Client{
		Endpoint:   endpoint,
		APIKey:     apiKey,
		APIVersion: apiVersion,
		// No global timeout; streams run until the request context ends.
		HTTPClient: &http.Client{},
	}
}

// OpenStream POSTs the chat request and returns the response body as an
// incremental byte stream. A non-2xx status drains the body and fails with
// *UpstreamError. The caller owns closing the returned stream; cancelling
// ctx aborts in-flight reads.
func (c *Client) OpenStream(ctx context.Context, req *ChatRequest) (io.ReadCloser, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s?api-version=%s", strings.TrimRight(c.Endpoint, "/"), url.QueryEscape(c.APIVersion))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("api-key", c.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
		_ = resp.Body.Close()
		return nil, &UpstreamError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	return resp.Body, nil
}
