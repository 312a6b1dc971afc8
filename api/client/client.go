// Package apiclient calls a running fnindex API server.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/papercomputeco/fnindex/api"
	"github.com/papercomputeco/fnindex/pkg/function"
	"github.com/papercomputeco/fnindex/pkg/registry"
)

const defaultTimeout = 60 * time.Second

// Error is a non-2xx response from the server.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("request failed (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("request failed (HTTP %d, %s): %s", e.Status, e.Code, e.Message)
}

// Client is a thin JSON client for the fnindex HTTP API.
type Client struct {
	target string
	http   *http.Client
}

// New returns a Client for the server at target (e.g. "http://localhost:8081").
func New(target string) (*Client, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid API target URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API target URL %q: scheme and host are required", target)
	}

	return &Client{
		target: target,
		http:   &http.Client{Timeout: defaultTimeout},
	}, nil
}

// SearchParams are the query parameters of GET /v1/search.
type SearchParams struct {
	Query     string
	Limit     int
	Threshold *float64
	Category  string

	// OmitScores sets include_scores=false.
	OmitScores bool
}

// Search ranks registered functions for a query.
func (c *Client) Search(ctx context.Context, p SearchParams) (*api.SearchResponse, error) {
	q := url.Values{}
	q.Set("q", p.Query)
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Threshold != nil {
		q.Set("threshold", strconv.FormatFloat(*p.Threshold, 'f', -1, 64))
	}
	if p.Category != "" {
		q.Set("category", p.Category)
	}
	if p.OmitScores {
		q.Set("include_scores", "false")
	}

	var out api.SearchResponse
	if err := c.do(ctx, http.MethodGet, "/v1/search", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Add registers one function and returns its id.
func (c *Client) Add(ctx context.Context, req function.AddRequest) (string, error) {
	var out api.AddResponse
	if err := c.do(ctx, http.MethodPost, "/v1/functions", nil, req, &out); err != nil {
		return "", err
	}
	return out.FunctionID, nil
}

// BatchAdd registers several functions. Items fail independently.
func (c *Client) BatchAdd(ctx context.Context, reqs []function.AddRequest) (*api.BatchResponse, error) {
	var out api.BatchResponse
	if err := c.do(ctx, http.MethodPost, "/v1/functions/batch", nil, reqs, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats returns registry, vector store and cache statistics.
func (c *Client) Stats(ctx context.Context) (*registry.Stats, error) {
	var out registry.Stats
	if err := c.do(ctx, http.MethodGet, "/v1/stats", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Clear removes every function from the server.
func (c *Client) Clear(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/admin/clear", nil, nil, nil)
}

// Rebuild re-indexes every stored function.
func (c *Client) Rebuild(ctx context.Context) (*api.BatchResponse, error) {
	var out api.BatchResponse
	if err := c.do(ctx, http.MethodPost, "/v1/admin/rebuild", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u, err := url.Parse(c.target)
	if err != nil {
		return fmt.Errorf("invalid API target URL: %w", err)
	}
	u.Path = path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to fnindex API at %s: %w", c.target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{Status: resp.StatusCode, Message: string(data)}
		var er api.ErrorResponse
		if json.Unmarshal(data, &er) == nil && er.Error != "" {
			apiErr.Code = er.Code
			apiErr.Message = er.Error
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
