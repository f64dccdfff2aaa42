// Package ckan provides a client for the catalog's Action API.
// This package centralizes the HTTP mechanics used by the scan, import and
// export commands.
package ckan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// searchRows caps how many datasets a single search returns.
const searchRows = 100

// ErrNotFound marks an empty result: the dataset does not exist. It is not a
// transport failure and callers fall through to the next lookup strategy.
var ErrNotFound = errors.New("ckan: not found")

// Error represents a transport-level failure talking to the catalog.
type Error struct {
	Op      string
	URL     string
	Status  int
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ckan %s %s: %s: %v", e.Op, e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("ckan %s %s: %s", e.Op, e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsNotFound reports whether err marks a missing dataset rather than a
// transport failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Options configures the client.
type Options struct {
	APIKey  string
	Timeout time.Duration
}

// Client talks to a single catalog instance.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New validates the base URL and builds a client. A scheme-less URL gets
// "http://" prepended, matching how operators usually configure local
// instances.
func New(baseURL string, opts *Options) (*Client, error) {
	if opts == nil {
		opts = &Options{}
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}

	if baseURL != "" && !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid catalog URL %q", baseURL)
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  opts.APIKey,
		http:    &http.Client{Timeout: opts.Timeout},
	}, nil
}

// envelope is the standard Action API response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
}

func (c *Client) do(ctx context.Context, method, action string, params url.Values, body any) (json.RawMessage, error) {
	endpoint := c.baseURL + "/api/3/action/" + action
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, &Error{Op: action, URL: endpoint, Message: "encoding request body", Cause: err}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, &Error{Op: action, URL: endpoint, Message: "building request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Op: action, URL: endpoint, Message: "request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Op: action, URL: endpoint, Message: "reading response", Cause: err}
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", action, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, &Error{Op: action, URL: endpoint, Status: resp.StatusCode, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &Error{Op: action, URL: endpoint, Message: "decoding response", Cause: err}
	}
	if !env.Success {
		return nil, &Error{Op: action, URL: endpoint, Message: fmt.Sprintf("API error: %s", string(env.Error))}
	}
	return env.Result, nil
}

// GetDataset fetches a dataset by its exact identifier (package_show).
// Returns ErrNotFound when no dataset has that identifier.
func (c *Client) GetDataset(ctx context.Context, id string) (*Dataset, error) {
	params := url.Values{"id": {id}}
	result, err := c.do(ctx, http.MethodGet, "package_show", params, nil)
	if err != nil {
		return nil, err
	}
	var ds Dataset
	if err := json.Unmarshal(result, &ds); err != nil {
		return nil, &Error{Op: "package_show", Message: "decoding dataset", Cause: err}
	}
	return &ds, nil
}

// GetDatasetRaw fetches a dataset as an untyped map, preserving every field
// the catalog returns. Used for merge-updates where unknown schema fields
// must survive the round trip.
func (c *Client) GetDatasetRaw(ctx context.Context, id string) (map[string]any, error) {
	params := url.Values{"id": {id}}
	result, err := c.do(ctx, http.MethodGet, "package_show", params, nil)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, &Error{Op: "package_show", Message: "decoding dataset", Cause: err}
	}
	return raw, nil
}

// SearchDatasets runs a full-text query (package_search). An empty result set
// is not an error.
func (c *Client) SearchDatasets(ctx context.Context, query string) ([]Dataset, error) {
	params := url.Values{
		"q":    {query},
		"rows": {fmt.Sprint(searchRows)},
	}
	result, err := c.do(ctx, http.MethodGet, "package_search", params, nil)
	if err != nil {
		return nil, err
	}
	var sr SearchResult
	if err := json.Unmarshal(result, &sr); err != nil {
		return nil, &Error{Op: "package_search", Message: "decoding search result", Cause: err}
	}
	return sr.Results, nil
}

// ListDatasets returns the names of all datasets (package_list).
func (c *Client) ListDatasets(ctx context.Context) ([]string, error) {
	result, err := c.do(ctx, http.MethodGet, "package_list", nil, nil)
	if err != nil {
		return nil, err
	}
	var names []string
	if err := json.Unmarshal(result, &names); err != nil {
		return nil, &Error{Op: "package_list", Message: "decoding name list", Cause: err}
	}
	return names, nil
}

// CreateDataset creates a dataset from an import package (package_create).
func (c *Client) CreateDataset(ctx context.Context, pkg map[string]any) error {
	_, err := c.do(ctx, http.MethodPost, "package_create", nil, pkg)
	return err
}

// UpdateDataset overwrites an existing dataset (package_update).
func (c *Client) UpdateDataset(ctx context.Context, pkg map[string]any) error {
	_, err := c.do(ctx, http.MethodPost, "package_update", nil, pkg)
	return err
}

// DeleteDataset removes a dataset (package_delete).
func (c *Client) DeleteDataset(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodPost, "package_delete", nil, map[string]any{"id": id})
	return err
}

// Ping checks that the catalog answers (status_show).
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "status_show", nil, nil)
	return err
}
