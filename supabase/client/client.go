// Package client provides a Supabase REST API client covering PostgREST
// queries, GoTrue auth, object storage and realtime subscriptions.
package client

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

// Client is a Supabase REST API client. The zero value is not usable;
// construct with New.
type Client struct {
	baseURL    string
	apiKey     string
	userToken  string
	httpClient *http.Client
	retry      RetryConfig
}

// Config holds client configuration.
type Config struct {
	// URL is the project base URL, e.g. https://xyz.supabase.co.
	URL string
	// APIKey is the anon or service-role key.
	APIKey string
	// HTTPClient overrides the default client. Optional.
	HTTPClient *http.Client
	// Retry controls backoff for retryable status codes. Optional.
	Retry *RetryConfig
}

// New creates a new Supabase client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("APIKey is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	retry := DefaultRetryConfig()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		retry:      retry,
	}, nil
}

// WithToken returns a shallow copy of the client that authorizes requests
// with the given user access token instead of the API key, so row-level
// security applies to the calling user.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.userToken = token
	return &clone
}

// From starts a query builder for a table.
func (c *Client) From(table string) *QueryBuilder {
	return &QueryBuilder{client: c, table: table}
}

// QueryBuilder builds PostgREST queries.
type QueryBuilder struct {
	client  *Client
	table   string
	columns string
	filters url.Values
	orders  []string
	limit   int
	offset  int
	single  bool
}

// Select specifies columns to select.
func (q *QueryBuilder) Select(columns string) *QueryBuilder {
	q.columns = columns
	return q
}

func (q *QueryBuilder) filter(column, op string, value any) *QueryBuilder {
	if q.filters == nil {
		q.filters = url.Values{}
	}
	q.filters.Add(column, fmt.Sprintf("%s.%v", op, value))
	return q
}

// Eq adds an equality filter.
func (q *QueryBuilder) Eq(column string, value any) *QueryBuilder {
	return q.filter(column, "eq", value)
}

// Gte adds a greater-than-or-equal filter.
func (q *QueryBuilder) Gte(column string, value any) *QueryBuilder {
	return q.filter(column, "gte", value)
}

// Lt adds a less-than filter.
func (q *QueryBuilder) Lt(column string, value any) *QueryBuilder {
	return q.filter(column, "lt", value)
}

// Is adds an IS filter (for null, true, false).
func (q *QueryBuilder) Is(column string, value any) *QueryBuilder {
	return q.filter(column, "is", value)
}

// ILike adds a case-insensitive LIKE filter.
func (q *QueryBuilder) ILike(column, pattern string) *QueryBuilder {
	return q.filter(column, "ilike", pattern)
}

// Order adds an ORDER BY clause.
func (q *QueryBuilder) Order(column string, ascending bool) *QueryBuilder {
	dir := "asc"
	if !ascending {
		dir = "desc"
	}
	q.orders = append(q.orders, column+"."+dir)
	return q
}

// Limit sets the LIMIT.
func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.limit = n
	return q
}

// Single expects exactly one row and decodes into a struct rather than a
// slice.
func (q *QueryBuilder) Single() *QueryBuilder {
	q.single = true
	return q
}

func (q *QueryBuilder) queryString() string {
	params := url.Values{}
	if q.columns != "" {
		params.Set("select", q.columns)
	}
	for column, values := range q.filters {
		for _, v := range values {
			params.Add(column, v)
		}
	}
	if len(q.orders) > 0 {
		params.Set("order", strings.Join(q.orders, ","))
	}
	if q.limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", q.limit))
	}
	if q.offset > 0 {
		params.Set("offset", fmt.Sprintf("%d", q.offset))
	}
	return params.Encode()
}

// Get executes a SELECT and decodes the response into dest.
func (q *QueryBuilder) Get(ctx context.Context, dest any) error {
	headers := http.Header{}
	if q.single {
		headers.Set("Accept", "application/vnd.pgrst.object+json")
	}
	body, err := q.client.rest(ctx, http.MethodGet, q.table, q.queryString(), nil, headers)
	if err != nil {
		return err
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode %s response: %w", q.table, err)
	}
	return nil
}

// Insert executes an INSERT and decodes the returned representation into
// dest when dest is non-nil.
func (q *QueryBuilder) Insert(ctx context.Context, row, dest any) error {
	headers := http.Header{}
	headers.Set("Prefer", "return=representation")
	if q.single || dest != nil {
		headers.Set("Accept", "application/vnd.pgrst.object+json")
	}
	body, err := q.client.rest(ctx, http.MethodPost, q.table, q.queryString(), row, headers)
	if err != nil {
		return err
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode %s insert response: %w", q.table, err)
	}
	return nil
}

// Update executes a filtered PATCH and decodes the updated rows into dest
// when dest is non-nil. ErrNoRows is returned when the filters matched
// nothing, which is how conditional updates report a lost race.
func (q *QueryBuilder) Update(ctx context.Context, patch, dest any) error {
	headers := http.Header{}
	headers.Set("Prefer", "return=representation")
	if q.single || dest != nil {
		headers.Set("Accept", "application/vnd.pgrst.object+json")
	}
	body, err := q.client.rest(ctx, http.MethodPatch, q.table, q.queryString(), patch, headers)
	if err != nil {
		return err
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode %s update response: %w", q.table, err)
	}
	return nil
}

// Delete executes a filtered DELETE. It returns the number of rows removed.
func (q *QueryBuilder) Delete(ctx context.Context) (int, error) {
	headers := http.Header{}
	headers.Set("Prefer", "return=representation")
	body, err := q.client.rest(ctx, http.MethodDelete, q.table, q.queryString(), nil, headers)
	if err != nil {
		return 0, err
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return 0, nil
	}
	return len(rows), nil
}

// RPC calls a stored procedure and decodes its result into dest when
// dest is non-nil.
func (c *Client) RPC(ctx context.Context, fn string, params, dest any) error {
	body, err := c.rest(ctx, http.MethodPost, "rpc/"+fn, "", params, nil)
	if err != nil {
		return err
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode rpc %s response: %w", fn, err)
	}
	return nil
}

const (
	maxResponseBytes  = 8 << 20
	maxErrorBodyBytes = 32 << 10
)

// rest performs one PostgREST request with retry on retryable status codes.
func (c *Client) rest(ctx context.Context, method, path, query string, body any, headers http.Header) ([]byte, error) {
	reqURL := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, path)
	if query != "" {
		reqURL += "?" + query
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retry.Backoff(attempt)):
			}
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		c.setHeaders(req)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for key, values := range headers {
			for _, v := range values {
				req.Header.Set(key, v)
			}
		}

		respBody, err := c.do(req)
		if err == nil {
			return respBody, nil
		}
		lastErr = err
		if !c.retry.RetryableError(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.apiKey)
	token := c.apiKey
	if c.userToken != "" {
		token = c.userToken
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, parseAPIError(resp.StatusCode, body)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}
