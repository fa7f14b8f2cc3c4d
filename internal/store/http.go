// Package store implements the remote record store boundary over its
// paginated REST API. All rate limiting and retry lives here; callers see
// only the final outcome of each call.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"rmt-go/internal/rmt"
)

// Config configures the HTTP record store adapter.
type Config struct {
	// BaseURL is the API root, e.g. "https://records.example.com/v1".
	BaseURL string

	// APIToken is sent as a bearer token on every request.
	APIToken string

	// Timeout for individual requests (default: 30s).
	Timeout time.Duration

	// MaxRetries for transient failures (default: 3).
	MaxRetries int

	// RateLimit is requests per second against the store's published
	// ceiling (default: 5).
	RateLimit float64

	// RateBurst is the limiter burst size (default: 1).
	RateBurst int

	// RetryBaseDelay is the first backoff step (default: 250ms). Tests
	// shrink it.
	RetryBaseDelay time.Duration

	// Transport allows injecting a custom HTTP transport for tests.
	Transport http.RoundTripper
}

// HTTPStore implements rmt.RecordStore against the remote REST API.
// Every request, read or write, waits on the shared token-bucket limiter;
// an empty bucket suspends the call, it never drops it.
type HTTPStore struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ rmt.RecordStore = (*HTTPStore)(nil)

// NewHTTPStore creates an adapter from cfg, filling in defaults.
func NewHTTPStore(cfg Config) (*HTTPStore, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("store requires a base URL")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 5.0
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = 1
	}
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = 250 * time.Millisecond
	}

	return &HTTPStore{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
	}, nil
}

// wire types

type wireRecord struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"createdAt"`
	Fields    map[string]string `json:"fields"`
}

type listResponse struct {
	Records []wireRecord `json:"records"`
}

type createResponse struct {
	ID string `json:"id"`
}

// FetchPage retrieves one page of records. Filters become filter[Key]
// query parameters, combined by the store as a logical AND. hasMore is
// derived from the page being full; a short page signals exhaustion.
func (s *HTTPStore) FetchPage(ctx context.Context, collection string, filters map[string]string, page, pageSize int) ([]rmt.Record, bool, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("pageSize", strconv.Itoa(pageSize))
	// Deterministic parameter order keeps request logs and test stubs
	// stable.
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		query.Set("filter["+k+"]", filters[k])
	}

	body, err := s.do(ctx, http.MethodGet, s.recordsPath(collection), query, nil)
	if err != nil {
		return nil, false, err
	}

	var list listResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, false, &rmt.StoreError{
			Kind: rmt.FailureRejected,
			Op:   "fetch " + collection,
			Err:  fmt.Errorf("malformed response: %w", err),
		}
	}

	records := make([]rmt.Record, 0, len(list.Records))
	for _, w := range list.Records {
		records = append(records, rmt.Record{
			ID:         w.ID,
			Collection: collection,
			CreatedAt:  w.CreatedAt,
			Fields:     w.Fields,
		})
	}
	return records, len(records) == pageSize, nil
}

// DeleteRecord permanently removes a record.
func (s *HTTPStore) DeleteRecord(ctx context.Context, collection, id string) error {
	_, err := s.do(ctx, http.MethodDelete, s.recordPath(collection, id), nil, nil)
	return err
}

// UpdateRecord sets fields on a record, leaving other fields untouched.
func (s *HTTPStore) UpdateRecord(ctx context.Context, collection, id string, fields map[string]string) error {
	payload, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return fmt.Errorf("marshaling update: %w", err)
	}
	_, err = s.do(ctx, http.MethodPatch, s.recordPath(collection, id), nil, payload)
	return err
}

// CreateRecord creates a record and returns the store-assigned ID.
func (s *HTTPStore) CreateRecord(ctx context.Context, collection string, fields map[string]string) (string, error) {
	payload, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return "", fmt.Errorf("marshaling create: %w", err)
	}
	body, err := s.do(ctx, http.MethodPost, s.recordsPath(collection), nil, payload)
	if err != nil {
		return "", err
	}

	var created createResponse
	if err := json.Unmarshal(body, &created); err != nil {
		return "", &rmt.StoreError{
			Kind: rmt.FailureRejected,
			Op:   "create in " + collection,
			Err:  fmt.Errorf("malformed response: %w", err),
		}
	}
	return created.ID, nil
}

func (s *HTTPStore) recordsPath(collection string) string {
	return "/collections/" + url.PathEscape(collection) + "/records"
}

func (s *HTTPStore) recordPath(collection, id string) string {
	return s.recordsPath(collection) + "/" + url.PathEscape(id)
}

// do executes one logical request with rate limiting, retry with
// exponential backoff for transient failures, and classification of the
// final error. Non-transient failures return immediately.
func (s *HTTPStore) do(ctx context.Context, method, path string, query url.Values, payload []byte) ([]byte, error) {
	op := method + " " + path

	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := s.cfg.RetryBaseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		// Every attempt consumes a token; the wait suspends, it is not
		// a failure.
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		body, err := s.doOnce(ctx, method, path, query, payload)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var se *rmt.StoreError
		if errors.As(err, &se) && se.Kind == rmt.FailureRejected {
			return nil, err
		}
	}

	return nil, &rmt.StoreError{
		Kind: rmt.FailureUnavailable,
		Op:   op,
		Err:  fmt.Errorf("retries exhausted after %d attempts: %w", s.cfg.MaxRetries+1, lastErr),
	}
}

func (s *HTTPStore) doOnce(ctx context.Context, method, path string, query url.Values, payload []byte) ([]byte, error) {
	fullURL := s.cfg.BaseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if s.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIToken)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		// Timeouts and connection errors are transient.
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	kind := rmt.FailureRejected
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		kind = rmt.FailureUnavailable
	}
	return nil, &rmt.StoreError{
		Kind: kind,
		Op:   method + " " + path,
		Err:  fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(body), 200)),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
