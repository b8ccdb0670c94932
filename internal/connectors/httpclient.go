package connectors

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/custodia-labs/cityseed/internal/core/domain"
)

// DefaultHTTPTimeout bounds a connector HTTP client when the caller
// supplies none. The runner's per-call timeout usually fires first.
const DefaultHTTPTimeout = 60 * time.Second

// UserAgent is sent with every connector request.
const UserAgent = "cityseed/1.0 (+https://github.com/custodia-labs/cityseed)"

// APIError is a non-2xx response from a source.
type APIError struct {
	StatusCode int
	URL        string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s returned %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s returned %d: %s", e.URL, e.StatusCode, e.Message)
}

// RetryAfterError carries the delay a source asked for before the next call.
type RetryAfterError struct {
	Delay time.Duration
	Err   error
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("%v (retry after %s)", e.Err, e.Delay)
}

func (e *RetryAfterError) Unwrap() error { return e.Err }

// NewHTTPClient returns client, or a default client when nil.
func NewHTTPClient(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: DefaultHTTPTimeout}
}

// Get issues a GET and returns the body of a 2xx response. Failures are
// classified: network errors, 429 and 5xx are transient, other 4xx are
// permanent.
func Get(ctx context.Context, client *http.Client, op, url string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, domain.NewPermanentError(op, fmt.Errorf("build request: %w", err))
	}
	return do(client, op, req, header)
}

// PostJSON sends in as a JSON body and decodes a 2xx response into out.
// Errors follow Get; an undecodable 2xx body is transient, since model
// servers occasionally return truncated output.
func PostJSON(ctx context.Context, client *http.Client, op, url string, header http.Header, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return domain.NewPermanentError(op, fmt.Errorf("encode request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return domain.NewPermanentError(op, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	body, err := do(client, op, req, header)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return domain.NewTransientError(op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func do(client *http.Client, op string, req *http.Request, header http.Header) ([]byte, error) {
	req.Header.Set("User-Agent", UserAgent)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, domain.NewTransientError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, domain.NewTransientError(op, fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}
	return nil, ClassifyStatus(op, resp, body)
}

// Bearer is the Authorization header for an API key, or nil without one.
func Bearer(apiKey string) http.Header {
	if apiKey == "" {
		return nil
	}
	return http.Header{"Authorization": []string{"Bearer " + apiKey}}
}

// ClassifyStatus maps a failed response onto the connector error taxonomy.
func ClassifyStatus(op string, resp *http.Response, body []byte) error {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		URL:        resp.Request.URL.Redacted(),
		Message:    strings.TrimSpace(string(truncate(body, 200))),
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		var cause error = apiErr
		if d, ok := ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); ok {
			cause = &RetryAfterError{Delay: d, Err: apiErr}
		}
		return domain.NewTransientError(op, cause)
	default:
		return domain.NewPermanentError(op, apiErr)
	}
}

// ParseRetryAfter reads a Retry-After header in either delay-seconds or
// HTTP-date form.
func ParseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
