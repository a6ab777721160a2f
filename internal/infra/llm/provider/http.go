package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPOption configures the HTTP-based clients.
type HTTPOption func(*httpTransport)

// WithBaseURL points the client at a different API root.
func WithBaseURL(url string) HTTPOption {
	return func(t *httpTransport) { t.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *httpTransport) { t.client = c }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(t *httpTransport) {
		if d > 0 {
			t.client.Timeout = d
		}
	}
}

type httpTransport struct {
	baseURL string
	client  *http.Client
}

func newHTTPTransport(baseURL string, opts []HTTPOption) *httpTransport {
	t := &httpTransport{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// postJSON sends body as JSON and decodes a 2xx reply into out.
func (t *httpTransport) postJSON(ctx context.Context, path string, headers map[string]string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return t.post(ctx, path, "application/json", headers, bytes.NewReader(data), out)
}

func (t *httpTransport) post(
	ctx context.Context,
	path, contentType string,
	headers map[string]string,
	body io.Reader,
	out any,
) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("http call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeStatusError(resp, raw)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidReply, err)
	}
	return nil
}

// apiErrorBody covers both the Google and the OpenAI error envelopes.
type apiErrorBody struct {
	Error struct {
		Message string          `json:"message"`
		Status  string          `json:"status"`
		Type    string          `json:"type"`
		Code    json.RawMessage `json:"code"`
		Details []struct {
			Type       string `json:"@type"`
			RetryDelay string `json:"retryDelay"`
		} `json:"details"`
	} `json:"error"`
}

func decodeStatusError(resp *http.Response, raw []byte) *StatusError {
	se := &StatusError{
		Code:       resp.StatusCode,
		Message:    strings.TrimSpace(string(raw)),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}

	var body apiErrorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Message != "" {
		se.Message = body.Error.Message
		se.Status = body.Error.Status
		for _, d := range body.Error.Details {
			if strings.HasSuffix(d.Type, "google.rpc.RetryInfo") && d.RetryDelay != "" {
				if delay, err := time.ParseDuration(d.RetryDelay); err == nil {
					se.RetryAfter = delay
				}
			}
		}
	}
	return se
}

// parseRetryAfter understands delta-seconds and HTTP-date forms.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
