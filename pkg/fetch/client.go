// Package fetch is the paced JSON-over-HTTP client shared by the retailer APIs and the translator.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// ErrNotFound is returned for 404 and 204 responses, which are not retried.
var ErrNotFound = errors.New("not found")

type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

type Client struct {
	HTTP    *http.Client
	Limiter *rate.Limiter
	Header  http.Header
	// Attempts is how often a request is tried before giving up. Backoff grows linearly per attempt.
	Attempts int
	Backoff  time.Duration
	Prefix   string
}

// NewClient paces requests to perSecond with the given burst.
func NewClient(prefix string, perSecond float64, burst int) *Client {
	return &Client{
		HTTP:     &http.Client{Timeout: 30 * time.Second},
		Limiter:  rate.NewLimiter(rate.Limit(perSecond), burst),
		Header:   http.Header{"User-Agent": []string{"shelf-sync/1.0"}},
		Attempts: 3,
		Backoff:  500 * time.Millisecond,
		Prefix:   prefix,
	}
}

func (c *Client) GetJSON(ctx context.Context, url string, header http.Header, out any) error {
	return c.do(ctx, http.MethodGet, url, header, nil, out)
}

func (c *Client) PostJSON(ctx context.Context, url string, header http.Header, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, url, header, body, out)
}

func (c *Client) do(ctx context.Context, method, url string, header http.Header, body []byte, out any) error {
	attempts := max(c.Attempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if c.Limiter != nil {
			if err := c.Limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limiter: %w", err)
			}
		}

		data, err := c.once(ctx, method, url, header, body)
		if err == nil {
			if out == nil || len(data) == 0 {
				return nil
			}
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("decode %s: %w", url, err)
			}
			return nil
		}
		if errors.Is(err, ErrNotFound) || ctx.Err() != nil {
			return err
		}

		var status *StatusError
		if errors.As(err, &status) && status.Status < 500 && status.Status != http.StatusTooManyRequests {
			return err
		}

		log.Printf("[%s] %s %s failed (attempt %d/%d): %v", c.Prefix, method, url, attempt, attempts, err)
		lastErr = err
		if attempt < attempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * c.Backoff):
			}
		}
	}
	return lastErr
}

func (c *Client) once(ctx context.Context, method, url string, header http.Header, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range c.Header {
		req.Header[k] = v
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent:
		return nil, fmt.Errorf("%s %s: %w", method, url, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		if len(data) > 200 {
			data = data[:200]
		}
		return nil, &StatusError{Status: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}
