// Package httpx holds the retrying HTTP client shared by every component
// that talks to a remote HTTP endpoint.
package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ErrNotFound indicates a 404 reply.
var ErrNotFound = errors.New("httpx: not found")

// DefaultMaxBody bounds bodies read by Get.
const DefaultMaxBody = 64 << 20

// NewClient returns a client retrying transport errors and 5xx replies
// up to retries times.
func NewClient(retries int, timeout time.Duration) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = retries
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil
	if timeout > 0 {
		rc.HTTPClient.Timeout = timeout
	}
	return rc
}

// Get fetches url and returns at most maxBody bytes of a 200 reply.
func Get(ctx context.Context, c *retryablehttp.Client, url string, maxBody int64) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("httpx: build request: %w", err)
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpx: GET %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("httpx: GET %s: HTTP %d", url, resp.StatusCode)
	}
	if maxBody <= 0 {
		maxBody = DefaultMaxBody
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("httpx: read %s: %w", url, err)
	}
	if int64(len(body)) > maxBody {
		return nil, fmt.Errorf("httpx: GET %s: body exceeds %d bytes", url, maxBody)
	}
	return body, nil
}
