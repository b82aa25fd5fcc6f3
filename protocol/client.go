package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/bitfsorg/chunkd/httpx"
)

// RequestIDHeader carries a per-call id for log correlation.
const RequestIDHeader = "X-Request-Id"

// maxResponseSize bounds a reply body.
const maxResponseSize = 64 << 20

// Client calls a remote peer's Server.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
}

var _ Caller = (*Client)(nil)

// NewClient returns a Client for the peer at baseURL (e.g.
// "http://10.0.0.2:7420"). Transport failures and 5xx replies are retried
// up to retries times.
func NewClient(baseURL string, retries int, timeout time.Duration) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpx.NewClient(retries, timeout)}
}

// Call implements Caller.
func (c *Client) Call(ctx context.Context, msgType string, params any, results ...any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return NewError(CodeInvalidParams, err.Error())
	}

	url := c.baseURL + strings.Replace(RPCPath, "{type}", msgType, 1)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("protocol: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDHeader, uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("protocol: %s %s: %w", msgType, c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("protocol: read reply: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return NewError(CodeBadResponse, fmt.Sprintf("HTTP %d: undecodable reply", resp.StatusCode))
	}
	if env.Error != nil {
		return env.Error
	}
	if resp.StatusCode != http.StatusOK {
		return NewError(CodeBadResponse, fmt.Sprintf("HTTP %d", resp.StatusCode))
	}
	return decodeTuple(env.Result, results)
}
