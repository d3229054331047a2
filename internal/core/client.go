package core

// client.go performs the actual network submission.
//
// Failures are classified into exactly two per-record categories: transport
// problems become NetworkError, and any non-2xx answer from the service
// becomes APIRejectionError carrying status and body for diagnosis.

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxResponseSize caps how much of a response body is read (1MB). The
// service's responses are small; the limit guards log size.
const maxResponseSize = 1 << 20

// SubmissionClient performs one registration call per payload.
type SubmissionClient interface {
	Submit(ctx context.Context, payload *SubmissionPayload) (*SubmissionResponse, error)
}

// HTTPSubmissionClient submits payloads to the configured endpoint over
// HTTPS with bearer and tenant credentials.
type HTTPSubmissionClient struct {
	endpoint string
	bearer   string
	tenant   string
	client   *http.Client
}

// NewHTTPSubmissionClient creates a client for the given endpoint and
// credentials. A non-positive timeout defaults to 30 seconds.
func NewHTTPSubmissionClient(endpoint, bearerToken, tenantKey string, timeout time.Duration) *HTTPSubmissionClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSubmissionClient{
		endpoint: endpoint,
		bearer:   bearerToken,
		tenant:   tenantKey,
		client:   &http.Client{Timeout: timeout},
	}
}

// Submit POSTs one payload and returns the normalized response fields.
func (c *HTTPSubmissionClient) Submit(ctx context.Context, payload *SubmissionPayload) (*SubmissionResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.bearer)
	req.Header.Set("tenant-key", c.tenant)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &NetworkError{Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIRejectionError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	var out SubmissionResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &NetworkError{Err: fmt.Errorf("decode response: %w", err)}
	}
	return &out, nil
}
