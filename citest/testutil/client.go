package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/inspectbridge/inspectbridge/pkg/types"
)

// TestClient provides HTTP client utilities for testing
type TestClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewTestClient creates a new test HTTP client
func NewTestClient(baseURL string) *TestClient {
	return &TestClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// RequestOption configures HTTP requests
type RequestOption func(*http.Request)

// WithHeader adds a header to the request
func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) {
		r.Header.Set(key, value)
	}
}

// WithQuery adds query parameters
func WithQuery(params map[string]string) RequestOption {
	return func(r *http.Request) {
		q := r.URL.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		r.URL.RawQuery = q.Encode()
	}
}

// Response wraps HTTP response with helpers
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// JSON unmarshals response body into v
func (r *Response) JSON(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// String returns response body as string
func (r *Response) String() string {
	return string(r.Body)
}

// IsSuccess returns true if status code is 2xx
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Get performs HTTP GET request
func (c *TestClient) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil, opts...)
}

// Post performs HTTP POST request with JSON body
func (c *TestClient) Post(ctx context.Context, path string, body interface{}, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, body, opts...)
}

// do performs the actual HTTP request
func (c *TestClient) do(ctx context.Context, method, path string, body interface{}, opts ...RequestOption) (*Response, error) {
	fullURL := c.BaseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}, nil
}

// ---- RPC Helpers ----

// RPCError represents an error returned by the /rpc endpoint
type RPCError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc failed: %d %s - %s", e.StatusCode, e.Code, e.Message)
}

// CallRPC posts a JSON-RPC style request to /rpc and decodes the envelope
func (c *TestClient) CallRPC(ctx context.Context, method string, params ...interface{}) (*types.RPCResponse, error) {
	raw := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal param: %w", err)
		}
		raw = append(raw, b)
	}

	resp, err := c.Post(ctx, "/rpc", types.RPCRequest{Method: method, Params: raw})
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		var apiErr struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = resp.JSON(&apiErr)
		return nil, &RPCError{
			StatusCode: resp.StatusCode,
			Code:       apiErr.Error.Code,
			Message:    apiErr.Error.Message,
		}
	}

	var envelope types.RPCResponse
	if err := resp.JSON(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode rpc envelope: %w", err)
	}
	return &envelope, nil
}

// ---- Status Helpers ----

// GetStatus retrieves the bridge status
func (c *TestClient) GetStatus(ctx context.Context) (*types.BridgeStatus, error) {
	resp, err := c.Get(ctx, "/status")
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to get status: %d - %s", resp.StatusCode, resp.String())
	}

	var status types.BridgeStatus
	if err := resp.JSON(&status); err != nil {
		return nil, err
	}
	return &status, nil
}

// StartServer starts a managed view server by name
func (c *TestClient) StartServer(ctx context.Context, name string) (*Response, error) {
	return c.Post(ctx, "/server/"+name+"/start", nil)
}

// StopServer stops a managed view server by name
func (c *TestClient) StopServer(ctx context.Context, name string) (*Response, error) {
	return c.Post(ctx, "/server/"+name+"/stop", nil)
}
