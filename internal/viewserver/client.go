package viewserver

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/inspectbridge/inspectbridge/pkg/types"
)

// StatusMapper converts selected HTTP statuses into successful sentinel
// bodies instead of errors. Used for methods where e.g. a 404 is an
// expected answer rather than a failure.
type StatusMapper func(status int) (body string, ok bool)

// Client proxies webview requests to a managed server over loopback HTTP.
// Every call goes through EnsureRunning first, so requests always carry the
// credential of the live process and a dead server is relaunched instead of
// erroring with a stale connection.
type Client struct {
	manager *Manager
	httpc   *http.Client
}

// NewClient creates a proxy client over the given manager.
func NewClient(m *Manager) *Client {
	return &Client{
		manager: m,
		// Dataframe responses can be large; the overall bound comes from
		// the caller's context, not a per-request timeout.
		httpc: &http.Client{Timeout: 0},
	}
}

// Do issues one proxied request and wraps the response in an RPC envelope.
func (c *Client) Do(ctx context.Context, params types.ViewRequestParams) (types.RPCResponse, error) {
	return c.DoMapped(ctx, params, nil)
}

// DoMapped is Do with a per-call status mapper.
func (c *Client) DoMapped(ctx context.Context, params types.ViewRequestParams, mapStatus StatusMapper) (types.RPCResponse, error) {
	ep, err := c.manager.EnsureRunning(ctx)
	if err != nil {
		return types.RPCResponse{}, err
	}

	method := params.Method
	if method == "" {
		method = http.MethodGet
	}

	url := fmt.Sprintf("http://127.0.0.1:%d/%s", ep.Port, strings.TrimPrefix(params.Path, "/"))
	var body io.Reader
	if params.Body != "" {
		body = strings.NewReader(params.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return types.RPCResponse{}, fmt.Errorf("failed to build request for %s: %w", params.Path, err)
	}

	for k, v := range params.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Authorization", ep.AuthToken)
	// The webview's fetch layer caches aggressively; log files mutate in
	// place, so every response must be revalidated.
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Expires", "0")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return types.RPCResponse{}, fmt.Errorf("request to %s server failed: %w", c.manager.profile.Name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.RPCResponse{}, fmt.Errorf("failed to read response from %s: %w", params.Path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if mapStatus != nil {
			if sentinel, ok := mapStatus(resp.StatusCode); ok {
				return types.RPCResponse{
					Status:       http.StatusOK,
					Body:         sentinel,
					BodyEncoding: types.EncodingUTF8,
				}, nil
			}
		}
		return types.RPCResponse{}, &HTTPStatusError{Status: resp.StatusCode, Body: string(raw)}
	}

	out := types.RPCResponse{
		Status:  resp.StatusCode,
		Headers: flattenHeaders(resp.Header),
	}
	if isBinaryMIME(resp.Header.Get("Content-Type")) {
		out.Body = base64.StdEncoding.EncodeToString(raw)
		out.BodyEncoding = types.EncodingBase64
	} else {
		out.Body = string(raw)
		out.BodyEncoding = types.EncodingUTF8
	}
	return out, nil
}

func flattenHeaders(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, vs := range h {
		if len(vs) > 0 {
			out[k] = vs[len(vs)-1]
		}
	}
	return out
}

// binaryMIMEs are content types whose bodies cannot survive a UTF-8 round
// trip through the JSON envelope.
var binaryMIMEs = map[string]bool{
	"application/vnd.apache.arrow":        true,
	"application/vnd.apache.arrow.file":   true,
	"application/vnd.apache.arrow.stream": true,
	"application/octet-stream":            true,
	"application/zip":                     true,
}

func isBinaryMIME(contentType string) bool {
	if contentType == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return binaryMIMEs[mt]
}
