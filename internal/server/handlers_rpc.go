package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/inspectbridge/inspectbridge/internal/viewserver"
	"github.com/inspectbridge/inspectbridge/pkg/types"
)

// rpcHandler executes one RPC method against the bridge.
type rpcHandler func(ctx context.Context, params []json.RawMessage) (types.RPCResponse, error)

// methods is the fixed RPC dispatch table. Webviews cannot reach the view
// servers directly; every call funnels through here.
func (s *Server) methods() map[string]rpcHandler {
	return map[string]rpcHandler{
		"view_request":      s.rpcViewRequest,
		"scans_list":        s.rpcScansList,
		"scan_get":          s.rpcScanGet,
		"scanner_dataframe": s.rpcScannerDataframe,
	}
}

// handleRPC decodes the request envelope, dispatches the method, and maps
// lifecycle errors to HTTP statuses.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req types.RPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid RPC envelope: "+err.Error())
		return
	}

	handler, ok := s.methods()[req.Method]
	if !ok {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "unknown method: "+req.Method)
		return
	}

	resp, err := handler(r.Context(), req.Params)
	if err != nil {
		writeRPCError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeRPCError(w http.ResponseWriter, err error) {
	var (
		notFound *viewserver.PackageNotFoundError
		failed   *viewserver.LaunchFailedError
		timeout  *viewserver.LaunchTimeoutError
		status   *viewserver.HTTPStatusError
	)
	switch {
	case errors.As(err, &notFound):
		writeError(w, http.StatusServiceUnavailable, ErrCodePackageMissing, err.Error())
	case errors.As(err, &failed):
		writeError(w, http.StatusBadGateway, ErrCodeLaunchFailed, err.Error())
	case errors.As(err, &timeout):
		writeError(w, http.StatusGatewayTimeout, ErrCodeLaunchTimeout, err.Error())
	case errors.As(err, &status):
		writeError(w, http.StatusBadGateway, ErrCodeUpstreamError, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
	}
}

// rpcViewRequest is the generic proxy: one object param with path, method,
// headers, and body, forwarded verbatim to the view server.
func (s *Server) rpcViewRequest(ctx context.Context, params []json.RawMessage) (types.RPCResponse, error) {
	var p types.ViewRequestParams
	if err := decodeParam(params, 0, &p); err != nil {
		return types.RPCResponse{}, err
	}
	if p.Path == "" {
		return types.RPCResponse{}, fmt.Errorf("view_request requires a path")
	}

	client, err := s.app.Client("view")
	if err != nil {
		return types.RPCResponse{}, err
	}
	return client.Do(ctx, p)
}

// rpcScansList lists scan result sets under a directory.
func (s *Server) rpcScansList(ctx context.Context, params []json.RawMessage) (types.RPCResponse, error) {
	var dir string
	if err := decodeParam(params, 0, &dir); err != nil {
		return types.RPCResponse{}, err
	}

	client, err := s.app.Client("scan")
	if err != nil {
		return types.RPCResponse{}, err
	}
	return client.Do(ctx, types.ViewRequestParams{
		Path: "api/scans?dir=" + url.QueryEscape(dir),
	})
}

// rpcScanGet fetches one scan file. A 404 is an expected answer for scans
// that were removed between listing and fetching, so it resolves to a
// sentinel body instead of an error.
func (s *Server) rpcScanGet(ctx context.Context, params []json.RawMessage) (types.RPCResponse, error) {
	var file string
	if err := decodeParam(params, 0, &file); err != nil {
		return types.RPCResponse{}, err
	}

	client, err := s.app.Client("scan")
	if err != nil {
		return types.RPCResponse{}, err
	}
	return client.DoMapped(ctx, types.ViewRequestParams{
		Path: "api/scan?file=" + url.QueryEscape(file),
	}, func(status int) (string, bool) {
		if status == http.StatusNotFound {
			return "NotFound", true
		}
		return "", false
	})
}

// scannerDataframeParams selects one scanner's dataframe within a scan file.
type scannerDataframeParams struct {
	File    string `json:"file"`
	Scanner string `json:"scanner"`
}

// rpcScannerDataframe fetches Arrow-encoded dataframe bytes. The response
// body rides through the envelope base64-encoded.
func (s *Server) rpcScannerDataframe(ctx context.Context, params []json.RawMessage) (types.RPCResponse, error) {
	var p scannerDataframeParams
	if err := decodeParam(params, 0, &p); err != nil {
		return types.RPCResponse{}, err
	}
	if p.File == "" || p.Scanner == "" {
		return types.RPCResponse{}, fmt.Errorf("scanner_dataframe requires file and scanner")
	}

	client, err := s.app.Client("scan")
	if err != nil {
		return types.RPCResponse{}, err
	}
	return client.Do(ctx, types.ViewRequestParams{
		Path: "api/df?file=" + url.QueryEscape(p.File) + "&scanner=" + url.QueryEscape(p.Scanner),
	})
}

func decodeParam(params []json.RawMessage, i int, out any) error {
	if i >= len(params) {
		return fmt.Errorf("missing param %d", i)
	}
	if err := json.Unmarshal(params[i], out); err != nil {
		return fmt.Errorf("invalid param %d: %w", i, err)
	}
	return nil
}
