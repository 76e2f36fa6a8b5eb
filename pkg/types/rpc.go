package types

import "encoding/json"

// Body encodings carried by RPCResponse envelopes. Webview message channels
// only transport JSON-serializable payloads, so binary bodies are base64
// encoded and tagged.
const (
	EncodingUTF8   = "utf8"
	EncodingBase64 = "base64"
)

// RPCRequest is one webview call: a named method plus positional params.
type RPCRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params,omitempty"`
}

// RPCResponse is the envelope returned for every RPC method.
//
// Headers are flattened to a single string per name, which loses repeated
// headers (e.g. multiple Set-Cookie values collapse to the last one).
type RPCResponse struct {
	Status       int               `json:"status"`
	Headers      map[string]string `json:"headers,omitempty"`
	Body         string            `json:"body"`
	BodyEncoding string            `json:"bodyEncoding"`
}

// ViewRequestParams are the positional params of the generic proxy method,
// decoded from the single object param of "view_request".
type ViewRequestParams struct {
	Path    string            `json:"path"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}
