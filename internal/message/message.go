package message

import (
	"encoding/json"
	"fmt"

	"github.com/lspdbg/lspdbg-go/internal/errors"
)

// Version is the JSON-RPC protocol version carried by every message.
const Version = "2.0"

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeServerError    = -32000
)

// Request is an outgoing request or notification. A request carries an ID
// and expects a response; a notification has no ID and expects none.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// NewRequest builds a request with the given identifier.
func NewRequest(id int64, method string, params any) *Request {
	return &Request{
		JSONRPC: Version,
		ID:      &id,
		Method:  method,
		Params:  params,
	}
}

// NewNotification builds a notification (no identifier, no response).
func NewNotification(method string, params any) *Request {
	return &Request{
		JSONRPC: Version,
		Method:  method,
		Params:  params,
	}
}

// Error is the JSON-RPC error object carried by failed responses.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}

// Kind classifies an incoming frame by the presence of id and method.
type Kind int

const (
	// KindInvalid marks a frame that is neither request, notification,
	// nor response (including the empty frame from a zero-length body).
	KindInvalid Kind = iota

	// KindRequest is a server-initiated request (id and method present).
	KindRequest

	// KindNotification is a server-initiated notification (method, no id).
	KindNotification

	// KindResponse is a reply to a client request (id, no method).
	KindResponse
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	case KindResponse:
		return "response"
	default:
		return "invalid"
	}
}

// Frame is one decoded message as received from the server. Exactly which
// fields are populated depends on Kind().
type Frame struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Kind reports the message variant of the frame.
func (f *Frame) Kind() Kind {
	switch {
	case f.Method != "" && f.ID != nil:
		return KindRequest
	case f.Method != "":
		return KindNotification
	case f.ID != nil:
		return KindResponse
	default:
		return KindInvalid
	}
}

// Decode parses a frame body. A zero-length body is valid and decodes to an
// empty frame. Malformed JSON yields a DecodingError carrying the raw body.
func Decode(raw []byte) (*Frame, error) {
	var f Frame

	if len(raw) == 0 {
		return &f, nil
	}

	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, &errors.DecodingError{Raw: raw, Err: err}
	}

	return &f, nil
}
