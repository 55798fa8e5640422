package lspdbg

import (
	"github.com/lspdbg/lspdbg-go/internal/client"
	"github.com/lspdbg/lspdbg-go/internal/message"
	"github.com/lspdbg/lspdbg-go/internal/stderrmon"
)

// Version identifies this harness in initialize handshakes.
const Version = "0.1.0"

// State is the protocol-level lifecycle of a client.
type State = client.State

// Protocol states, in lifecycle order.
const (
	Uninitialized = client.Uninitialized
	Initializing  = client.Initializing
	Ready         = client.Ready
	ShuttingDown  = client.ShuttingDown
	Closed        = client.Closed
)

// Message is a decoded JSON-RPC frame: a response carries Result or Error,
// a server-initiated frame carries Method and Params.
type Message = message.Frame

// RPCError is a JSON-RPC error object. It implements the error interface.
type RPCError = message.Error

// Standard JSON-RPC error codes.
const (
	CodeParseError     = message.CodeParseError
	CodeInvalidRequest = message.CodeInvalidRequest
	CodeMethodNotFound = message.CodeMethodNotFound
	CodeInvalidParams  = message.CodeInvalidParams
	CodeInternalError  = message.CodeInternalError
)

// ServerEvent is an asynchronous frame from the server: a notification, or
// a server-initiated request (ID set in that case).
type ServerEvent = client.ServerEvent

// EventObserver receives asynchronous server events in arrival order. It
// runs on the frame dispatch goroutine; keep it cheap.
type EventObserver = client.EventObserver

// StderrEvent is a classified line from the server's stderr stream.
type StderrEvent = stderrmon.Event

// StderrClassifier decides whether a stderr line is notable and tags it.
type StderrClassifier = stderrmon.Classifier

// StderrObserver receives notable stderr lines as they are read.
type StderrObserver = stderrmon.Observer

// MatchKeywords builds a classifier that tags lines containing any of the
// given substrings. The first matching keyword becomes the tag.
func MatchKeywords(keywords ...string) StderrClassifier {
	return stderrmon.MatchKeywords(keywords...)
}
