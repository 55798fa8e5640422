package lspdbg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// clientName identifies the harness in the initialize handshake.
const clientName = "lspdbg"

// FileURI converts a filesystem path to a file:// document URI.
func FileURI(path string) protocol.DocumentURI {
	return protocol.DocumentURI(uri.File(path))
}

// DefaultInitializeParams builds the initialize parameters the harness sends
// when the caller supplies none. rootDir may be empty for servers that do
// not care about a workspace.
func DefaultInitializeParams(rootDir string) *protocol.InitializeParams {
	params := &protocol.InitializeParams{
		ProcessID: int32(os.Getpid()),
		ClientInfo: &protocol.ClientInfo{
			Name:    clientName,
			Version: Version,
		},
	}

	if rootDir != "" {
		params.RootURI = protocol.DocumentURI(uri.File(rootDir))
	}

	return params
}

// Initialize performs the initialize handshake. On success the client
// transitions to Ready and subsequent requests are permitted. A nil params
// sends DefaultInitializeParams.
//
// A server-side initialize error leaves the client Uninitialized, so the
// handshake can be retried.
func (c *Client) Initialize(ctx context.Context, params *protocol.InitializeParams) (*protocol.InitializeResult, error) {
	if params == nil {
		params = DefaultInitializeParams("")
	}

	resp, err := c.Call(ctx, protocol.MethodInitialize, params)
	if err != nil {
		return nil, err
	}

	var result protocol.InitializeResult
	if err := decodeResult(resp, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// Initialized sends the initialized notification, completing the handshake.
func (c *Client) Initialized(ctx context.Context) error {
	return c.Notify(ctx, protocol.MethodInitialized, protocol.InitializedParams{})
}

// DidOpen announces a document to the server with its full initial text.
func (c *Client) DidOpen(ctx context.Context, doc protocol.DocumentURI, languageID, text string) error {
	return c.Notify(ctx, protocol.MethodTextDocumentDidOpen, protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        doc,
			LanguageID: protocol.LanguageIdentifier(languageID),
			Version:    1,
			Text:       text,
		},
	})
}

// DidChange sends a full-text replacement for an open document. version must
// increase with each change to the same document.
func (c *Client) DidChange(ctx context.Context, doc protocol.DocumentURI, version int32, text string) error {
	return c.Notify(ctx, protocol.MethodTextDocumentDidChange, protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: doc},
			Version:                version,
		},
		ContentChanges: []protocol.TextDocumentContentChangeEvent{
			{Text: text},
		},
	})
}

// Completion requests completions at a zero-based line/character position.
// Both response shapes servers use (a CompletionList or a bare item array)
// decode into a CompletionList; a null result decodes to an empty one.
func (c *Client) Completion(ctx context.Context, doc protocol.DocumentURI, line, character uint32) (*protocol.CompletionList, error) {
	params := protocol.CompletionParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: doc},
			Position:     protocol.Position{Line: line, Character: character},
		},
		Context: &protocol.CompletionContext{
			TriggerKind: protocol.CompletionTriggerKindInvoked,
		},
	}

	resp, err := c.Call(ctx, protocol.MethodTextDocumentCompletion, params)
	if err != nil {
		return nil, err
	}

	if resp.Error != nil {
		return nil, resp.Error
	}

	return decodeCompletionResult(resp.Result)
}

// Shutdown sends the shutdown request. The client transitions to
// ShuttingDown on send; only the exit notification may follow.
func (c *Client) Shutdown(ctx context.Context) error {
	resp, err := c.Call(ctx, protocol.MethodShutdown, nil)
	if err != nil {
		return err
	}

	if resp.Error != nil {
		return resp.Error
	}

	return nil
}

// Exit sends the exit notification. The server is expected to terminate
// afterwards; Close still reaps the process either way.
func (c *Client) Exit(ctx context.Context) error {
	return c.Notify(ctx, protocol.MethodExit, nil)
}

// decodeResult unwraps a response frame into v, surfacing a server-side
// error object as the error.
func decodeResult(resp *Message, v any) error {
	if resp.Error != nil {
		return resp.Error
	}

	if len(resp.Result) == 0 {
		return nil
	}

	if err := json.Unmarshal(resp.Result, v); err != nil {
		return fmt.Errorf("decode %T result: %w", v, err)
	}

	return nil
}

// decodeCompletionResult accepts the three result shapes the protocol
// allows: CompletionItem[], CompletionList, or null.
func decodeCompletionResult(raw json.RawMessage) (*protocol.CompletionList, error) {
	trimmed := bytes.TrimSpace(raw)

	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return &protocol.CompletionList{Items: []protocol.CompletionItem{}}, nil
	}

	if trimmed[0] == '[' {
		var items []protocol.CompletionItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode completion items: %w", err)
		}

		return &protocol.CompletionList{Items: items}, nil
	}

	var list protocol.CompletionList
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return nil, fmt.Errorf("decode completion list: %w", err)
	}

	return &list, nil
}
