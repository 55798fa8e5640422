// Package frame implements the length-prefixed message framing used by the
// LSP stdio transport: an ASCII header of the form
//
//	Content-Length: <nbytes>\r\n
//	\r\n
//
// followed by exactly nbytes of JSON body. The length counts encoded bytes,
// not code points.
package frame

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/lspdbg/lspdbg-go/internal/errors"
)

// contentLengthHeader is matched case-sensitively per the LSP base protocol.
const contentLengthHeader = "Content-Length"

// A Writer encodes messages onto a byte stream. It is safe for concurrent
// use; each message is emitted as a single underlying write so frames from
// different callers never interleave.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter returns a Writer framing messages onto w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write serializes v and writes it as one frame. Returns EncodingError if
// v cannot be marshaled.
func (w *Writer) Write(v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return &errors.EncodingError{Err: err}
	}

	var buf bytes.Buffer

	fmt.Fprintf(&buf, "%s: %d\r\n\r\n", contentLengthHeader, len(body))
	buf.Write(body)

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	return nil
}

// A Reader decodes frames from a byte stream.
type Reader struct {
	br *bufio.Reader
}

// NewReader returns a Reader consuming frames from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// Next reads one frame and returns its raw body. Unknown header keys are
// ignored. A missing or unparsable Content-Length, or a stream that ends
// mid-frame, yields FramingError. A stream that ends cleanly at a frame
// boundary yields io.EOF. The returned body is always exactly the declared
// length, so the stream stays byte-aligned even if the caller fails to
// decode the body.
func (r *Reader) Next() ([]byte, error) {
	length := -1
	sawHeader := false

	for {
		raw, err := r.br.ReadString('\n')
		if err != nil {
			if err == io.EOF && !sawHeader && raw == "" {
				return nil, io.EOF
			}

			return nil, &errors.FramingError{Reason: "stream ended inside header block", Err: err}
		}

		sawHeader = true

		line := strings.TrimSuffix(raw, "\n")
		line = strings.TrimSuffix(line, "\r")

		if line == "" {
			break
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, &errors.FramingError{Reason: fmt.Sprintf("malformed header line %q", line)}
		}

		if key != contentLengthHeader {
			continue
		}

		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return nil, &errors.FramingError{Reason: fmt.Sprintf("invalid Content-Length %q", strings.TrimSpace(value)), Err: err}
		}

		length = n
	}

	if length < 0 {
		return nil, &errors.FramingError{Reason: "missing Content-Length header"}
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r.br, body); err != nil {
		return nil, &errors.FramingError{
			Reason: fmt.Sprintf("body truncated before %d bytes", length),
			Err:    err,
		}
	}

	return body, nil
}
