// Package protocol implements the Content-Length framing used by debug
// adapters to delimit JSON messages within a continuous byte stream.
//
// Each message on the wire is a header block followed by an exact-length body:
//
//	Content-Length: 119\r\n
//	\r\n
//	{"seq":1,"type":"request","command":"initialize",...}
//
// The sender computes the UTF-8 byte length of the JSON body; the receiver
// reads headers until the blank line, then reads exactly Content-Length bytes.
// A single read may carry several complete messages, or one message may arrive
// split across many reads, so decoding is driven by a growable buffer rather
// than a blocking reader.
package protocol

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	// ContentLengthHeader is matched case-sensitively, per the wire contract.
	ContentLengthHeader = "Content-Length"

	headerTerminator = "\r\n\r\n"
	headerSeparator  = "\r\n"
)

// FramingError reports a malformed header block. The decoder discards the
// offending block and keeps going, so a buggy peer cannot wedge the stream.
type FramingError struct {
	Reason string
	Header string
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("framing error: %s (header %q)", e.Reason, e.Header)
}

// Encode writes one framed message to w: the Content-Length header, the blank
// line, and the body, with no trailing separator.
func Encode(w io.Writer, body []byte) error {
	if _, err := fmt.Fprintf(w, "%s: %d%s", ContentLengthHeader, len(body), headerTerminator); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// EncodeBytes frames a body into a single byte slice.
func EncodeBytes(body []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(body) + 32)
	Encode(&buf, body) // bytes.Buffer writes cannot fail
	return buf.Bytes()
}

// Decoder reassembles framed messages from arbitrary byte chunks, holding the
// partial bytes between feeds. Not safe for concurrent use; each connection
// owns exactly one Decoder.
type Decoder struct {
	buf        bytes.Buffer
	contentLen int // -1 while no header block has been parsed yet
}

// NewDecoder returns a Decoder with an empty buffer.
func NewDecoder() *Decoder {
	return &Decoder{contentLen: -1}
}

// Feed appends chunk to the buffered state and extracts every complete message
// body now available, in stream order.
//
// A nil error with no bodies means the stream is merely incomplete: the
// leftover bytes stay buffered until the next Feed. On a *FramingError the bad
// header block has already been discarded and any bodies decoded before it are
// still returned, so the caller can log the error and continue feeding.
func (d *Decoder) Feed(chunk []byte) ([][]byte, error) {
	d.buf.Write(chunk)

	var bodies [][]byte
	for {
		if d.contentLen < 0 {
			// Scan for the end of the header block.
			idx := bytes.Index(d.buf.Bytes(), []byte(headerTerminator))
			if idx < 0 {
				return bodies, nil // wait for more bytes
			}

			header := string(d.buf.Next(idx + len(headerTerminator))[:idx])
			length, err := parseContentLength(header)
			if err != nil {
				return bodies, err
			}
			d.contentLen = length
		}

		if d.buf.Len() < d.contentLen {
			return bodies, nil // body not fully arrived yet
		}

		body := make([]byte, d.contentLen)
		copy(body, d.buf.Next(d.contentLen))
		d.contentLen = -1

		// Zero-length bodies carry nothing parseable and are dropped.
		if len(body) > 0 {
			bodies = append(bodies, body)
		}
	}
}

// Reset discards all buffered bytes and any expected length. Called on
// disconnect so a reconnect never sees stale partial frames.
func (d *Decoder) Reset() {
	d.buf.Reset()
	d.contentLen = -1
}

// Buffered reports how many undecoded bytes are currently held.
func (d *Decoder) Buffered() int {
	return d.buf.Len()
}

// parseContentLength extracts the Content-Length value from a header block.
// Headers are \r\n-separated "Name: value" lines; unknown headers are ignored
// rather than rejected. The header name match is exact and case-sensitive,
// with optional whitespace around the value.
func parseContentLength(header string) (int, error) {
	for _, line := range strings.Split(header, headerSeparator) {
		name, value, ok := strings.Cut(line, ":")
		if !ok || name != ContentLengthHeader {
			continue
		}
		length, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || length < 0 {
			return 0, &FramingError{Reason: "unparseable Content-Length value", Header: line}
		}
		return length, nil
	}
	return 0, &FramingError{Reason: "missing Content-Length header", Header: header}
}
