package protocol

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
)

var (
	Terminal = []byte("\r\n")
)

// WriteRequest writes req as "<version> <length> <method> <request-id>"
// followed by its headers and content.
func WriteRequest(w io.Writer, req *Request) error {
	return writeMessage(w, &req.message, fmt.Sprintf(" %s %s", req.Method, req.RequestID))
}

// WriteResponse writes resp as
// "<version> <length> <request-id> <status-code> <request-state>" followed by
// its headers and content.
func WriteResponse(w io.Writer, resp *Response) error {
	return writeMessage(w, &resp.message,
		fmt.Sprintf(" %s %d %s", resp.RequestID, resp.StatusCode, resp.State))
}

// WriteEvent writes event as
// "<version> <length> <event-name> <request-id> <request-state>" followed by
// its headers and content.
func WriteEvent(w io.Writer, event *Event) error {
	return writeMessage(w, &event.message,
		fmt.Sprintf(" %s %s %s", event.Name, event.RequestID, event.State))
}

// writeMessage writes the whole message with a single Write call. The
// message-length field is recomputed and stored on m.
func writeMessage(w io.Writer, m *message, startLineTail string) error {
	if m.Version == "" {
		m.Version = Version
	}

	if _, ok := m.Headers.Get(ContentLength); !ok && m.Content != "" {
		m.Headers.Set(NewHeader(ContentLength, len(m.Content)))
	}

	var body bytes.Buffer
	for _, header := range m.Headers.All() {
		body.WriteString(header.String())
		body.Write(Terminal)
	}
	body.Write(Terminal)
	body.WriteString(m.Content)

	fixed := len(m.Version) + 1 + len(startLineTail) + len(Terminal) + body.Len()
	m.Length = MessageLength(fixed)

	b := make([]byte, 0, m.Length)
	b = append(b, m.Version...)
	b = append(b, ' ')
	b = strconv.AppendInt(b, int64(m.Length), 10)
	b = append(b, startLineTail...)
	b = append(b, Terminal...)
	b = append(b, body.Bytes()...)

	_, err := w.Write(b)
	return err
}

// MessageLength returns the message-length for a message whose bytes, other
// than the message-length digits themselves, total fixed.
func MessageLength(fixed int) int {
	length := fixed
	for {
		next := fixed + len(strconv.Itoa(length))
		if next == length {
			return length
		}

		length = next
	}
}
