package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const (
	startLinePartCount   = 5
	requestLinePartCount = 4

	// responseRequestIDPart is the start-line part that is numeric for a
	// response and an event-name for an event.
	responseRequestIDPart = 2

	// DefaultMaxContentLength bounds the Content-Length a Decoder will honour
	// unless told otherwise.
	DefaultMaxContentLength = 8 * 1024 * 1024
)

// Decoder reads MRCP messages from a stream. It keeps its own buffered reader
// so bytes read ahead of one message are available to the next, a Decoder
// must therefore be reused for the lifetime of the stream.
type Decoder struct {
	r   *bufio.Reader
	log *zap.Logger

	// MaxContentLength is the largest Content-Length accepted. Zero or less
	// disables the check.
	MaxContentLength int
}

// NewDecoder returns a Decoder reading from r. If r is already a
// *bufio.Reader it is used directly.
func NewDecoder(r io.Reader, log *zap.Logger) *Decoder {
	if log == nil {
		log = zap.NewNop()
	}

	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}

	return &Decoder{
		r:                br,
		log:              log,
		MaxContentLength: DefaultMaxContentLength,
	}
}

// ReadMessage decodes a single response or event from data.
//
// Any bytes buffered beyond the end of the message are lost unless data is a
// *bufio.Reader, use a Decoder to read a stream of messages.
func ReadMessage(data io.Reader) (Message, error) {
	return NewDecoder(data, nil).Decode()
}

// Decode reads the next response or event from the stream.
//
// Errors wrapping ErrParse or ErrIllegalValue describe a malformed message.
// io.EOF is returned if the stream ends cleanly before a start-line, any
// other error comes from the underlying reader.
func (d *Decoder) Decode() (Message, error) {
	line, err := d.readStartLine()
	if err != nil {
		return nil, err
	}

	parts := strings.Split(line, " ")
	if len(parts) != startLinePartCount {
		return nil, fmt.Errorf("got %d parts in '%s': %w", len(parts), line, ErrStartLinePartCount)
	}

	var (
		msg  Message
		base *message
	)

	// A response carries its request-id where an event carries its name.
	if _, err := strconv.ParseInt(parts[responseRequestIDPart], 10, 64); err == nil {
		resp, err := createResponse(parts)
		if err != nil {
			return nil, fmt.Errorf("Failed to parse '%s': %w", line, err)
		}

		msg, base = resp, &resp.message
	} else {
		event, err := createEvent(parts)
		if err != nil {
			return nil, fmt.Errorf("Failed to parse '%s': %w", line, err)
		}

		msg, base = event, &event.message
	}

	if err := d.readBody(base); err != nil {
		return nil, err
	}

	return msg, nil
}

// DecodeRequest reads the next request from the stream. It is the server
// side mirror of Decode.
func (d *Decoder) DecodeRequest() (*Request, error) {
	line, err := d.readStartLine()
	if err != nil {
		return nil, err
	}

	parts := strings.Split(line, " ")
	if len(parts) != requestLinePartCount {
		return nil, fmt.Errorf("got %d parts in '%s': %w", len(parts), line, ErrStartLinePartCount)
	}

	req, err := createRequest(parts)
	if err != nil {
		return nil, fmt.Errorf("Failed to parse '%s': %w", line, err)
	}

	if err := d.readBody(&req.message); err != nil {
		return nil, err
	}

	return req, nil
}

// readStartLine returns the first non-blank line.
func (d *Decoder) readStartLine() (string, error) {
	for {
		line, err := d.readLine()
		if err != nil {
			return "", err
		}

		if line = strings.TrimSpace(line); line != "" {
			return line, nil
		}

		d.log.Debug("Skipping empty line before start-line")
	}
}

func (d *Decoder) readLine() (string, error) {
	line, err := d.r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return "", io.ErrUnexpectedEOF
		}

		return "", err
	}

	return line, nil
}

func (d *Decoder) readBody(m *message) error {
	if err := d.readHeaders(m); err != nil {
		return err
	}

	return d.readContent(m)
}

// readHeaders reads message-headers up to and including the blank line that
// ends them. Multi-line header values are not supported.
func (d *Decoder) readHeaders(m *message) error {
	for {
		line, err := d.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}

			return fmt.Errorf("reading message-headers: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			return nil
		}

		index := strings.IndexByte(line, ':')
		if index < 1 {
			return fmt.Errorf("Failed to parse '%s': %w", line, ErrMalformedHeader)
		}

		header, err := CreateHeader(line[:index], strings.TrimSpace(line[index+1:]))
		if err != nil {
			return err
		}

		m.Headers.Set(header)
	}
}

// readContent reads Content-Length bytes of UTF-8 content.
//
// Content is read a rune at a time and the remaining count is reduced by each
// rune's encoded size, so a length that ends inside a multi-byte sequence
// reads the whole rune. That overshoot is logged rather than treated as an
// error.
func (d *Decoder) readContent(m *message) error {
	length, err := m.ContentLength()
	if err != nil {
		return err
	}

	if length <= 0 {
		return nil
	}

	if d.MaxContentLength > 0 && length > d.MaxContentLength {
		return fmt.Errorf("Content-Length %d: %w", length, ErrContentTooLarge)
	}

	var content strings.Builder
	content.Grow(length)

	remaining := length
	for remaining > 0 {
		r, size, err := d.r.ReadRune()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}

			return fmt.Errorf("unexpected end of stream (%d bytes remaining to be read): %w", remaining, err)
		}

		content.WriteRune(r)
		remaining -= size
	}

	if remaining < 0 {
		d.log.Warn("Read more content bytes than Content-Length declared",
			zap.Int("contentLength", length),
			zap.Int("overshoot", -remaining))
	}

	m.Content = content.String()

	return nil
}

// createResponse builds a response shell from
// "<version> <length> <request-id> <status-code> <request-state>".
func createResponse(parts []string) (*Response, error) {
	version, length, err := parseVersionAndLength(parts)
	if err != nil {
		return nil, err
	}

	requestID, err := ParseRequestID(parts[2])
	if err != nil {
		return nil, fmt.Errorf("request-id '%s': %w", parts[2], ErrMalformedStartLine)
	}

	statusCode, err := strconv.Atoi(parts[3])
	if err != nil || len(parts[3]) != 3 {
		return nil, fmt.Errorf("status-code '%s': %w", parts[3], ErrMalformedStartLine)
	}

	state, err := ParseRequestState(parts[4])
	if err != nil {
		return nil, fmt.Errorf("request-state '%s': %w", parts[4], err)
	}

	resp := NewResponse(requestID, statusCode, state)
	resp.Version = version
	resp.Length = length

	return resp, nil
}

// createEvent builds an event shell from
// "<version> <length> <event-name> <request-id> <request-state>".
func createEvent(parts []string) (*Event, error) {
	version, length, err := parseVersionAndLength(parts)
	if err != nil {
		return nil, err
	}

	requestID, err := ParseRequestID(parts[3])
	if err != nil {
		return nil, fmt.Errorf("request-id '%s': %w", parts[3], ErrMalformedStartLine)
	}

	state, err := ParseRequestState(parts[4])
	if err != nil {
		return nil, fmt.Errorf("request-state '%s': %w", parts[4], err)
	}

	event := NewEvent(EventName(parts[2]), requestID, state)
	event.Version = version
	event.Length = length

	return event, nil
}

// createRequest builds a request shell from
// "<version> <length> <method-name> <request-id>".
func createRequest(parts []string) (*Request, error) {
	version, length, err := parseVersionAndLength(parts)
	if err != nil {
		return nil, err
	}

	requestID, err := ParseRequestID(parts[3])
	if err != nil {
		return nil, fmt.Errorf("request-id '%s': %w", parts[3], ErrMalformedStartLine)
	}

	req := NewRequest(MethodName(parts[2]))
	req.Version = version
	req.Length = length
	req.RequestID = requestID

	return req, nil
}

func parseVersionAndLength(parts []string) (string, int, error) {
	if !strings.HasPrefix(parts[0], "MRCP/") {
		return "", 0, fmt.Errorf("version '%s': %w", parts[0], ErrMalformedStartLine)
	}

	length, err := strconv.Atoi(parts[1])
	if err != nil || length < 0 {
		return "", 0, fmt.Errorf("message-length '%s': %w", parts[1], ErrMalformedStartLine)
	}

	return parts[0], length, nil
}
