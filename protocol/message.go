package protocol

import (
	"strconv"
)

// RequestID correlates responses and events with the request that caused
// them. Clients allocate them in strictly increasing order per channel.
type RequestID uint64

func ParseRequestID(s string) (RequestID, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}

	return RequestID(id), nil
}

func (r RequestID) String() string {
	return strconv.FormatUint(uint64(r), 10)
}

// Message is implemented by *Request, *Response and *Event.
type Message interface {
	GetVersion() string
	GetRequestID() RequestID
	GetHeaders() *Headers
	GetContent() string

	// GetChannelID returns the value of the Channel-Identifier header.
	GetChannelID() (ChannelIdentifier, bool)
}

// message holds the parts shared by every MRCP message.
type message struct {
	Version string

	// Length is the message-length field as read off the wire. It is
	// recomputed when a message is written.
	Length int

	Headers Headers
	Content string
}

func (m *message) GetVersion() string {
	return m.Version
}

func (m *message) GetHeaders() *Headers {
	return &m.Headers
}

func (m *message) GetContent() string {
	return m.Content
}

func (m *message) AddHeader(header *Header) {
	m.Headers.Set(header)
}

func (m *message) GetHeader(name HeaderName) (*Header, bool) {
	return m.Headers.Get(name)
}

func (m *message) GetChannelID() (ChannelIdentifier, bool) {
	header, ok := m.Headers.Get(ChannelIdentifierHeader)
	if !ok {
		return ChannelIdentifier{}, false
	}

	id, ok := header.Value().(ChannelIdentifier)
	return id, ok
}

// ContentLength returns the typed Content-Length header value, or 0 when the
// header is absent.
func (m *message) ContentLength() (int, error) {
	header, ok := m.Headers.Get(ContentLength)
	if !ok {
		return 0, nil
	}

	n, ok := header.Value().(int)
	if !ok {
		return 0, &IllegalValueError{Header: ContentLength, Value: header.RawValue()}
	}

	return n, nil
}

// SetContent attaches content and sets the Content-Type, Content-Id and
// Content-Length headers to match. contentID may be empty.
func (m *message) SetContent(contentType, contentID, content string) {
	m.Headers.Set(NewHeader(ContentType, contentType))
	if contentID != "" {
		m.Headers.Set(NewHeader(ContentID, contentID))
	}
	m.Headers.Set(NewHeader(ContentLength, len(content)))
	m.Content = content
}

var _ Message = (*Request)(nil)
var _ Message = (*Response)(nil)
var _ Message = (*Event)(nil)
