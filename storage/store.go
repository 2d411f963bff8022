package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/luma/mrcp/protocol"
)

// ErrNotFound is returned by Get when nothing is stored at the path.
var ErrNotFound = errors.New("no value stored at path")

// Update is sent to every ListenToUpdates channel when a value changes. Key is
// the path that changed and Value the raw JSON now stored there.
type Update struct {
	Key   []byte
	Value []byte
}

// Store is a JSON document of the MRCP traffic seen by the client, keyed by
// channel identifier and then by request id:
//
//	{
//	  "32AECB23433801@speechrecog": {
//	    "101": {
//	      "method": "RECOGNIZE",
//	      "request": {...},
//	      "responses": [...],
//	      "events": [...]
//	    }
//	  }
//	}
//
// Paths use gjson syntax, see Path for building them.
type Store interface {
	// Record adds msg to the exchange of its request id on channelID.
	Record(ctx context.Context, channelID string, msg protocol.Message) error

	Set(ctx context.Context, key []byte, value interface{}) error
	Get(ctx context.Context, key []byte) ([]byte, error)

	Restore(values []byte) error
	Backup() ([]byte, error)

	ListenToUpdates() <-chan *Update
	StopListening(updates <-chan *Update)

	Close() error
}

// Path returns the path of the exchange for requestID on channelID.
func Path(channelID string, requestID protocol.RequestID) []byte {
	return []byte(EscapePathComponent(channelID) + "." + requestID.String())
}

// ChannelPath returns the path of every exchange on channelID.
func ChannelPath(channelID string) []byte {
	return []byte(EscapePathComponent(channelID))
}

// EscapePathComponent escapes the characters gjson and sjson treat as path
// syntax, channel identifiers always contain at least an '@'.
func EscapePathComponent(component string) string {
	var b strings.Builder
	b.Grow(len(component) + 2)

	for i := 0; i < len(component); i++ {
		switch c := component[i]; c {
		case '.', ':', '*', '?', '|', '#', '@', '!', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)

		default:
			b.WriteByte(c)
		}
	}

	return b.String()
}
