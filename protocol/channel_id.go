package protocol

import (
	"fmt"
	"strings"
)

type ResourceType string

const (
	ResourceSpeechRecog ResourceType = "speechrecog"
	ResourceDTMFRecog   ResourceType = "dtmfrecog"
	ResourceSpeechSynth ResourceType = "speechsynth"
	ResourceBasicSynth  ResourceType = "basicsynth"
	ResourceSpeakVerify ResourceType = "speakverify"
	ResourceRecorder    ResourceType = "recorder"
)

// ChannelIdentifier names one control channel on a connection. It is
// comparable so it can be used as a map key.
type ChannelIdentifier struct {
	SessionID string
	Resource  ResourceType
}

// ParseChannelIdentifier parses the "<session-id>@<resource-type>" form used
// by the Channel-Identifier header.
func ParseChannelIdentifier(s string) (ChannelIdentifier, error) {
	s = strings.TrimSpace(s)

	at := strings.IndexByte(s, '@')
	if at < 1 || at == len(s)-1 || strings.IndexByte(s[at+1:], '@') >= 0 {
		return ChannelIdentifier{}, fmt.Errorf("'%s': %w", s, ErrInvalidChannelIdentifier)
	}

	return ChannelIdentifier{
		SessionID: s[:at],
		Resource:  ResourceType(s[at+1:]),
	}, nil
}

func (c ChannelIdentifier) String() string {
	return c.SessionID + "@" + string(c.Resource)
}

func (c ChannelIdentifier) IsZero() bool {
	return c == ChannelIdentifier{}
}
