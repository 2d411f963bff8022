package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

type HeaderName string

// Generic headers
const (
	ChannelIdentifierHeader  HeaderName = "Channel-Identifier"
	ContentLength            HeaderName = "Content-Length"
	ContentType              HeaderName = "Content-Type"
	ContentID                HeaderName = "Content-Id"
	ContentBase              HeaderName = "Content-Base"
	ContentEncoding          HeaderName = "Content-Encoding"
	ContentLocation          HeaderName = "Content-Location"
	CacheControl             HeaderName = "Cache-Control"
	LoggingTag               HeaderName = "Logging-Tag"
	VendorSpecificParameters HeaderName = "Vendor-Specific-Parameters"
	ActiveRequestIDList      HeaderName = "Active-Request-Id-List"
	ProxySyncID              HeaderName = "Proxy-Sync-Id"
	Accept                   HeaderName = "Accept"
	AcceptCharset            HeaderName = "Accept-Charset"
	FetchTimeout             HeaderName = "Fetch-Timeout"
	SetCookie                HeaderName = "Set-Cookie"
)

// Recognizer headers
const (
	CompletionCauseHeader   HeaderName = "Completion-Cause"
	CompletionReason        HeaderName = "Completion-Reason"
	ConfidenceThreshold     HeaderName = "Confidence-Threshold"
	SensitivityLevel        HeaderName = "Sensitivity-Level"
	SpeedVsAccuracy         HeaderName = "Speed-Vs-Accuracy"
	NBestListLength         HeaderName = "N-Best-List-Length"
	NoInputTimeout          HeaderName = "No-Input-Timeout"
	RecognitionTimeout      HeaderName = "Recognition-Timeout"
	StartInputTimersHeader  HeaderName = "Start-Input-Timers"
	SpeechCompleteTimeout   HeaderName = "Speech-Complete-Timeout"
	SpeechIncompleteTimeout HeaderName = "Speech-Incomplete-Timeout"
	SaveWaveform            HeaderName = "Save-Waveform"
	WaveformURI             HeaderName = "Waveform-Uri"
	SpeechLanguage          HeaderName = "Speech-Language"
	RecognitionMode         HeaderName = "Recognition-Mode"
)

// Synthesizer headers
const (
	KillOnBargeIn      HeaderName = "Kill-On-Barge-In"
	SpeakerProfile     HeaderName = "Speaker-Profile"
	SpeechMarkerHeader HeaderName = "Speech-Marker"
	VoiceGender        HeaderName = "Voice-Gender"
	VoiceAge           HeaderName = "Voice-Age"
	VoiceName          HeaderName = "Voice-Name"
	SpeechRate         HeaderName = "Speech-Rate"
	SpeechVolume       HeaderName = "Speech-Volume"
	LoadLexicon        HeaderName = "Load-Lexicon"
)

type valueParser func(raw string) (interface{}, error)

// registry maps each known header to the parser for its value grammar.
// Headers missing from it are treated as opaque strings.
var registry = map[HeaderName]valueParser{
	ChannelIdentifierHeader:  parseChannelIdentifierValue,
	ContentLength:            parseInteger,
	ContentType:              parseString,
	ContentID:                parseString,
	ContentBase:              parseString,
	ContentEncoding:          parseString,
	ContentLocation:          parseString,
	CacheControl:             parseString,
	LoggingTag:               parseString,
	VendorSpecificParameters: parseString,
	ActiveRequestIDList:      parseRequestIDList,
	ProxySyncID:              parseString,
	Accept:                   parseString,
	AcceptCharset:            parseString,
	FetchTimeout:             parseInteger,
	SetCookie:                parseString,
	CompletionCauseHeader:    parseCompletionCause,
	CompletionReason:         parseString,
	ConfidenceThreshold:      parseFraction,
	SensitivityLevel:         parseFraction,
	SpeedVsAccuracy:          parseFraction,
	NBestListLength:          parseInteger,
	NoInputTimeout:           parseInteger,
	RecognitionTimeout:       parseInteger,
	StartInputTimersHeader:   parseBoolean,
	SpeechCompleteTimeout:    parseInteger,
	SpeechIncompleteTimeout:  parseInteger,
	SaveWaveform:             parseBoolean,
	WaveformURI:              parseString,
	SpeechLanguage:           parseString,
	RecognitionMode:          parseString,
	KillOnBargeIn:            parseBoolean,
	SpeakerProfile:           parseString,
	SpeechMarkerHeader:       parseString,
	VoiceGender:              parseString,
	VoiceAge:                 parseInteger,
	VoiceName:                parseString,
	SpeechRate:               parseString,
	SpeechVolume:             parseString,
	LoadLexicon:              parseBoolean,
}

// canonical maps lower-cased header names to their canonical spelling.
var canonical = func() map[string]HeaderName {
	m := make(map[string]HeaderName, len(registry))
	for name := range registry {
		m[strings.ToLower(string(name))] = name
	}
	return m
}()

// CanonicalHeaderName returns the registered spelling of name. Header names
// are case-insensitive on the wire.
func CanonicalHeaderName(name string) HeaderName {
	if n, ok := canonical[strings.ToLower(name)]; ok {
		return n
	}

	return HeaderName(name)
}

// CreateHeaderValue parses raw according to the grammar of the named header.
func CreateHeaderValue(name HeaderName, raw string) (interface{}, error) {
	parse, ok := registry[CanonicalHeaderName(string(name))]
	if !ok {
		parse = parseString
	}

	value, err := parse(raw)
	if err != nil {
		return nil, &IllegalValueError{Header: name, Value: raw, Err: err}
	}

	return value, nil
}

// Header is a single typed message-header.
type Header struct {
	Name  HeaderName
	raw   string
	value interface{}
}

// CreateHeader builds a typed header from its wire name and raw value. It
// returns an IllegalValueError if the value does not parse.
func CreateHeader(name, raw string) (*Header, error) {
	headerName := CanonicalHeaderName(strings.TrimSpace(name))

	value, err := CreateHeaderValue(headerName, raw)
	if err != nil {
		return nil, err
	}

	return &Header{Name: headerName, raw: raw, value: value}, nil
}

// NewHeader builds a header from an already typed value.
func NewHeader(name HeaderName, value interface{}) *Header {
	return &Header{
		Name:  CanonicalHeaderName(string(name)),
		raw:   formatValue(value),
		value: value,
	}
}

// Value returns the typed value: string, int, bool, float64,
// ChannelIdentifier, CompletionCause or []RequestID.
func (h *Header) Value() interface{} {
	return h.value
}

func (h *Header) RawValue() string {
	return h.raw
}

func (h *Header) String() string {
	return string(h.Name) + ": " + h.raw
}

// CompletionCause is the value of the Completion-Cause header, e.g.
// "000 success".
type CompletionCause struct {
	Code int
	Name string
}

func (c CompletionCause) String() string {
	return fmt.Sprintf("%03d %s", c.Code, c.Name)
}

func parseString(raw string) (interface{}, error) {
	return raw, nil
}

func parseInteger(raw string) (interface{}, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}

	if n < 0 {
		return nil, fmt.Errorf("negative value %d", n)
	}

	return n, nil
}

func parseBoolean(raw string) (interface{}, error) {
	switch strings.ToLower(raw) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return nil, fmt.Errorf("not a boolean")
	}
}

func parseFraction(raw string) (interface{}, error) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}

	if f < 0 || f > 1 {
		return nil, fmt.Errorf("%v is outside [0, 1]", f)
	}

	return f, nil
}

func parseChannelIdentifierValue(raw string) (interface{}, error) {
	return ParseChannelIdentifier(raw)
}

func parseCompletionCause(raw string) (interface{}, error) {
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 || len(parts[0]) != 3 {
		return nil, fmt.Errorf("expected '<NNN> <cause-name>'")
	}

	code, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, err
	}

	return CompletionCause{Code: code, Name: strings.TrimSpace(parts[1])}, nil
}

func parseRequestIDList(raw string) (interface{}, error) {
	ids := make([]RequestID, 0)
	for _, part := range strings.Split(raw, ",") {
		id, err := ParseRequestID(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}

		ids = append(ids, id)
	}

	return ids, nil
}

func formatValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []RequestID:
		parts := make([]string, len(v))
		for i, id := range v {
			parts[i] = id.String()
		}
		return strings.Join(parts, ",")
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Headers is an ordered set of headers with case-insensitive, unique names.
// The zero value is ready to use.
type Headers struct {
	list  []*Header
	index map[string]int
}

// Set adds header, replacing any header with the same name in place.
func (h *Headers) Set(header *Header) {
	if h.index == nil {
		h.index = make(map[string]int)
	}

	key := strings.ToLower(string(header.Name))
	if i, ok := h.index[key]; ok {
		h.list[i] = header
		return
	}

	h.index[key] = len(h.list)
	h.list = append(h.list, header)
}

func (h *Headers) Get(name HeaderName) (*Header, bool) {
	i, ok := h.index[strings.ToLower(string(name))]
	if !ok {
		return nil, false
	}

	return h.list[i], true
}

func (h *Headers) Remove(name HeaderName) {
	key := strings.ToLower(string(name))
	i, ok := h.index[key]
	if !ok {
		return
	}

	h.list = append(h.list[:i], h.list[i+1:]...)
	delete(h.index, key)

	for j := i; j < len(h.list); j++ {
		h.index[strings.ToLower(string(h.list[j].Name))] = j
	}
}

// All returns the headers in insertion order.
func (h *Headers) All() []*Header {
	all := make([]*Header, len(h.list))
	copy(all, h.list)
	return all
}

func (h *Headers) Len() int {
	return len(h.list)
}
