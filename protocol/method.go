package protocol

// Version is the only protocol version this package speaks.
const Version = "MRCP/2.0"

type MethodName string

const (
	// Generic methods
	SetParams MethodName = "SET-PARAMS"
	GetParams MethodName = "GET-PARAMS"

	// Synthesizer methods
	Speak           MethodName = "SPEAK"
	Stop            MethodName = "STOP"
	Pause           MethodName = "PAUSE"
	Resume          MethodName = "RESUME"
	BargeInOccurred MethodName = "BARGE-IN-OCCURRED"
	Control         MethodName = "CONTROL"
	DefineLexicon   MethodName = "DEFINE-LEXICON"

	// Recognizer methods
	DefineGrammar    MethodName = "DEFINE-GRAMMAR"
	Recognize        MethodName = "RECOGNIZE"
	Interpret        MethodName = "INTERPRET"
	GetResult        MethodName = "GET-RESULT"
	StartInputTimers MethodName = "START-INPUT-TIMERS"
)

type EventName string

const (
	// Synthesizer events
	SpeechMarker  EventName = "SPEECH-MARKER"
	SpeakComplete EventName = "SPEAK-COMPLETE"

	// Recognizer events
	StartOfInput           EventName = "START-OF-INPUT"
	RecognitionComplete    EventName = "RECOGNITION-COMPLETE"
	InterpretationComplete EventName = "INTERPRETATION-COMPLETE"
)

// RequestState tracks where a request is in its lifecycle. Only COMPLETE is
// terminal.
type RequestState string

const (
	StatePending    RequestState = "PENDING"
	StateInProgress RequestState = "IN-PROGRESS"
	StateComplete   RequestState = "COMPLETE"
)

func ParseRequestState(s string) (RequestState, error) {
	switch state := RequestState(s); state {
	case StatePending, StateInProgress, StateComplete:
		return state, nil
	default:
		return "", ErrUnknownRequestState
	}
}

// IsTerminal reports whether no further responses or events will follow for
// the request.
func (s RequestState) IsTerminal() bool {
	return s == StateComplete
}

// Response status codes
const (
	StatusSuccess                           = 200
	StatusSuccessSomeOptionalHeadersIgnored = 201

	StatusMethodNotAllowed           = 401
	StatusMethodNotValidInState      = 402
	StatusUnsupportedHeader          = 403
	StatusIllegalValueForHeader      = 404
	StatusResourceNotAllocated       = 405
	StatusMandatoryHeaderMissing     = 406
	StatusOperationFailed            = 407
	StatusUnrecognizedMessageEntity  = 408
	StatusUnsupportedHeaderValue     = 409
	StatusNonMonotonicSequenceNumber = 410

	StatusServerInternalError         = 501
	StatusProtocolVersionNotSupported = 502
	StatusProxyTimeout                = 503
	StatusMessageTooLarge             = 504
)

var statusText = map[int]string{
	StatusSuccess:                           "Success",
	StatusSuccessSomeOptionalHeadersIgnored: "Success with some optional headers ignored",

	StatusMethodNotAllowed:           "Method not allowed",
	StatusMethodNotValidInState:      "Method not valid in this state",
	StatusUnsupportedHeader:          "Unsupported header",
	StatusIllegalValueForHeader:      "Illegal value for header",
	StatusResourceNotAllocated:       "Resource not allocated for this session or does not exist",
	StatusMandatoryHeaderMissing:     "Mandatory header missing",
	StatusOperationFailed:            "Method or operation failed",
	StatusUnrecognizedMessageEntity:  "Unrecognized or unsupported message entity",
	StatusUnsupportedHeaderValue:     "Unsupported header value",
	StatusNonMonotonicSequenceNumber: "Non-monotonic or out of order sequence number in request",

	StatusServerInternalError:         "Server internal error",
	StatusProtocolVersionNotSupported: "Protocol version not supported",
	StatusProxyTimeout:                "Proxy timeout",
	StatusMessageTooLarge:             "Message too large",
}

// StatusText returns a text for the MRCP status code. It returns the empty
// string if the code is unknown.
func StatusText(code int) string {
	return statusText[code]
}

// IsSuccess reports whether code is in the 2xx range.
func IsSuccess(code int) bool {
	return code >= 200 && code < 300
}
