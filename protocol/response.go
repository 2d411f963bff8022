package protocol

import "fmt"

// Response is the server's answer to a request. A request receives at most
// one non-PENDING response.
type Response struct {
	message

	RequestID  RequestID
	StatusCode int
	State      RequestState
}

func NewResponse(requestID RequestID, statusCode int, state RequestState) *Response {
	return &Response{
		message:    message{Version: Version},
		RequestID:  requestID,
		StatusCode: statusCode,
		State:      state,
	}
}

func (r *Response) GetRequestID() RequestID {
	return r.RequestID
}

// IsSuccess reports whether the status code is in the 2xx range.
func (r *Response) IsSuccess() bool {
	return IsSuccess(r.StatusCode)
}

func (r *Response) String() string {
	return fmt.Sprintf("%s %d %s %d %s", r.Version, r.Length, r.RequestID, r.StatusCode, r.State)
}

// Event is an asynchronous notification about an in-progress request.
type Event struct {
	message

	Name      EventName
	RequestID RequestID
	State     RequestState
}

func NewEvent(name EventName, requestID RequestID, state RequestState) *Event {
	return &Event{
		message:   message{Version: Version},
		Name:      name,
		RequestID: requestID,
		State:     state,
	}
}

func (e *Event) GetRequestID() RequestID {
	return e.RequestID
}

func (e *Event) String() string {
	return fmt.Sprintf("%s %d %s %s %s", e.Version, e.Length, e.Name, e.RequestID, e.State)
}
