package protocol

// Request is a client to server message invoking a method on a resource.
type Request struct {
	message

	Method    MethodName
	RequestID RequestID
}

// NewRequest returns a request shell for method. The channel that sends it
// fills in the request id and Channel-Identifier header.
func NewRequest(method MethodName) *Request {
	return &Request{
		message: message{Version: Version},
		Method:  method,
	}
}

func (r *Request) GetRequestID() RequestID {
	return r.RequestID
}

func (r *Request) GetMethod() MethodName {
	return r.Method
}
