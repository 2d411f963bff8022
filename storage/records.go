package storage

import (
	"github.com/luma/mrcp/protocol"
)

type requestRecord struct {
	Headers map[string]string `json:"headers"`
	Content string            `json:"content,omitempty"`
}

type responseRecord struct {
	Status  int               `json:"status"`
	State   string            `json:"state"`
	Headers map[string]string `json:"headers"`
	Content string            `json:"content,omitempty"`
}

type eventRecord struct {
	Name    string            `json:"name"`
	State   string            `json:"state"`
	Headers map[string]string `json:"headers"`
	Content string            `json:"content,omitempty"`
}

func newRequestRecord(req *protocol.Request) requestRecord {
	return requestRecord{
		Headers: headerValues(req.GetHeaders()),
		Content: req.Content,
	}
}

func newResponseRecord(resp *protocol.Response) responseRecord {
	return responseRecord{
		Status:  resp.StatusCode,
		State:   string(resp.State),
		Headers: headerValues(resp.GetHeaders()),
		Content: resp.Content,
	}
}

func newEventRecord(event *protocol.Event) eventRecord {
	return eventRecord{
		Name:    string(event.Name),
		State:   string(event.State),
		Headers: headerValues(event.GetHeaders()),
		Content: event.Content,
	}
}

func headerValues(headers *protocol.Headers) map[string]string {
	values := make(map[string]string, headers.Len())
	for _, header := range headers.All() {
		values[string(header.Name)] = header.RawValue()
	}

	return values
}
