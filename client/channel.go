package client

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/luma/mrcp/metrics"
	"github.com/luma/mrcp/protocol"
	"github.com/luma/mrcp/storage"
	"github.com/luma/mrcp/transport"
)

// firstRequestID is the request id of the first request created on a channel.
const firstRequestID = 101

// Connection is the shared connection a Channel sends on and receives from.
// *transport.Conn implements it.
type Connection interface {
	Send(req *protocol.Request) error
	RegisterHandler(channelID protocol.ChannelIdentifier, handler transport.Handler)
	UnregisterHandler(channelID protocol.ChannelIdentifier)
	Close() error
	Done() <-chan struct{}
	Err() error
}

var _ Connection = (*transport.Conn)(nil)

// InvocationError is returned by SendRequest when the resource answered with
// a failure status code.
type InvocationError struct {
	Response *protocol.Response
}

func (e *InvocationError) Error() string {
	msg := fmt.Sprintf("MRCP request %s failed with status %d", e.Response.RequestID, e.Response.StatusCode)
	if text := protocol.StatusText(e.Response.StatusCode); text != "" {
		msg += " (" + text + ")"
	}

	return msg
}

// ResponseMatcher selects the response Await waits for.
type ResponseMatcher func(resp *protocol.Response) bool

// NotPending matches any response that is not PENDING, i.e. the response
// that tells the caller the request has been accepted or has finished.
func NotPending(resp *protocol.Response) bool {
	return resp.State != protocol.StatePending
}

type ChannelOption func(*Channel)

func WithLogger(log *zap.Logger) ChannelOption {
	return func(ch *Channel) {
		ch.log = log
	}
}

// WithJournal records every request sent and every response and event
// received on the channel.
func WithJournal(journal storage.Store) ChannelOption {
	return func(ch *Channel) {
		ch.journal = journal
	}
}

// WithMetrics counts the channel's traffic with collector.
func WithMetrics(collector *metrics.Collector) ChannelOption {
	return func(ch *Channel) {
		ch.metrics = collector
	}
}

// WithResponseTimeout bounds SendRequest when its context has no deadline.
func WithResponseTimeout(timeout time.Duration) ChannelOption {
	return func(ch *Channel) {
		ch.responseTimeout = timeout
	}
}

// Channel is a control channel to one MRCP resource. Clients create requests
// with it, send them, and receive the responses and events the resource
// produces.
//
// Several channels can share one Connection, messages are routed to the
// right channel by their Channel-Identifier header.
type Channel struct {
	id   protocol.ChannelIdentifier
	conn Connection

	// requestID is the last request id handed out
	requestID atomic.Uint64

	events    listenerSet[EventListener]
	responses listenerSet[ResponseListener]

	journal         storage.Store
	metrics         *metrics.Collector
	responseTimeout time.Duration

	log *zap.Logger
}

// NewChannel creates the channel named channelID and registers it with conn.
func NewChannel(channelID string, conn Connection, opts ...ChannelOption) (*Channel, error) {
	id, err := protocol.ParseChannelIdentifier(channelID)
	if err != nil {
		return nil, err
	}

	ch := &Channel{
		id:   id,
		conn: conn,
	}
	ch.requestID.Store(firstRequestID - 1)

	for _, opt := range opts {
		opt(ch)
	}

	if ch.log == nil {
		ch.log = zap.NewNop()
	}
	ch.log = ch.log.With(zap.Stringer("channel", id))

	conn.RegisterHandler(id, ch)

	return ch, nil
}

func (ch *Channel) ID() protocol.ChannelIdentifier {
	return ch.id
}

// CreateRequest returns a request for method with the next request id and
// this channel's Channel-Identifier header. Headers and content can be added
// before it is sent.
//
// Request ids are assigned here rather than when sending, so requests sent
// concurrently may go out of order.
func (ch *Channel) CreateRequest(method protocol.MethodName) *protocol.Request {
	req := protocol.NewRequest(method)
	req.Version = protocol.Version
	req.RequestID = protocol.RequestID(ch.requestID.Add(1))
	req.AddHeader(protocol.NewHeader(protocol.ChannelIdentifierHeader, ch.id))

	return req
}

// SendRequestAsync sends req and returns as soon as it has been written.
// Responses and events arrive through the registered listeners.
func (ch *Channel) SendRequestAsync(req *protocol.Request) error {
	ch.record(req)

	return ch.conn.Send(req)
}

// SendRequest sends req and waits for its first response that is not
// PENDING. A failure status code is returned as an *InvocationError.
//
// If ctx has no deadline the channel's response timeout, if any, applies.
// Otherwise SendRequest waits until ctx is done or the connection closes.
func (ch *Channel) SendRequest(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	if _, ok := ctx.Deadline(); !ok && ch.responseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ch.responseTimeout)
		defer cancel()
	}

	start := time.Now()

	resp, err := ch.Await(ctx, req, NotPending)
	if ch.metrics != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		ch.metrics.ObserveDuration(ch.id.String(), req.Method, status, time.Since(start))
	}

	if err != nil {
		return nil, err
	}

	if resp.StatusCode > 299 {
		return nil, &InvocationError{Response: resp}
	}

	return resp, nil
}

// Await sends req and returns the first response to it that match accepts.
// It returns ctx.Err() if ctx is done first, and transport.ErrClosed if the
// connection stops.
func (ch *Channel) Await(ctx context.Context, req *protocol.Request, match ResponseMatcher) (*protocol.Response, error) {
	matched := make(chan *protocol.Response, 1)

	remove := ch.AddResponseListener(ResponseListenerFunc(func(resp *protocol.Response) {
		if resp.RequestID != req.RequestID || !match(resp) {
			return
		}

		select {
		case matched <- resp:
		default:
			// Already have our response
		}
	}))
	defer remove()

	if err := ch.SendRequestAsync(req); err != nil {
		return nil, err
	}

	select {
	case resp := <-matched:
		return resp, nil

	case <-ctx.Done():
		return nil, ctx.Err()

	case <-ch.conn.Done():
		// The response may have been dispatched just before the read loop exited
		select {
		case resp := <-matched:
			return resp, nil
		default:
		}

		if err := ch.conn.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", transport.ErrClosed, err)
		}

		return nil, transport.ErrClosed
	}
}

// AddEventListener registers listener and returns a function that removes
// it. The function may be called from inside the listener.
func (ch *Channel) AddEventListener(listener EventListener) (remove func()) {
	return ch.events.add(listener)
}

// AddResponseListener registers listener and returns a function that removes
// it. The function may be called from inside the listener.
func (ch *Channel) AddResponseListener(listener ResponseListener) (remove func()) {
	return ch.responses.add(listener)
}

// HandleMessage is called by the connection for every message addressed to
// this channel.
func (ch *Channel) HandleMessage(msg protocol.Message) {
	ch.record(msg)

	switch m := msg.(type) {
	case *protocol.Response:
		listeners := ch.responses.snapshot()
		for _, listener := range listeners {
			listener.ResponseReceived(m)
		}

		if len(listeners) == 0 {
			ch.log.Warn("No response listeners registered, and yet a response was received",
				zap.Stringer("response", m))
		}

	case *protocol.Event:
		listeners := ch.events.snapshot()
		for _, listener := range listeners {
			listener.EventReceived(m)
		}

		if len(listeners) == 0 {
			ch.log.Warn("No event listeners registered, and yet an event was received",
				zap.Stringer("event", m))
		}

	default:
		ch.log.Warn("Unknown message",
			zap.String("type", fmt.Sprintf("%T", msg)),
			zap.Stringer("requestID", msg.GetRequestID()))
	}
}

// Close unregisters the channel and closes its connection. Any other channel
// sharing the connection stops working as well.
func (ch *Channel) Close() error {
	ch.conn.UnregisterHandler(ch.id)

	return ch.conn.Close()
}

func (ch *Channel) record(msg protocol.Message) {
	if ch.metrics != nil {
		ch.metrics.Observe(ch.id.String(), msg)
	}

	if ch.journal == nil {
		return
	}

	if err := ch.journal.Record(context.Background(), ch.id.String(), msg); err != nil {
		ch.log.Warn("Failed to record message",
			zap.Stringer("requestID", msg.GetRequestID()),
			zap.Error(err))
	}
}
