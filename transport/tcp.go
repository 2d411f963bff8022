package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/luma/mrcp/protocol"
)

// ErrClosed is returned when sending on a connection that has been closed.
var ErrClosed = errors.New("MRCP connection closed")

// Handler receives the messages addressed to one channel. It is called from
// the connection's read loop, so it must not block for long.
type Handler interface {
	HandleMessage(msg protocol.Message)
}

type HandlerFunc func(msg protocol.Message)

func (f HandlerFunc) HandleMessage(msg protocol.Message) {
	f(msg)
}

// Conn is a client connection to an MRCP server. Any number of channels can
// be multiplexed over it, each registers a Handler under its channel
// identifier.
//
// A single goroutine reads and dispatches inbound messages for the lifetime
// of the connection. Everything else is safe to call concurrently.
type Conn struct {
	conn    net.Conn
	decoder *protocol.Decoder

	writeMu sync.Mutex
	w       *bufio.Writer

	handlersMu sync.RWMutex
	handlers   map[protocol.ChannelIdentifier]Handler

	// running is cleared exactly once, either by Close or by the read loop
	// when the connection fails.
	running  atomic.Bool
	loopDone chan struct{}

	errMu sync.Mutex
	err   error

	trace bool
	log   *zap.Logger
}

// Dial connects to the MRCP server described by options and starts reading
// from it.
func Dial(ctx context.Context, options Options) (*Conn, error) {
	addr := options.Addr()

	dialer := net.Dialer{Timeout: options.DialTimeout}

	if options.LocalAddr != "" {
		laddr, err := net.ResolveTCPAddr("tcp", options.LocalAddr)
		if err != nil {
			return nil, fmt.Errorf("Failed to resolve local address %s: %w", options.LocalAddr, err)
		}
		dialer.LocalAddr = laddr

		if options.Reuseport {
			dialer.Control = reuseportControl
		}
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("Failed to connect to %s: %w", addr, err)
	}

	return NewConn(conn, options), nil
}

// NewConn wraps an established connection and starts its read loop. Only the
// Trace, MaxContentLength and Log options are used.
func NewConn(conn net.Conn, options Options) *Conn {
	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.Stringer("remote", conn.RemoteAddr()))

	decoder := protocol.NewDecoder(conn, log.Named("decoder"))
	if options.MaxContentLength > 0 {
		decoder.MaxContentLength = options.MaxContentLength
	}

	c := &Conn{
		conn:     conn,
		decoder:  decoder,
		w:        bufio.NewWriter(conn),
		handlers: make(map[protocol.ChannelIdentifier]Handler),
		loopDone: make(chan struct{}),
		trace:    options.Trace,
		log:      log,
	}

	c.running.Store(true)
	go c.readLoop()

	return c
}

// Send writes req to the server. It returns once the request has been
// flushed to the socket, I/O errors are returned as is and the connection is
// not re-established.
func (c *Conn) Send(req *protocol.Request) error {
	if !c.running.Load() {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := protocol.WriteRequest(c.w, req); err != nil {
		return fmt.Errorf("Failed to write %s %s: %w", req.Method, req.RequestID, err)
	}

	if err := c.w.Flush(); err != nil {
		c.log.Debug("Failed to flush request",
			zap.String("method", string(req.Method)),
			zap.Stringer("requestID", req.RequestID),
			zap.Error(err))
		return fmt.Errorf("Failed to send %s %s: %w", req.Method, req.RequestID, err)
	}

	if c.trace {
		c.log.Debug("Sent request",
			zap.String("method", string(req.Method)),
			zap.Stringer("requestID", req.RequestID),
			zap.Int("length", req.Length))
	}

	return nil
}

func (c *Conn) RegisterHandler(channelID protocol.ChannelIdentifier, handler Handler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()

	c.handlers[channelID] = handler
}

func (c *Conn) UnregisterHandler(channelID protocol.ChannelIdentifier) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()

	delete(c.handlers, channelID)
}

// Close stops the read loop and closes the socket. It does not wait for the
// read loop to exit, use Done for that. Close is safe to call more than once
// and from within a Handler.
func (c *Conn) Close() error {
	if !c.running.CompareAndSwap(true, false) {
		// already stopped
		return nil
	}

	c.log.Info("Closing connection")
	return c.conn.Close()
}

// Closed reports whether Close was called or the connection failed. The read
// loop may still be running, use Done to wait for it.
func (c *Conn) Closed() bool {
	return !c.running.Load()
}

// Done is closed once the read loop has exited.
func (c *Conn) Done() <-chan struct{} {
	return c.loopDone
}

// Err returns the error that stopped the connection unexpectedly. It is nil
// while the connection is running and after a deliberate Close.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()

	return c.err
}

func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *Conn) readLoop() {
	log := c.log.Named("readLoop")

	defer func() {
		close(c.loopDone)
		log.Info("Read loop exited")
	}()

	for c.running.Load() {
		msg, err := c.decoder.Decode()
		if err != nil {
			if errors.Is(err, protocol.ErrParse) || errors.Is(err, protocol.ErrIllegalValue) {
				// Only this message is lost, carry on with the next one
				log.Warn("Failed to decode server message", zap.Error(err))
				continue
			}

			if c.running.CompareAndSwap(true, false) {
				// Nobody asked us to stop, this is an unexpected one
				log.Error("Connection failed", zap.Error(err))
				c.setErr(err)

				if cerr := c.conn.Close(); cerr != nil {
					log.Debug("Failed to close failed connection", zap.Error(cerr))
				}
			}

			return
		}

		c.dispatch(log, msg)
	}
}

func (c *Conn) dispatch(log *zap.Logger, msg protocol.Message) {
	channelID, ok := msg.GetChannelID()
	if !ok {
		log.Warn("Dropping message without a Channel-Identifier",
			zap.Stringer("requestID", msg.GetRequestID()))
		return
	}

	c.handlersMu.RLock()
	handler, ok := c.handlers[channelID]
	c.handlersMu.RUnlock()

	if !ok {
		log.Warn("No handler found for channel, dropping message",
			zap.Stringer("channel", channelID),
			zap.Stringer("requestID", msg.GetRequestID()))
		return
	}

	handler.HandleMessage(msg)
}

func (c *Conn) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()

	c.err = err
}
