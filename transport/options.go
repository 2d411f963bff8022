package transport

import (
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"
)

type Options struct {
	// Host of the MRCP server
	Host string

	// Port of the MRCP server
	Port int

	// LocalAddr binds the client end of the connection. When empty an
	// ephemeral port is used.
	LocalAddr string

	// Reuseport controls setting SO_REUSEPORT on LocalAddr, so several
	// connections can share a negotiated client port.
	Reuseport bool

	DialTimeout time.Duration

	// Trace will log every outbound request. This is only useful in local debugging
	Trace bool

	// MaxContentLength bounds the content of inbound messages. Zero uses
	// protocol.DefaultMaxContentLength.
	MaxContentLength int

	Log *zap.Logger
}

// Addr returns the server address in host:port form.
func (o Options) Addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}
