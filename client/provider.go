package client

import (
	"context"
	"strconv"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/mrcp/transport"
)

// Provider creates channels, sharing one connection between all channels to
// the same server.
type Provider struct {
	options        transport.Options
	channelOptions []ChannelOption

	mu    sync.Mutex
	conns map[string]*transport.Conn

	log *zap.Logger
}

// NewProvider returns a Provider that dials with options, Host and Port are
// supplied per channel. channelOptions are applied to every channel created.
func NewProvider(options transport.Options, channelOptions ...ChannelOption) *Provider {
	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &Provider{
		options:        options,
		channelOptions: append([]ChannelOption{WithLogger(log.Named("channel"))}, channelOptions...),
		conns:          make(map[string]*transport.Conn),
		log:            log,
	}
}

// CreateChannel returns the channel channelID on the server at host:port.
// The channel identifier comes from session negotiation, which is not this
// package's concern.
func (p *Provider) CreateChannel(ctx context.Context, channelID, host string, port int) (*Channel, error) {
	conn, err := p.connect(ctx, host, port)
	if err != nil {
		return nil, err
	}

	return NewChannel(channelID, conn, p.channelOptions...)
}

func (p *Provider) connect(ctx context.Context, host string, port int) (*transport.Conn, error) {
	options := p.options
	options.Host = host
	options.Port = port
	options.Log = p.log.Named("conn")

	addr := options.Addr()

	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.conns[addr]; ok {
		if !conn.Closed() {
			return conn, nil
		}

		// Closed, either by a channel or by the server
		delete(p.conns, addr)
	}

	p.log.Info("Connecting", zap.String("host", host), zap.String("port", strconv.Itoa(port)))

	conn, err := transport.Dial(ctx, options)
	if err != nil {
		return nil, err
	}

	p.conns[addr] = conn

	return conn, nil
}

// Close closes every connection the provider opened.
func (p *Provider) Close() (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for addr, conn := range p.conns {
		err = multierr.Append(err, conn.Close())
		delete(p.conns, addr)
	}

	return err
}
