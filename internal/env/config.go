package env

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	"github.com/luma/mrcp/transport"
)

type Config struct {
	// Host and Port of the MRCP server, normally taken from the SDP answer
	// of the SIP session that allocated the channel
	Host string `env:"MRCP_HOST,default=127.0.0.1"`
	Port int    `env:"MRCP_PORT,default=1544"`

	// ChannelID is the Channel-Identifier negotiated for the session
	ChannelID string `env:"MRCP_CHANNEL_ID"`

	ResponseTimeout time.Duration `env:"MRCP_RESPONSE_TIMEOUT,default=30s"`
	DialTimeout     time.Duration `env:"MRCP_DIAL_TIMEOUT,default=5s"`

	LocalAddr string `env:"MRCP_LOCAL_ADDR"`
	Reuseport bool   `env:"MRCP_REUSEPORT"`

	// JournalMaxExchanges bounds the requests kept in the journal
	JournalMaxExchanges int `env:"MRCP_JOURNAL_MAX_EXCHANGES,default=1000"`

	Trace     bool   `env:"MRCP_TRACE"`
	LogLevel  string `env:"MRCP_LOG_LEVEL,default=info"`
	DebugHTTP bool   `env:"MRCP_DEBUG_HTTP"`
}

// LoadConfig reads .env.local, if there is one, and then the environment.
func LoadConfig(ctx context.Context) (*Config, error) {
	config := Config{}

	if err := godotenv.Load(".env.local"); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("Failed to load .env.local: %w", err)
		}
	}

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, err
	}

	return &config, nil
}

// TransportOptions returns the options to dial the configured server with.
func (c *Config) TransportOptions() transport.Options {
	return transport.Options{
		Host:        c.Host,
		Port:        c.Port,
		LocalAddr:   c.LocalAddr,
		Reuseport:   c.Reuseport,
		DialTimeout: c.DialTimeout,
		Trace:       c.Trace,
	}
}
