package env

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// profile is the TOML form of Config. Keys left out of the file keep the
// value from the environment.
type profile struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	ChannelID       string `toml:"channel_id"`
	ResponseTimeout string `toml:"response_timeout"`
	DialTimeout     string `toml:"dial_timeout"`
	LocalAddr       string `toml:"local_addr"`
	Reuseport       bool   `toml:"reuseport"`
	JournalMax      int    `toml:"journal_max_exchanges"`
	Trace           bool   `toml:"trace"`
	LogLevel        string `toml:"log_level"`
}

// LoadProfile overrides c with the keys set in the TOML file at path.
func (c *Config) LoadProfile(path string) error {
	var raw profile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load profile: unknown key %s", undecoded[0])
	}

	if meta.IsDefined("host") {
		c.Host = strings.TrimSpace(raw.Host)
	}

	if meta.IsDefined("port") {
		c.Port = raw.Port
	}

	if meta.IsDefined("channel_id") {
		c.ChannelID = strings.TrimSpace(raw.ChannelID)
	}

	if meta.IsDefined("response_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ResponseTimeout))
		if err != nil {
			return fmt.Errorf("parse response_timeout: %w", err)
		}
		c.ResponseTimeout = d
	}

	if meta.IsDefined("dial_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.DialTimeout))
		if err != nil {
			return fmt.Errorf("parse dial_timeout: %w", err)
		}
		c.DialTimeout = d
	}

	if meta.IsDefined("local_addr") {
		c.LocalAddr = strings.TrimSpace(raw.LocalAddr)
	}

	if meta.IsDefined("reuseport") {
		c.Reuseport = raw.Reuseport
	}

	if meta.IsDefined("journal_max_exchanges") {
		c.JournalMaxExchanges = raw.JournalMax
	}

	if meta.IsDefined("trace") {
		c.Trace = raw.Trace
	}

	if meta.IsDefined("log_level") {
		c.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	return nil
}
