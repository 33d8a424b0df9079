package httpapi

import "time"

// Config defines the socket server settings.
type Config struct {
	// Addr is the listen address, e.g. 127.0.0.1:3030.
	Addr string
	// Path is the websocket endpoint.
	Path            string
	MaxMessageBytes int64
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	// SendBuffer is the number of outbound actions queued per client before
	// the client is disconnected as too slow.
	SendBuffer int
	// AllowedOrigins restricts browser-hosted clients by their Origin header.
	// Empty accepts every origin; "*" in the list does the same.
	AllowedOrigins []string
}

// ClientIDHeader carries the connection id in the upgrade response. The same
// id appears in the server logs and in /healthz.
const ClientIDHeader = "X-Mounttab-Client"

const (
	DefaultAddr            = "127.0.0.1:3030"
	DefaultPath            = "/chat"
	DefaultMaxMessageBytes = 64 << 10
	DefaultWriteTimeout    = 10 * time.Second
	DefaultPingInterval    = 30 * time.Second
	DefaultSendBuffer      = 256
)

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = DefaultSendBuffer
	}
	return c
}
