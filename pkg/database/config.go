package database

import "time"

// ClientOption configures Client.
type ClientOption func(*ClientConfig)

// ClientConfig holds database configuration.
type ClientConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	DialTimeout     time.Duration
	Ping            bool
}

// WithURL sets the connection URL. The scheme picks the driver:
// clickhouse://, clickhouse+http://, postgres://, postgresql:// or mysql://.
func WithURL(url string) ClientOption {
	return func(c *ClientConfig) {
		c.URL = url
	}
}

// WithMaxConnections sets max open and idle connections.
func WithMaxConnections(maxOpen, maxIdle int) ClientOption {
	return func(c *ClientConfig) {
		c.MaxOpenConns = maxOpen
		c.MaxIdleConns = maxIdle
	}
}

// WithConnMaxLifetime sets how long a pooled connection may be reused.
func WithConnMaxLifetime(d time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.ConnMaxLifetime = d
	}
}

// WithDialTimeout bounds the startup ping.
func WithDialTimeout(d time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.DialTimeout = d
	}
}

// WithPing toggles the connectivity check in NewClient.
func WithPing(ping bool) ClientOption {
	return func(c *ClientConfig) {
		c.Ping = ping
	}
}
