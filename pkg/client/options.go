package client

import (
	"net/http"
	"time"
)

const (
	// DefaultRequestTimeout bounds SendRequest waits when the caller's
	// context carries no earlier deadline.
	DefaultRequestTimeout = 20 * time.Second

	// DefaultConnectTimeout bounds each dial attempt.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultWriteTimeout bounds each frame write.
	DefaultWriteTimeout = 30 * time.Second

	// maxBackoff caps the reconnect delay schedule.
	maxBackoff = 60 * time.Second
)

type options struct {
	requestTimeout time.Duration
	connectTimeout time.Duration
	writeTimeout   time.Duration

	autoReconnect bool
	maxRetries    int

	headers http.Header

	kcpKey          string
	kcpDataShards   int
	kcpParityShards int

	onConnect    func()
	onDisconnect func()
}

func defaultOptions() options {
	return options{
		requestTimeout: DefaultRequestTimeout,
		connectTimeout: DefaultConnectTimeout,
		writeTimeout:   DefaultWriteTimeout,
		headers:        make(http.Header),
	}
}

// Option configures a Client at construction time.
type Option func(*options)

// WithAutoReconnect enables the reconnect driver: when the receive loop
// exits abnormally the client redials with exponential backoff
// (1s, 2s, 4s, ... capped at 60s). maxRetries 0 retries forever.
func WithAutoReconnect(maxRetries int) Option {
	return func(o *options) {
		o.autoReconnect = true
		o.maxRetries = maxRetries
	}
}

// WithRequestTimeout overrides the default 20s SendRequest timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.requestTimeout = d
		}
	}
}

// WithConnectTimeout overrides the default 10s dial timeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connectTimeout = d
		}
	}
}

// WithWriteTimeout overrides the default 30s per-frame write deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}

// WithHeader adds an HTTP header to the WebSocket upgrade request. Ignored
// by the tcp and kcp transports, which carry no upgrade.
func WithHeader(key, value string) Option {
	return func(o *options) {
		o.headers.Add(key, value)
	}
}

// WithToken sends token as an Authorization bearer header on the WebSocket
// upgrade, where the server verifies it when authentication is enabled.
func WithToken(token string) Option {
	return func(o *options) {
		o.headers.Set("Authorization", "Bearer "+token)
	}
}

// WithKCPKey enables AES packet encryption on the kcp transport. Must
// match the server's key.
func WithKCPKey(key string) Option {
	return func(o *options) {
		o.kcpKey = key
	}
}

// WithKCPShards enables forward error correction on the kcp transport.
// Must match the server's shard counts.
func WithKCPShards(dataShards, parityShards int) Option {
	return func(o *options) {
		o.kcpDataShards = dataShards
		o.kcpParityShards = parityShards
	}
}

// OnConnect registers fn to run after every successful connect, initial
// and reconnect alike.
func OnConnect(fn func()) Option {
	return func(o *options) {
		o.onConnect = fn
	}
}

// OnDisconnect registers fn to run after every connection teardown,
// whether remote, network, or local Close.
func OnDisconnect(fn func()) Option {
	return func(o *options) {
		o.onDisconnect = fn
	}
}
