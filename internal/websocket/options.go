package websocket

import (
	"log/slog"
	"net/http"
	"time"
)

// DefaultPingInterval is the default interval between keepalive pings.
const DefaultPingInterval = 15 * time.Second

// DefaultPongTimeout is the maximum time to wait for a pong reply.
const DefaultPongTimeout = 10 * time.Second

// DefaultDialTimeout bounds the upstream handshake.
const DefaultDialTimeout = 10 * time.Second

// DefaultReadLimit is the largest message forwarded in either direction.
const DefaultReadLimit = 32 << 20

// Options configures keepalive and forwarding behaviour.
type Options struct {
	PingInterval time.Duration
	PongTimeout  time.Duration
	DialTimeout  time.Duration
	ReadLimit    int64
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// Option is a functional option for configuring WebSocket forwarding.
type Option func(*Options)

// WithPingInterval sets the interval between keepalive pings.
func WithPingInterval(d time.Duration) Option {
	return func(o *Options) { o.PingInterval = d }
}

// WithPongTimeout sets the maximum time to wait for a pong reply.
func WithPongTimeout(d time.Duration) Option {
	return func(o *Options) { o.PongTimeout = d }
}

// WithDialTimeout bounds the upstream handshake.
func WithDialTimeout(d time.Duration) Option {
	return func(o *Options) { o.DialTimeout = d }
}

// WithReadLimit sets the largest message accepted from either side.
func WithReadLimit(n int64) Option {
	return func(o *Options) { o.ReadLimit = n }
}

// WithHTTPClient sets the client used for the upstream handshake.
// Its Timeout must be zero.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Options) { o.HTTPClient = c }
}

// WithLogger sets the logger for forwarded connections.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

func defaultOptions() Options {
	return Options{
		PingInterval: DefaultPingInterval,
		PongTimeout:  DefaultPongTimeout,
		DialTimeout:  DefaultDialTimeout,
		ReadLimit:    DefaultReadLimit,
		HTTPClient:   http.DefaultClient,
		Logger:       slog.Default(),
	}
}

func applyOptions(opts []Option) Options {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}
	return o
}
