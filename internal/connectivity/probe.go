// Package connectivity provides the reachability probe that gates
// network-dependent queue categories.
package connectivity

import (
	"log/slog"
	"net"
	"time"
)

// Constants for the default probe target. A TCP handshake to a public DNS
// resolver is cheap and does not depend on any application endpoint being up.
const (
	DefaultProbeAddr    = "8.8.8.8:53"
	DefaultProbeTimeout = 2 * time.Second
)

// Prober reports whether the network is currently reachable.
type Prober interface {
	Online() bool
}

// Opts holds configuration options for the TCP probe.
type Opts struct {
	Addr    string
	Timeout time.Duration
}

// Option defines a configuration option for the TCP probe.
type Option func(*Opts)

// WithAddr sets the probe target address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithTimeout bounds how long a single probe may block.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// TCPProbe checks reachability by attempting a TCP handshake.
type TCPProbe struct {
	addr    string
	timeout time.Duration
}

// NewTCPProbe creates a probe with the given options.
func NewTCPProbe(opts ...Option) *TCPProbe {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultProbeAddr
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultProbeTimeout
	}
	return &TCPProbe{addr: cfg.Addr, timeout: cfg.Timeout}
}

// Online attempts one TCP handshake to the probe target.
func (p *TCPProbe) Online() bool {
	conn, err := net.DialTimeout("tcp", p.addr, p.timeout)
	if err != nil {
		slog.Debug("TCPProbe.Online: unreachable", "addr", p.addr, "error", err)
		return false
	}
	conn.Close()
	return true
}
