package xmppsession

import (
	"crypto/tls"
	"time"
)

const (
	DefaultPort               = 5222
	DefaultConnectTimeout     = 5 * time.Second
	DefaultStopTimeout        = 5 * time.Second
	DefaultNegotiationTimeout = 30 * time.Second

	service = "xmpp-client"
)

type Config struct {
	Domain   string
	UserID   string
	Resource string

	// Server and Port override address discovery. A set Server skips
	// the SRV lookup.
	Server string
	Port   int
	// Protocol is the SRV protocol tried first.
	Protocol   string
	DisableSRV bool

	// TLSConfig is used by StartTLS. ServerName defaults to Domain.
	TLSConfig *tls.Config

	ConnectTimeout time.Duration
	StopTimeout    time.Duration
	// NegotiationTimeout bounds the time from connect to resource
	// binding. Negative disables it.
	NegotiationTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	if c.NegotiationTimeout == 0 {
		c.NegotiationTimeout = DefaultNegotiationTimeout
	}
	return c
}

// srvProtocols lists the SRV protocols in lookup order.
func (c Config) srvProtocols() []string {
	var out []string
	seen := make(map[string]bool)
	for _, p := range []string{c.Protocol, "tcp", "udp", "tls", "dtls"} {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
