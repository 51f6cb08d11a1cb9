package graphstore

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/evannetwork/graphstore/pkg/envelope"
	"github.com/evannetwork/graphstore/pkg/graph"
)

// Config configures a Store instance. The zero value is usable:
// defaults are applied by New, and all defaults live on the instance,
// never in package globals.
type Config struct {
	// DefaultCryptoInfo seals link boundaries that do not pin their
	// own context. Defaults to unencrypted storage.
	DefaultCryptoInfo envelope.CryptoInfo

	// ResolveDepth bounds deep resolution when the caller passes a
	// non-positive depth.
	ResolveDepth int

	// FetchTimeout bounds every single content store call.
	FetchTimeout time.Duration

	// MaxConcurrentFetches bounds outstanding content store calls.
	MaxConcurrentFetches int64

	// Logger is an optional structured logger. If nil, a default
	// logrus logger is used.
	Logger *logrus.Logger
}

const DefaultResolveDepth = 10

func (c *Config) applyDefaults() {
	if c.DefaultCryptoInfo.Algorithm == "" {
		c.DefaultCryptoInfo.Algorithm = envelope.AlgoUnencrypted
	}
	if c.ResolveDepth <= 0 {
		c.ResolveDepth = DefaultResolveDepth
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = graph.DefaultFetchTimeout
	}
	if c.MaxConcurrentFetches <= 0 {
		c.MaxConcurrentFetches = graph.DefaultMaxConcurrentFetches
	}
	if c.Logger == nil {
		c.Logger = logrus.New()
	}
}
