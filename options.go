package serendex

import (
	"time"

	"go.uber.org/zap"
)

// Option configures the Client.
type Option func(*clientConfig)

type clientConfig struct {
	addrs    []string
	password string

	embedder Embedder

	dimensions int
	cacheSize  int
	cacheTTL   time.Duration

	textWindow     int
	reindexWorkers int
	clusterWindow  int

	logger *zap.Logger
}

// WithRedis configures the client to connect to a Redis instance.
func WithRedis(addr, password string) Option {
	return func(c *clientConfig) {
		c.addrs = []string{addr}
		c.password = password
	}
}

// WithEmbedder sets the text embedding provider. Required for text
// queries and indexing; embedding-only search works without it.
func WithEmbedder(e Embedder) Option {
	return func(c *clientConfig) {
		c.embedder = e
	}
}

// WithDimensions pins the vector dimension up front. By default the
// dimension is discovered from the first stored vector.
func WithDimensions(dim int) Option {
	return func(c *clientConfig) {
		c.dimensions = dim
	}
}

// WithCache tunes the in-process record cache.
func WithCache(size int, ttl time.Duration) Option {
	return func(c *clientConfig) {
		c.cacheSize = size
		c.cacheTTL = ttl
	}
}

// WithTextWindow bounds how many recent records the lexical stage
// scores per query.
func WithTextWindow(n int) Option {
	return func(c *clientConfig) {
		c.textWindow = n
	}
}

// WithReindexWorkers bounds concurrent embedding calls during a reindex.
func WithReindexWorkers(n int) Option {
	return func(c *clientConfig) {
		c.reindexWorkers = n
	}
}

// WithClusterWindow caps how many vectors one clustering run will load.
func WithClusterWindow(n int) Option {
	return func(c *clientConfig) {
		c.clusterWindow = n
	}
}

// WithLogger enables structured logging for client operations.
// Pass nil to disable (default).
func WithLogger(l *zap.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}
