package cache

import "time"

// RedisConfig configures RedisCache. Zero values fall back to the defaults below.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	PoolTimeout  time.Duration
	Prefix       string
}

func (c *RedisConfig) normalize() {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.MinIdleConns <= 0 {
		c.MinIdleConns = 2
	}
	if c.PoolTimeout <= 0 {
		c.PoolTimeout = 5 * time.Second
	}
	if c.Prefix == "" {
		c.Prefix = "golden-dragon"
	}
}

type memoryConfig struct {
	maxSize int
	sweep   time.Duration
}

// MemoryOption configures MemoryCache.
type MemoryOption func(*memoryConfig)

// WithMemoryMaxSize bounds the entry count; the least recently used entry is evicted.
func WithMemoryMaxSize(size int) MemoryOption {
	return func(c *memoryConfig) {
		if size > 0 {
			c.maxSize = size
		}
	}
}

// WithMemoryCleanup sets how often expired entries are swept.
func WithMemoryCleanup(interval time.Duration) MemoryOption {
	return func(c *memoryConfig) {
		if interval > 0 {
			c.sweep = interval
		}
	}
}

type layeredConfig struct {
	l1Size int
	l1TTL  time.Duration
}

// LayeredOption configures LayeredCache.
type LayeredOption func(*layeredConfig)

// WithLayeredMemorySize bounds the in-process layer.
func WithLayeredMemorySize(size int) LayeredOption {
	return func(c *layeredConfig) {
		if size > 0 {
			c.l1Size = size
		}
	}
}

// WithLayeredL1TTL bounds how long the in-process layer keeps an entry.
func WithLayeredL1TTL(ttl time.Duration) LayeredOption {
	return func(c *layeredConfig) {
		if ttl > 0 {
			c.l1TTL = ttl
		}
	}
}
