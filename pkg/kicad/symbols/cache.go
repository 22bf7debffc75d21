package symbols

import (
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Cache memoizes definitions from a slower resolver. It is safe for
// concurrent use; concurrent misses for the same lib_id share one fill.
// Misses are cached as well.
type Cache struct {
	resolver Resolver
	logger   *zap.Logger

	mu      sync.RWMutex
	defs    map[string]*Definition
	missing map[string]bool
	group   singleflight.Group
}

// CacheOption configures a Cache
type CacheOption func(*Cache)

// WithCacheLogger sets the logger used for fill and miss events
func WithCacheLogger(logger *zap.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = logger
	}
}

// NewCache wraps resolver with a shared cache
func NewCache(resolver Resolver, opts ...CacheOption) *Cache {
	c := &Cache{
		resolver: resolver,
		logger:   zap.NewNop(),
		defs:     make(map[string]*Definition),
		missing:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve implements Resolver
func (c *Cache) Resolve(libID string) (*Definition, error) {
	c.mu.RLock()
	def, ok := c.defs[libID]
	missing := c.missing[libID]
	c.mu.RUnlock()

	if ok {
		return def, nil
	}
	if missing {
		return nil, &NotFoundError{LibID: libID}
	}

	v, err, shared := c.group.Do(libID, func() (any, error) {
		// another fill may have finished between the read above and Do
		c.mu.RLock()
		def, ok := c.defs[libID]
		c.mu.RUnlock()
		if ok {
			return def, nil
		}

		def, err := c.resolver.Resolve(libID)
		c.mu.Lock()
		defer c.mu.Unlock()
		switch {
		case err == nil:
			c.defs[libID] = def
			c.logger.Debug("symbol cached", zap.String("lib_id", libID), zap.Int("pins", len(def.Pins)))
		case errors.Is(err, ErrNotFound):
			c.missing[libID] = true
			c.logger.Debug("symbol not found", zap.String("lib_id", libID))
		}
		return def, err
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("symbol fill shared", zap.String("lib_id", libID))
	}
	return v.(*Definition), nil
}

// Put stores def directly, replacing any cached entry for its lib_id
func (c *Cache) Put(def *Definition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defs[def.LibID] = def
	delete(c.missing, def.LibID)
}

// Len returns the number of cached definitions
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.defs)
}

// Purge drops every cached entry
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defs = make(map[string]*Definition)
	c.missing = make(map[string]bool)
}
