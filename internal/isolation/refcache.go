package isolation

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// References supplies the bytes of reference artifacts by path. A Host
// clears it whenever it resets its context.
type References interface {
	Get(ctx context.Context, path string) ([]byte, error)
	Clear()
}

// RefCache is the default References: each path is read from disk at most
// once between clears, even under concurrent demand.
type RefCache struct {
	mu    sync.Mutex
	data  map[string][]byte
	epoch uint64
	group singleflight.Group
	reads atomic.Int64
}

// NewRefCache returns an empty cache.
func NewRefCache() *RefCache {
	return &RefCache{data: make(map[string][]byte)}
}

// Get returns the contents of path.
func (c *RefCache) Get(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	if data, ok := c.data[path]; ok {
		c.mu.Unlock()
		return data, nil
	}
	epoch := c.epoch
	c.mu.Unlock()

	v, err, _ := c.group.Do(path, func() (any, error) {
		c.mu.Lock()
		if data, ok := c.data[path]; ok {
			c.mu.Unlock()
			return data, nil
		}
		c.mu.Unlock()

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("isolation: read reference: %w", err)
		}
		c.reads.Add(1)

		c.mu.Lock()
		// A read racing a Clear must not repopulate the new epoch.
		if c.epoch == epoch {
			c.data[path] = data
		}
		c.mu.Unlock()
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Clear drops every cached reference.
func (c *RefCache) Clear() {
	c.mu.Lock()
	c.data = make(map[string][]byte)
	c.epoch++
	c.mu.Unlock()
}

// diskReads returns how many times a reference was read from disk.
func (c *RefCache) diskReads() int64 {
	return c.reads.Load()
}
