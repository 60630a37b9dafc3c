package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"dictakey/internal/domain"
	"dictakey/internal/logger"
	"dictakey/internal/ports"
)

// DefaultKeepWarm is how long an unreferenced local model stays loaded.
const DefaultKeepWarm = 2 * time.Minute

// ModelCache holds loaded local models across sessions. A model is loaded on
// first Acquire and unloaded once it has been unreferenced for the keep-warm period.
type ModelCache struct {
	loader   ports.ModelLoader
	keepWarm time.Duration
	log      *slog.Logger

	mu      sync.Mutex
	entries map[string]*modelEntry
	// Removed entries whose unload has not finished yet, by key.
	unloading map[string]*modelEntry
}

type modelEntry struct {
	key    string
	model  domain.ModelRef
	refs   int
	ready  chan struct{}
	err    error
	unload *time.Timer
	gen    uint64
	// Closed once the loader has been told to unload this entry.
	unloaded chan struct{}
}

// ModelLease is one reference to a cached model.
type ModelLease struct {
	cache *ModelCache
	entry *modelEntry
	once  sync.Once
}

func NewModelCache(loader ports.ModelLoader, keepWarm time.Duration, log *slog.Logger) *ModelCache {
	if keepWarm < 0 {
		keepWarm = 0
	}
	return &ModelCache{
		loader:   loader,
		keepWarm: keepWarm,
		log:      logger.OrDefault(log).With("component", "models"),
		entries:  make(map[string]*modelEntry),

		unloading: make(map[string]*modelEntry),
	}
}

func modelKey(model domain.ModelRef) string {
	return model.Name + "\x00" + model.Path
}

// Acquire takes a reference and starts loading in the background if needed.
// It never blocks on the load; call Wait on the lease for that.
func (c *ModelCache) Acquire(ctx context.Context, model domain.ModelRef) *ModelLease {
	key := modelKey(model)

	c.mu.Lock()
	entry := c.entries[key]
	if entry == nil {
		entry = &modelEntry{key: key, model: model, ready: make(chan struct{}), unloaded: make(chan struct{})}
		c.entries[key] = entry
		go c.load(context.WithoutCancel(ctx), entry, c.unloading[key])
	}
	entry.refs++
	if entry.unload != nil {
		entry.unload.Stop()
		entry.unload = nil
		entry.gen++
	}
	c.mu.Unlock()

	return &ModelLease{cache: c, entry: entry}
}

// load waits for prev, the same model's pending unload, so the loader never
// sees a stale Unload land after a fresh Load.
func (c *ModelCache) load(ctx context.Context, entry *modelEntry, prev *modelEntry) {
	if prev != nil {
		<-prev.unloaded
	}

	var err error
	if c.loader != nil {
		started := time.Now()
		err = c.loader.Load(ctx, entry.model)
		if err != nil {
			c.log.Warn("model load failed", "model", entry.model.Name, "error", err)
		} else {
			c.log.Info("model loaded", "model", entry.model.Name, "took", time.Since(started))
		}
	}

	c.mu.Lock()
	entry.err = err
	if err != nil && c.entries[entry.key] == entry {
		// Let the next Acquire try again.
		delete(c.entries, entry.key)
	}
	c.mu.Unlock()
	close(entry.ready)
}

// Wait blocks until the model is loaded or ctx ends.
func (l *ModelLease) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	select {
	case <-l.entry.ready:
		return l.entry.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release drops the reference. Extra calls are ignored.
func (l *ModelLease) Release() {
	if l == nil {
		return
	}
	l.once.Do(func() {
		l.cache.release(l.entry)
	})
}

func (c *ModelCache) release(entry *modelEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry.refs--
	if entry.refs > 0 || c.entries[entry.key] != entry {
		return
	}
	if c.keepWarm == 0 {
		c.retire(entry)
		go c.unload(entry)
		return
	}

	entry.gen++
	gen := entry.gen
	entry.unload = time.AfterFunc(c.keepWarm, func() {
		c.expire(entry, gen)
	})
}

func (c *ModelCache) expire(entry *modelEntry, gen uint64) {
	c.mu.Lock()
	if entry.refs > 0 || entry.gen != gen || c.entries[entry.key] != entry {
		c.mu.Unlock()
		return
	}
	c.retire(entry)
	entry.unload = nil
	c.mu.Unlock()

	c.unload(entry)
}

// retire removes entry from the cache ahead of its unload. Callers hold c.mu.
func (c *ModelCache) retire(entry *modelEntry) {
	delete(c.entries, entry.key)
	c.unloading[entry.key] = entry
}

func (c *ModelCache) unload(entry *modelEntry) {
	defer func() {
		c.mu.Lock()
		if c.unloading[entry.key] == entry {
			delete(c.unloading, entry.key)
		}
		c.mu.Unlock()
		close(entry.unloaded)
	}()

	<-entry.ready
	if entry.err != nil || c.loader == nil {
		return
	}
	if err := c.loader.Unload(entry.model); err != nil {
		c.log.Warn("model unload failed", "model", entry.model.Name, "error", err)
		return
	}
	c.log.Info("model unloaded", "model", entry.model.Name)
}

// Loaded reports whether model is currently held, loaded or loading.
func (c *ModelCache) Loaded(model domain.ModelRef) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[modelKey(model)]
	return ok
}

// Close unloads every model regardless of references.
func (c *ModelCache) Close() {
	c.mu.Lock()
	entries := make([]*modelEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		if entry.unload != nil {
			entry.unload.Stop()
			entry.unload = nil
		}
		entries = append(entries, entry)
		c.retire(entry)
	}
	c.mu.Unlock()

	for _, entry := range entries {
		c.unload(entry)
	}
}
