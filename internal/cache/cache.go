// Package cache is the content-addressed extraction cache. A hit
// short-circuits re-processing of previously seen document content; the
// single-flight guarantee collapses concurrent extraction of the same
// content hash into one upstream provider call chain.
package cache

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/constants"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/entity"
)

// Config sizes the cache. TTL is the primary eviction policy; MaxEntries, if
// positive, bounds memory with least-recently-used eviction regardless of TTL.
type Config struct {
	TTL        time.Duration
	MaxEntries int
}

type entry struct {
	hash      string
	result    entity.ExtractionResult
	createdAt time.Time
	ttl       time.Duration
}

func (e *entry) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.createdAt) > e.ttl
}

// Cache is a process-wide shared service; all methods are safe for
// concurrent use. Get/Put for the same key are linearizable under mu.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used
	cfg     Config
	group   singleflight.Group
	log     *slog.Logger

	now func() time.Time // test seam
}

func New(cfg Config, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		cfg:     cfg,
		log:     logger,
		now:     time.Now,
	}
}

// Get returns the cached accepted result for a content hash. An entry whose
// TTL has elapsed is treated as a miss and evicted.
func (c *Cache) Get(contentHash string) (entity.ExtractionResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[contentHash]
	if !ok {
		return entity.ExtractionResult{}, false
	}
	e := el.Value.(*entry)
	if e.expired(c.now()) {
		c.removeLocked(el)
		c.log.Debug("cache.expired", "content_hash", contentHash, "age", c.now().Sub(e.createdAt))
		return entity.ExtractionResult{}, false
	}
	c.order.MoveToFront(el)
	return e.result, true
}

// Put stores an accepted result, overwriting any prior entry for the same
// hash. Results that did not pass the validation gate are refused: the cache
// must never serve a low-confidence or rejected extraction.
func (c *Cache) Put(contentHash string, result entity.ExtractionResult) {
	if result.Verdict != constants.VerdictAccept {
		c.log.Warn("cache.put.refused", "content_hash", contentHash, "verdict", result.Verdict)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[contentHash]; ok {
		c.removeLocked(el)
	}
	el := c.order.PushFront(&entry{
		hash:      contentHash,
		result:    result,
		createdAt: c.now(),
		ttl:       c.cfg.TTL,
	})
	c.entries[contentHash] = el

	for c.cfg.MaxEntries > 0 && c.order.Len() > c.cfg.MaxEntries {
		oldest := c.order.Back()
		c.log.Debug("cache.evict.lru", "content_hash", oldest.Value.(*entry).hash)
		c.removeLocked(oldest)
	}
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache) removeLocked(el *list.Element) {
	e := el.Value.(*entry)
	delete(c.entries, e.hash)
	c.order.Remove(el)
}

// ComputeFn produces a result for a cache miss. It reports whether the
// result is cacheable (passed the validation gate as ACCEPT).
type ComputeFn func(ctx context.Context) (entity.ExtractionResult, bool, error)

// Fetch resolves a content hash through the cache. On a miss, concurrent
// callers for the same hash collapse into a single execution of compute; the
// others wait for (or discover) its result without paying provider cost.
// The returned bool reports whether the result came from the cache or from a
// coalesced in-flight computation rather than this caller's own compute.
//
// Cancellation of the waiting caller's ctx abandons the wait but does not
// cancel the in-flight computation for the caller that owns it.
func (c *Cache) Fetch(ctx context.Context, contentHash string, compute ComputeFn) (entity.ExtractionResult, bool, error) {
	if res, ok := c.Get(contentHash); ok {
		c.log.Info("cache.hit", "content_hash", contentHash, "provider", res.Provider)
		return res, true, nil
	}

	ch := c.group.DoChan(contentHash, func() (any, error) {
		// Re-check under the flight: another flight may have just filled it.
		if res, ok := c.Get(contentHash); ok {
			return res, nil
		}
		res, cacheable, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if cacheable {
			c.Put(contentHash, res)
		}
		return res, nil
	})

	select {
	case <-ctx.Done():
		return entity.ExtractionResult{}, false, ctx.Err()
	case v := <-ch:
		if v.Err != nil {
			return entity.ExtractionResult{}, false, v.Err
		}
		return v.Val.(entity.ExtractionResult), v.Shared, nil
	}
}
