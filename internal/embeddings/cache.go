package embeddings

import (
	"container/list"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/hopline-ai/hopline/internal/circuitbreaker"
	"github.com/hopline-ai/hopline/internal/metrics"
)

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Size   int    `json:"size"`
}

// LRUCache is a bounded in-process cache keyed on exact input text.
// Front of the list is most recently used; eviction removes the back.
type LRUCache struct {
	mu     sync.Mutex
	cap    int
	list   *list.List
	m      map[string]*list.Element
	hits   uint64
	misses uint64
}

type lruEntry struct {
	key string
	vec []float32
}

// NewLRUCache creates a cache holding at most capacity vectors.
func NewLRUCache(capacity int) *LRUCache {
	if capacity <= 0 {
		capacity = 100
	}
	return &LRUCache{
		cap:  capacity,
		list: list.New(),
		m:    make(map[string]*list.Element, capacity),
	}
}

// Get returns the cached vector for key, promoting it to most recent.
func (c *LRUCache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.m[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.list.MoveToFront(el)
	c.hits++
	return el.Value.(*lruEntry).vec, true
}

// Put inserts key as most recent, evicting the least recent entry if full.
func (c *LRUCache) Put(key string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.m[key]; ok {
		el.Value.(*lruEntry).vec = vec
		c.list.MoveToFront(el)
		return
	}

	if c.list.Len() >= c.cap {
		back := c.list.Back()
		if back != nil {
			c.list.Remove(back)
			delete(c.m, back.Value.(*lruEntry).key)
		}
	}
	c.m[key] = c.list.PushFront(&lruEntry{key: key, vec: vec})
}

// Stats returns a snapshot of hit/miss counters and current size.
func (c *LRUCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Hits: c.hits, Misses: c.misses, Size: c.list.Len()}
}

// RedisCache is the optional second cache tier shared across replicas.
// All failures degrade to cache misses.
type RedisCache struct {
	rw  *circuitbreaker.RedisWrapper
	ttl time.Duration
}

// NewRedisCache wraps a breaker-guarded Redis client as an embedding cache.
func NewRedisCache(rw *circuitbreaker.RedisWrapper, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisCache{rw: rw, ttl: ttl}
}

// MakeKey derives a stable cache key from model and input text.
func MakeKey(model, text string) string {
	sum := md5.Sum([]byte(model + "\x00" + text))
	return "emb:" + hex.EncodeToString(sum[:])
}

// Get fetches a vector; any error is a miss.
func (r *RedisCache) Get(ctx context.Context, key string) ([]float32, bool) {
	raw, err := r.rw.Get(ctx, key).Result()
	if err != nil {
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		return nil, false
	}
	metrics.EmbeddingCacheHits.WithLabelValues("redis").Inc()
	return vec, true
}

// Set stores a vector best-effort.
func (r *RedisCache) Set(ctx context.Context, key string, vec []float32) {
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	r.rw.Set(ctx, key, raw, r.ttl)
}
