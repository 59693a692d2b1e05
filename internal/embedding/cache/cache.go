// Package cache memoizes query embeddings in process or in Redis.
package cache

import (
	"container/list"
	"context"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vkk1710/RAG-With-Citations/internal/embedding"
	"github.com/vkk1710/RAG-With-Citations/internal/metrics"
)

// Store defines cache operations
type Store interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, v []float32, ttl time.Duration) error
}

// LocalLRU is a simple in-process LRU with TTL
type LocalLRU struct {
	mu   sync.Mutex
	cap  int
	list *list.List               // front = most recent
	m    map[string]*list.Element // key -> element
	now  func() time.Time
}

type lruEntry struct {
	key string
	vec []float32
	exp time.Time
}

func NewLocalLRU(capacity int) *LocalLRU {
	if capacity <= 0 {
		capacity = 1024
	}
	return &LocalLRU{cap: capacity, list: list.New(), m: make(map[string]*list.Element, capacity), now: time.Now}
}

func (l *LocalLRU) Get(_ context.Context, key string) ([]float32, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	el, ok := l.m[key]
	if !ok {
		return nil, false
	}
	ent := el.Value.(lruEntry)
	if ent.exp.After(l.now()) {
		l.list.MoveToFront(el)
		return ent.vec, true
	}
	l.list.Remove(el)
	delete(l.m, key)
	return nil, false
}

func (l *LocalLRU) Set(_ context.Context, key string, v []float32, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	ent := lruEntry{key: key, vec: v, exp: l.now().Add(ttl)}
	if el, ok := l.m[key]; ok {
		el.Value = ent
		l.list.MoveToFront(el)
		return nil
	}
	l.m[key] = l.list.PushFront(ent)
	if l.list.Len() > l.cap {
		if lru := l.list.Back(); lru != nil {
			delete(l.m, lru.Value.(lruEntry).key)
			l.list.Remove(lru)
		}
	}
	return nil
}

// Len reports the number of live and expired entries held.
func (l *LocalLRU) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.list.Len()
}

// RedisCache stores vectors as little-endian float32 bytes.
type RedisCache struct {
	cli *redis.Client
}

// NewRedisCache connects and pings once.
func NewRedisCache(ctx context.Context, addr string) (*RedisCache, error) {
	rc := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &RedisCache{cli: rc}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]float32, bool) {
	b, err := r.cli.Get(ctx, key).Bytes()
	if err != nil || len(b)%4 != 0 {
		return nil, false
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, true
}

func (r *RedisCache) Set(ctx context.Context, key string, v []float32, ttl time.Duration) error {
	b := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	if err := r.cli.Set(ctx, key, b, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Close closes the Redis connection pool.
func (r *RedisCache) Close() error { return r.cli.Close() }

// MakeKey derives the cache key for a model and text.
func MakeKey(model, text string) string {
	h := md5.Sum([]byte(model + "|" + text))
	return "emb:" + hex.EncodeToString(h[:])
}

// Embedder caches query embeddings of the wrapped embedder. Passage
// embeddings pass through since each is computed once per ingest.
type Embedder struct {
	embedding.Embedder
	store Store
	ttl   time.Duration
	log   *zap.Logger
	fit   atomic.Value // corpus fingerprint of the last Prepare
}

// Wrap decorates e with store.
func Wrap(e embedding.Embedder, store Store, ttl time.Duration, log *zap.Logger) *Embedder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Embedder{Embedder: e, store: store, ttl: ttl, log: log}
}

// Prepare refits the wrapped embedder. Vocabulary based models change
// their vector space on every fit, so keys are scoped to the corpus.
func (c *Embedder) Prepare(ctx context.Context, corpus []string) error {
	if err := c.Embedder.Prepare(ctx, corpus); err != nil {
		return err
	}
	h := md5.New()
	for _, text := range corpus {
		h.Write([]byte(text))
		h.Write([]byte{0})
	}
	c.fit.Store(hex.EncodeToString(h.Sum(nil))[:12])
	return nil
}

// EmbedQuery returns a cached query vector or computes and stores it.
func (c *Embedder) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	fit, _ := c.fit.Load().(string)
	key := MakeKey(fmt.Sprintf("%s/%d/%s", c.Name(), c.Dimension(), fit), text)
	if v, ok := c.store.Get(ctx, key); ok {
		metrics.EmbeddingCacheLookups.WithLabelValues("hit").Inc()
		return embedding.ToFloat64(v), nil
	}
	metrics.EmbeddingCacheLookups.WithLabelValues("miss").Inc()
	v, err := embedding.Query(ctx, c.Embedder, text)
	if err != nil {
		return nil, err
	}
	// A failed write only costs the next lookup.
	if err := c.store.Set(ctx, key, embedding.ToFloat32(v), c.ttl); err != nil {
		c.log.Debug("query embedding not cached", zap.String("key", key), zap.Error(err))
		return v, nil
	}
	c.log.Debug("query embedding cached", zap.String("key", key))
	return v, nil
}
