// Package cache provides the LRU cache behind lazily computed analyses,
// with msgpack persistence and content-derived keys.
package cache

import (
	"container/list"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/minio/highwayhash"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrKeyNotFound is returned when a key is not found in the cache.
var ErrKeyNotFound = errors.New("key not found")

// hashKey is the fixed highwayhash key. Keys only need to be stable, not
// secret.
var hashKey = []byte("c-testforge/analysis-cache/v1..!")

// ContentKey derives a cache key from parts. Parts are length-prefixed so
// ("ab", "c") and ("a", "bc") hash differently.
func ContentKey(parts ...string) string {
	h, err := highwayhash.New64(hashKey)
	if err != nil {
		// hashKey is 32 bytes, the only failure New64 reports.
		panic(err)
	}
	for _, p := range parts {
		fmt.Fprintf(h, "%d:", len(p))
		_, _ = io.WriteString(h, p)
	}
	var sum [8]byte
	return hex.EncodeToString(h.Sum(sum[:0]))
}

// Cache is the interface analyzers cache their results through.
type Cache interface {
	// Get retrieves a value by key.
	Get(key string) (interface{}, bool)
	// Set stores a value, evicting the least recently used entry when full.
	Set(key string, value interface{})
	Delete(key string)
	Clear()
	Len() int
}

// Entry is a cache entry with its bookkeeping.
type Entry struct {
	Key        string      `msgpack:"key"`
	Value      interface{} `msgpack:"value"`
	AccessedAt time.Time   `msgpack:"accessed_at"`
	CreatedAt  time.Time   `msgpack:"created_at"`
}

// Options configures an LRUCache.
type Options struct {
	// MaxSize is the maximum number of entries. 0 means unlimited.
	MaxSize int
	// OnEvict is called when an entry is evicted or deleted.
	OnEvict func(key string, value interface{})
}

// Stats are the hit and miss counters of a cache.
type Stats struct {
	Length    int   `json:"length"`
	HitCount  int64 `json:"hit_count"`
	MissCount int64 `json:"miss_count"`
}

// HitRate returns hits over lookups, or 0 before the first lookup.
func (s Stats) HitRate() float64 {
	if lookups := s.HitCount + s.MissCount; lookups > 0 {
		return float64(s.HitCount) / float64(lookups)
	}
	return 0
}

// LRUCache is an in-memory LRU cache safe for concurrent use. The recency
// list holds *Entry values, most recently used at the front.
type LRUCache struct {
	mu     sync.Mutex
	index  map[string]*list.Element
	order  *list.List
	opts   Options
	hits   int64
	misses int64
}

// New creates an LRU cache.
func New(opts Options) *LRUCache {
	return &LRUCache{
		index: make(map[string]*list.Element),
		order: list.New(),
		opts:  opts,
	}
}

// Get retrieves a value and marks it most recently used.
func (c *LRUCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.order.MoveToFront(el)
	e := el.Value.(*Entry)
	e.AccessedAt = time.Now()
	return e.Value, true
}

// Set stores a value.
func (c *LRUCache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if el, ok := c.index[key]; ok {
		e := el.Value.(*Entry)
		e.Value, e.AccessedAt = value, now
		c.order.MoveToFront(el)
		return
	}
	c.index[key] = c.order.PushFront(&Entry{Key: key, Value: value, AccessedAt: now, CreatedAt: now})
	c.trim()
}

// Delete removes a key.
func (c *LRUCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		c.drop(el)
	}
}

// trim evicts from the back until the size limit holds.
func (c *LRUCache) trim() {
	for c.opts.MaxSize > 0 && c.order.Len() > c.opts.MaxSize {
		c.drop(c.order.Back())
	}
}

func (c *LRUCache) drop(el *list.Element) {
	e := c.order.Remove(el).(*Entry)
	delete(c.index, e.Key)
	if c.opts.OnEvict != nil {
		c.opts.OnEvict(e.Key, e.Value)
	}
}

// Clear removes all entries without calling OnEvict. Counters are kept.
func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = make(map[string]*list.Element)
	c.order.Init()
}

// Len returns the number of entries.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns the current counters.
func (c *LRUCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Length: c.order.Len(), HitCount: c.hits, MissCount: c.misses}
}

// Save writes the entries, most recently used first, as msgpack.
func (c *LRUCache) Save(w io.Writer) error {
	c.mu.Lock()
	entries := make([]Entry, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		entries = append(entries, *el.Value.(*Entry))
	}
	c.mu.Unlock()

	return msgpack.NewEncoder(w).Encode(entries)
}

// Load replaces the contents with entries written by Save. Decoded values
// are generic msgpack values; callers re-decode them into their own types.
func (c *LRUCache) Load(r io.Reader) error {
	var entries []Entry
	if err := msgpack.NewDecoder(r).Decode(&entries); err != nil {
		return fmt.Errorf("decoding cache: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = make(map[string]*list.Element, len(entries))
	c.order.Init()
	for i := range entries {
		c.index[entries[i].Key] = c.order.PushBack(&entries[i])
	}
	c.trim()
	return nil
}

// PersistToFile saves c to path.
func PersistToFile(c *LRUCache, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating cache file: %w", err)
	}
	if err := c.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadFromFile loads c from path. A missing file leaves c unchanged.
func LoadFromFile(c *LRUCache, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening cache file: %w", err)
	}
	defer f.Close()
	return c.Load(f)
}

var _ Cache = (*LRUCache)(nil)
