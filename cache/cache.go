// Package cache provides small in-process keyed containers: a generic
// key/value cache used to track in-flight pipeline jobs, and a keyed mutex
// used to serialize metadata read-modify-write cycles per video id.
package cache

import (
	"sync"

	"github.com/streamforge/vodpipe/log"
)

type Cache[T interface{}] struct {
	cache map[string]T
	mutex sync.Mutex
}

func New[T interface{}]() *Cache[T] {
	return &Cache[T]{
		cache: make(map[string]T),
	}
}

func (c *Cache[T]) Remove(requestID, key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.cache, key)
	log.Log(requestID, "deleting from cache", "key", key)
}

func (c *Cache[T]) Get(key string) T {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	info, ok := c.cache[key]
	if ok {
		return info
	}
	var zero T
	return zero
}

func (c *Cache[T]) Store(key string, value T) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.cache[key] = value
}

func (c *Cache[T]) UnittestIntrospection() *map[string]T {
	return &c.cache
}

// Len reports the number of entries currently stored, used by the
// orchestrator (C8) to publish its in-flight-jobs gauge.
func (c *Cache[T]) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.cache)
}

// Locker is a map of per-key mutexes, guarded by one coarse lock for map
// access. It serializes the metadata read-modify-write cycle for a single
// video id while leaving unrelated ids free to proceed concurrently, per
// spec.md §5's "per-id mutex keyed by video id" recommendation.
type Locker struct {
	mu     sync.Mutex
	perKey map[string]*sync.Mutex
}

func NewLocker() *Locker {
	return &Locker{perKey: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key, creating it on first use, and returns an
// unlock function for the caller to defer.
func (l *Locker) Lock(key string) func() {
	l.mu.Lock()
	m, ok := l.perKey[key]
	if !ok {
		m = &sync.Mutex{}
		l.perKey[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
