package ground

import (
	"cmp"
	"slices"
	"sync"

	"github.com/roach88/ground/internal/model"
)

// keyedLocks serializes writers per key. Unrelated keys never contend.
//
// Entries are reference counted and dropped when the last holder leaves,
// so the map only holds keys with writers in flight.
type keyedLocks[K cmp.Ordered] struct {
	mu    sync.Mutex
	locks map[K]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocks[K cmp.Ordered]() *keyedLocks[K] {
	return &keyedLocks[K]{locks: make(map[K]*keyedLock)}
}

// newItemLocks locks per item id.
func newItemLocks() *keyedLocks[model.ID] { return newKeyedLocks[model.ID]() }

// newSourceKeyLocks locks per (item type, source key).
func newSourceKeyLocks() *keyedLocks[string] { return newKeyedLocks[string]() }

// sourceKeyLock is the lock key of a source key within its item type.
func sourceKeyLock(t model.ItemType, sourceKey string) string {
	return string(t) + "\x00" + sourceKey
}

// execute runs fn while holding the locks of every key. Keys are locked
// in ascending order so two multi-key writers cannot deadlock.
func (l *keyedLocks[K]) execute(fn func() error, keys ...K) error {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	for _, k := range keys {
		l.acquire(k)
	}
	defer func() {
		for i := len(keys) - 1; i >= 0; i-- {
			l.release(keys[i])
		}
	}()
	return fn()
}

func (l *keyedLocks[K]) acquire(k K) {
	l.mu.Lock()
	lk, ok := l.locks[k]
	if !ok {
		lk = &keyedLock{}
		l.locks[k] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.mu.Lock()
}

func (l *keyedLocks[K]) release(k K) {
	l.mu.Lock()
	lk := l.locks[k]
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, k)
	}
	l.mu.Unlock()

	lk.mu.Unlock()
}

// held returns how many keys currently have a lock entry.
func (l *keyedLocks[K]) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
