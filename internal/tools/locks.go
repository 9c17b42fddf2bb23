package tools

import (
	"sync"
)

// KeyedMutex is a non-blocking lock per key, e.g. one delivery per campaign.
type KeyedMutex[K comparable] struct {
	mu   sync.Mutex
	held map[K]struct{}
}

func NewKeyedMutex[K comparable]() *KeyedMutex[K] {
	return &KeyedMutex[K]{
		held: make(map[K]struct{}),
	}
}

// TryLock takes the lock for key unless someone already holds it.
func (km *KeyedMutex[K]) TryLock(key K) bool {
	km.mu.Lock()
	defer km.mu.Unlock()
	if _, ok := km.held[key]; ok {
		return false
	}
	km.held[key] = struct{}{}
	return true
}

// Unlock releases key. Unlocking a key that is not held panics.
func (km *KeyedMutex[K]) Unlock(key K) {
	km.mu.Lock()
	defer km.mu.Unlock()
	if _, ok := km.held[key]; !ok {
		panic("unlock of unlocked lock")
	}
	delete(km.held, key)
}
