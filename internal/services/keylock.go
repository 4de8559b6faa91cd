package services

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// KeyLock serializes work per item key. Events for different items proceed
// concurrently; events for the same item queue up in arrival order.
type KeyLock struct {
	mu      sync.Mutex
	locks   map[string]chan struct{}
	waiters map[string]int
	maxWait time.Duration
}

// NewKeyLock creates a per-key lock manager
func NewKeyLock(maxWait time.Duration) *KeyLock {
	if maxWait <= 0 {
		maxWait = 2 * time.Minute
	}
	return &KeyLock{
		locks:   make(map[string]chan struct{}),
		waiters: make(map[string]int),
		maxWait: maxWait,
	}
}

func (kl *KeyLock) getOrCreate(key string) chan struct{} {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	if sem, exists := kl.locks[key]; exists {
		kl.waiters[key]++
		return sem
	}

	sem := make(chan struct{}, 1)
	kl.locks[key] = sem
	kl.waiters[key] = 1
	return sem
}

// Acquire takes the lock for a key, waiting up to the configured maximum.
// The returned release function must be called exactly once.
func (kl *KeyLock) Acquire(ctx context.Context, key string) (func(), error) {
	sem := kl.getOrCreate(key)

	waitCtx, cancel := context.WithTimeout(ctx, kl.maxWait)
	defer cancel()

	select {
	case sem <- struct{}{}:
	case <-waitCtx.Done():
		kl.done(key)
		return nil, fmt.Errorf("timeout waiting for item lock: key=%s", key)
	}

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		<-sem
		kl.done(key)
	}
	return release, nil
}

// done decrements the waiter count and drops idle lock entries
func (kl *KeyLock) done(key string) {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	kl.waiters[key]--
	if kl.waiters[key] <= 0 {
		delete(kl.locks, key)
		delete(kl.waiters, key)
	}
}

// Active returns the number of keys currently tracked
func (kl *KeyLock) Active() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.locks)
}
