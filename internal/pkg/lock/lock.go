// Package lock provides per-child locking for balance and unlock
// operations. The child is the engine's unit of serialization: ledger
// applies and unlock inserts are check-then-act sequences that must not
// interleave for the same child, while different children proceed in
// parallel.
package lock

import "sync"

// childMutex wraps a mutex so instances can be pooled.
type childMutex struct {
	mu sync.Mutex
}

// ChildLock provides per-child mutual exclusion keyed by child ID.
type ChildLock struct {
	locks sync.Map // map[string]*childMutex
	pool  sync.Pool
}

// NewChildLock creates a new ChildLock instance.
func NewChildLock() *ChildLock {
	return &ChildLock{
		pool: sync.Pool{
			New: func() any {
				return &childMutex{}
			},
		},
	}
}

// getLock retrieves or creates the mutex for a child.
func (cl *ChildLock) getLock(childID string) *childMutex {
	if v, ok := cl.locks.Load(childID); ok {
		return v.(*childMutex)
	}

	newLock := cl.pool.Get().(*childMutex)
	actual, loaded := cl.locks.LoadOrStore(childID, newLock)
	if loaded {
		// Another goroutine created the lock first, return ours to the pool.
		cl.pool.Put(newLock)
	}
	return actual.(*childMutex)
}

// Lock acquires the lock for a child. Call before any check-then-act
// mutation of that child's state.
func (cl *ChildLock) Lock(childID string) {
	cl.getLock(childID).mu.Lock()
}

// Unlock releases the lock for a child.
func (cl *ChildLock) Unlock(childID string) {
	if v, ok := cl.locks.Load(childID); ok {
		v.(*childMutex).mu.Unlock()
	}
}

// TryLock attempts to acquire the lock without blocking.
func (cl *ChildLock) TryLock(childID string) bool {
	return cl.getLock(childID).mu.TryLock()
}

// WithLock executes fn while holding the child's lock.
func (cl *ChildLock) WithLock(childID string, fn func() error) error {
	cl.Lock(childID)
	defer cl.Unlock(childID)
	return fn()
}
