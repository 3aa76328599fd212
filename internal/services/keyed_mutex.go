package services

import "sync"

// keyedMutex serializes work per string key. Withdrawals use it keyed by
// organization address so two withdrawals for the same organization can never
// interleave their balance read and transfer, while withdrawals for different
// organizations proceed in parallel.
//
// Entries are created on first use and never reclaimed. The key space is the
// set of organization addresses, which is small and bounded.
type keyedMutex struct {
	locks sync.Map // string -> *sync.Mutex
}

// Lock acquires the mutex for key, creating it on first use, and returns the
// matching unlock function.
func (m *keyedMutex) Lock(key string) func() {
	v, _ := m.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
