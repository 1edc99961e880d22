package services

import "sync"

// keyedLock serializes work per string key without a global lock, so
// transitions on independent calls or identities proceed concurrently.
type keyedLock struct {
	locks sync.Map // key -> *sync.Mutex
}

func (k *keyedLock) lock(key string) func() {
	v, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
