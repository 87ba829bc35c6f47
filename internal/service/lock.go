package service

import (
	"context"
	"sync"
	"time"
)

// keyedLock serializes turns per session. Entries are refcounted and removed
// once nobody holds or waits on them, so idle sessions cost nothing.
type keyedLock struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	token chan struct{}
	refs  int
}

func newKeyedLock() *keyedLock {
	return &keyedLock{entries: make(map[string]*lockEntry)}
}

// acquire takes the lock for key, waiting at most wait. It returns
// ErrSessionBusy when the lock stays held.
func (k *keyedLock) acquire(ctx context.Context, key string, wait time.Duration) (func(), error) {
	e := k.ref(key)

	select {
	case e.token <- struct{}{}:
		return k.releaser(key, e), nil
	default:
	}

	if wait <= 0 {
		k.unref(key, e)
		return nil, ErrSessionBusy
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case e.token <- struct{}{}:
		return k.releaser(key, e), nil
	case <-timer.C:
		k.unref(key, e)
		return nil, ErrSessionBusy
	case <-ctx.Done():
		k.unref(key, e)
		return nil, ctx.Err()
	}
}

func (k *keyedLock) ref(key string) *lockEntry {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.entries[key]
	if !ok {
		e = &lockEntry{token: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	return e
}

func (k *keyedLock) unref(key string, e *lockEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}

func (k *keyedLock) releaser(key string, e *lockEntry) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.token
			k.unref(key, e)
		})
	}
}

func (k *keyedLock) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
