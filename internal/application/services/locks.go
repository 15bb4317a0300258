package services

import "sync"

// walletLocks serializes operations per wallet address. One transfer may be
// in flight per wallet at any time; everything else fails fast with
// ErrExecuting instead of queueing.
type walletLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newWalletLocks() *walletLocks {
	return &walletLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *walletLocks) lock(address string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.locks[address]
	if !ok {
		m = &sync.Mutex{}
		l.locks[address] = m
	}
	return m
}

// TryAcquire attempts to take the wallet's lock without blocking. On
// success the returned release function must be called exactly once.
func (l *walletLocks) TryAcquire(address string) (func(), bool) {
	m := l.lock(address)
	if !m.TryLock() {
		return nil, false
	}
	return m.Unlock, true
}
