package archive

import "sync"

// lockTable hands out one mutex per key so read-modify-write sequences on the
// same document (or section directory) serialize without a global lock.
// Cross-process writers are still unsynchronized; the filesystem layout
// tolerates that as a soft-limit overshoot, not corruption of prior entries.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for key and returns its unlock func.
func (t *lockTable) lock(key string) func() {
	t.mu.Lock()
	m, ok := t.locks[key]
	if !ok {
		m = &sync.Mutex{}
		t.locks[key] = m
	}
	t.mu.Unlock()

	m.Lock()
	return m.Unlock
}
