package eventbus

import "sync"

// routeLocks hands out one mutex per event name. Entries are dropped once
// no caller holds or waits for them.
type routeLocks struct {
	mu    sync.Mutex
	locks map[string]*routeLock
}

type routeLock struct {
	sync.Mutex
	refs int
}

func newRouteLocks() *routeLocks {
	return &routeLocks{locks: make(map[string]*routeLock)}
}

func (r *routeLocks) lock(name string) (unlock func()) {
	r.mu.Lock()
	l, ok := r.locks[name]
	if !ok {
		l = &routeLock{}
		r.locks[name] = l
	}
	l.refs++
	r.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, name)
		}
		r.mu.Unlock()
	}
}

func (r *routeLocks) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
