// Package notify wakes goroutines waiting on a chunk id when another
// goroutine changes that chunk's state.
package notify

import "sync"

// Hub is a set of per-key broadcast channels. A waiter takes the channel
// for a key with Wait and blocks on it; Broadcast closes the channel,
// releasing every waiter, and the next Wait gets a fresh one. A key is
// dropped once its last waiter releases it.
type Hub struct {
	mu    sync.Mutex
	chans map[string]*waiters
}

type waiters struct {
	ch   chan struct{}
	refs int
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{chans: make(map[string]*waiters)}
}

// Wait returns a channel that is closed on the next Broadcast for key,
// and a release func the caller must call when it stops waiting.
// Callers must obtain the channel before re-reading state to avoid a
// missed wakeup.
func (h *Hub) Wait(key string) (<-chan struct{}, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	w, ok := h.chans[key]
	if !ok {
		w = &waiters{ch: make(chan struct{})}
		h.chans[key] = w
	}
	w.refs++

	var once sync.Once
	return w.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if h.chans[key] != w {
				return
			}
			w.refs--
			if w.refs == 0 {
				delete(h.chans, key)
			}
		})
	}
}

// Broadcast releases all current waiters on key.
func (h *Hub) Broadcast(key string) {
	h.mu.Lock()
	w, ok := h.chans[key]
	delete(h.chans, key)
	h.mu.Unlock()
	if ok {
		close(w.ch)
	}
}

// Len reports how many keys currently have waiters.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.chans)
}
