package store

import (
	"context"
	"sync"
)

// Hub fans change notifications out to subscribers. Stores embed one
// and fire it after every successful write; the callback receives the
// full document set, matching the subscribe contract of the remote
// store this boundary models.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]Callback
}

// Subscribe registers cb and returns its unsubscribe function.
func (h *Hub) Subscribe(cb Callback) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = make(map[int]Callback)
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = cb

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
}

// Notify reloads the document set from the loader and delivers it to
// every subscriber. Delivery is synchronous; ordering across
// subscribers is not guaranteed.
func (h *Hub) Notify(ctx context.Context, loader ProjectLoader) {
	h.mu.Lock()
	cbs := make([]Callback, 0, len(h.subs))
	for _, cb := range h.subs {
		cbs = append(cbs, cb)
	}
	h.mu.Unlock()

	if len(cbs) == 0 {
		return
	}
	docs, err := loader.LoadAll(ctx)
	for _, cb := range cbs {
		cb(docs, err)
	}
}
