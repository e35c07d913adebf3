package upload

import (
	"sync"
)

// Hub fans upload progress out to local observers, keyed by job id. Progress
// is advisory: the job record stays the source of truth, and a slow subscriber
// loses updates rather than stalling the upload.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan int]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan int]struct{})}
}

// Subscribe registers an observer for one job id. The returned cancel func
// must be called when the observer goes away.
func (h *Hub) Subscribe(jobID string) (<-chan int, func()) {
	ch := make(chan int, 16)

	h.mu.Lock()
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[chan int]struct{})
	}
	h.subs[jobID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[jobID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, jobID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish sends a percentage to all subscribers of the job id. Never blocks.
func (h *Hub) Publish(jobID string, percent int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[jobID] {
		select {
		case ch <- percent:
		default:
		}
	}
}
