package store

import "sync"

// Notifier fans session ids out to subscribers. Slow subscribers miss
// notifications rather than blocking writers.
type Notifier struct {
	mu   sync.RWMutex
	subs []chan string
}

func (n *Notifier) Subscribe() <-chan string {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch := make(chan string, 64)
	n.subs = append(n.subs, ch)
	return ch
}

func (n *Notifier) Publish(sessionID string) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, ch := range n.subs {
		select {
		case ch <- sessionID:
		default:
		}
	}
}
