// Package connectivity tracks whether the remote spreadsheet service is
// reachable. The dispatcher consults it before attempting delivery, and the
// scheduler subscribes to offline-to-online transitions to drain the queue.
package connectivity

import (
	"sync"
)

// Probe reports the current connectivity state and notifies subscribers when
// it flips. Subscribe returns an unsubscribe func; callbacks run on the
// goroutine that caused the transition and must not block.
type Probe interface {
	Online() bool
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// Manual is a Probe driven entirely by SetOnline calls. The dashboard uses
// it to mirror the browser's own connectivity signal; tests use it to force
// offline behavior.
type Manual struct {
	mu     sync.Mutex
	online bool
	nextID int64
	subs   map[int64]func(bool)
}

// NewManual returns a Manual probe starting in the given state.
func NewManual(online bool) *Manual {
	return &Manual{online: online, subs: map[int64]func(bool){}}
}

func (m *Manual) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline updates the state and notifies subscribers on a change.
func (m *Manual) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	fns := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(online)
	}
}

func (m *Manual) Subscribe(fn func(bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}
