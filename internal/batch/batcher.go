// Package batch accumulates bursts of per-session notifications and flushes
// them as one unit after a quiet period. A steady stream of items keeps
// postponing the flush (true debounce); session teardown discards pending
// items without emitting.
package batch

import (
	"sync"
	"time"

	"github.com/reagent-systems/Simple-Agent-Discord-Bot/internal/timers"
)

type Kind string

const (
	KindFiles Kind = "files"
	KindTools Kind = "tools"
)

// Item is one pending notification payload. Insertion order is preserved
// through the flush.
type Item struct {
	Title  string
	Detail string
}

// FlushFunc receives the accumulated items for one (session, kind). It is
// called outside the batcher's lock.
type FlushFunc func(sessionKey string, items []Item)

type pending struct {
	items []Item
	timer *timers.Timer
}

type Batcher struct {
	mu     sync.Mutex
	delays map[Kind]time.Duration
	sinks  map[Kind]FlushFunc
	state  map[string]*pending // key: sessionKey + "/" + kind
}

func New() *Batcher {
	return &Batcher{
		delays: map[Kind]time.Duration{},
		sinks:  map[Kind]FlushFunc{},
		state:  map[string]*pending{},
	}
}

// Configure registers the debounce delay and flush sink for a kind.
func (b *Batcher) Configure(kind Kind, delay time.Duration, sink FlushFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delays[kind] = delay
	b.sinks[kind] = sink
}

func stateKey(sessionKey string, kind Kind) string {
	return sessionKey + "/" + string(kind)
}

// Add appends item to the session/kind's pending list and re-arms the flush
// timer. At most one flush is scheduled per (session, kind) at a time.
func (b *Batcher) Add(sessionKey string, kind Kind, item Item) {
	b.mu.Lock()
	delay, ok := b.delays[kind]
	if !ok {
		b.mu.Unlock()
		return
	}
	key := stateKey(sessionKey, kind)
	p := b.state[key]
	if p == nil {
		p = &pending{timer: timers.New()}
		b.state[key] = p
	}
	p.items = append(p.items, item)
	p.timer.Arm(delay, func() {
		b.flush(sessionKey, kind)
	})
	b.mu.Unlock()
}

// flush takes the pending items under the lock and emits them outside it.
// If Cancel won the race the state is gone and nothing is emitted.
func (b *Batcher) flush(sessionKey string, kind Kind) {
	key := stateKey(sessionKey, kind)
	b.mu.Lock()
	p := b.state[key]
	if p == nil || len(p.items) == 0 {
		delete(b.state, key)
		b.mu.Unlock()
		return
	}
	items := p.items
	sink := b.sinks[kind]
	delete(b.state, key)
	b.mu.Unlock()

	if sink != nil {
		sink(sessionKey, items)
	}
}

// Cancel discards any pending items for the session/kind without emitting.
// Used only during session teardown.
func (b *Batcher) Cancel(sessionKey string, kind Kind) {
	key := stateKey(sessionKey, kind)
	b.mu.Lock()
	p := b.state[key]
	if p != nil {
		p.timer.Cancel()
		delete(b.state, key)
	}
	b.mu.Unlock()
}

// CancelAll discards pending items of every kind for the session.
func (b *Batcher) CancelAll(sessionKey string) {
	b.mu.Lock()
	kinds := make([]Kind, 0, len(b.delays))
	for kind := range b.delays {
		kinds = append(kinds, kind)
	}
	b.mu.Unlock()
	for _, kind := range kinds {
		b.Cancel(sessionKey, kind)
	}
}

// PendingCount reports the number of unflushed items for the session/kind.
func (b *Batcher) PendingCount(sessionKey string, kind Kind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.state[stateKey(sessionKey, kind)]
	if p == nil {
		return 0
	}
	return len(p.items)
}

// Truncate caps a flushed list at limit items, returning the shown prefix and
// how many were cut off.
func Truncate(items []Item, limit int) ([]Item, int) {
	if limit <= 0 || len(items) <= limit {
		return items, 0
	}
	return items[:limit], len(items) - limit
}
