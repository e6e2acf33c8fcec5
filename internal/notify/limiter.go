package notify

import (
	"context"
	"log"
	"sync"
)

// Limiter wraps a Notifier and enforces an upper bound on notices per
// thread: one warning is posted when the bound is reached, and further
// notices are silently dropped. Attachments are not counted so artifact
// delivery still goes through at session end.
type Limiter struct {
	Notifier

	max int

	mu     sync.Mutex
	counts map[ThreadRef]int
	warned map[ThreadRef]bool
}

func NewLimiter(inner Notifier, maxPerThread int) *Limiter {
	return &Limiter{
		Notifier: inner,
		max:      maxPerThread,
		counts:   map[ThreadRef]int{},
		warned:   map[ThreadRef]bool{},
	}
}

func (l *Limiter) Post(ctx context.Context, thread ThreadRef, n Notice) (MessageRef, error) {
	l.mu.Lock()
	if l.max > 0 && l.counts[thread] >= l.max {
		warn := !l.warned[thread]
		l.warned[thread] = true
		l.mu.Unlock()
		if warn {
			_, err := l.Notifier.Post(ctx, thread, Notice{
				Title: "Message Limit Reached",
				Body:  "This thread has reached its update limit. No more updates will be posted.",
				Color: ColorOrange,
			})
			if err != nil {
				log.Printf("post limit warning: %v", err)
			}
		}
		return "", nil
	}
	l.counts[thread]++
	l.mu.Unlock()
	return l.Notifier.Post(ctx, thread, n)
}

// Forget drops the counters for a thread, typically at session teardown.
func (l *Limiter) Forget(thread ThreadRef) {
	l.mu.Lock()
	delete(l.counts, thread)
	delete(l.warned, thread)
	l.mu.Unlock()
}
