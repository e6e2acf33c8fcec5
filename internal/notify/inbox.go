package notify

import (
	"context"
	"sync"
)

// Inbox is an in-process message hub implementing MessageWaiter. Every
// waiter on a thread sees every delivered message and applies its own
// filter, so two concurrent waits on the same thread never steal from each
// other.
type Inbox struct {
	mu   sync.Mutex
	next int
	subs map[ThreadRef]map[int]chan Message
}

func NewInbox() *Inbox {
	return &Inbox{subs: map[ThreadRef]map[int]chan Message{}}
}

// Deliver fans a message out to every active waiter on the thread. A slow
// waiter's full buffer drops the message for that waiter only.
func (i *Inbox) Deliver(thread ThreadRef, msg Message) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, ch := range i.subs[thread] {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (i *Inbox) WaitForMessage(ctx context.Context, thread ThreadRef, match func(Message) bool) (Message, error) {
	ch := make(chan Message, 16)
	i.mu.Lock()
	id := i.next
	i.next++
	if i.subs[thread] == nil {
		i.subs[thread] = map[int]chan Message{}
	}
	i.subs[thread][id] = ch
	i.mu.Unlock()

	defer func() {
		i.mu.Lock()
		delete(i.subs[thread], id)
		if len(i.subs[thread]) == 0 {
			delete(i.subs, thread)
		}
		i.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return Message{}, ctx.Err()
		case msg := <-ch:
			if match == nil || match(msg) {
				return msg, nil
			}
		}
	}
}
