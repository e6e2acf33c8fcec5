package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/reagent-systems/Simple-Agent-Discord-Bot/internal/notify"
)

// FakeNotifier records every notifier call for assertions.
type FakeNotifier struct {
	mu       sync.Mutex
	Threads  []string
	Notices  []notify.Notice
	Attached [][]notify.Attachment
	Texts    []string
	Deleted  []notify.MessageRef
	Reacted  []string

	PostErr   error
	AttachErr error

	nextMsg int
}

func NewFakeNotifier() *FakeNotifier {
	return &FakeNotifier{}
}

func (f *FakeNotifier) CreateThread(_ context.Context, _, name, _ string) (notify.ThreadRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Threads = append(f.Threads, name)
	return notify.ThreadRef(fmt.Sprintf("thread-%d", len(f.Threads))), nil
}

func (f *FakeNotifier) Post(_ context.Context, _ notify.ThreadRef, n notify.Notice) (notify.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PostErr != nil {
		return "", f.PostErr
	}
	f.Notices = append(f.Notices, n)
	f.nextMsg++
	return notify.MessageRef(fmt.Sprintf("msg-%d", f.nextMsg)), nil
}

func (f *FakeNotifier) Edit(_ context.Context, _ notify.ThreadRef, _ notify.MessageRef, _ notify.Notice) error {
	return nil
}

func (f *FakeNotifier) Attach(_ context.Context, _ notify.ThreadRef, text string, files []notify.Attachment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AttachErr != nil {
		return f.AttachErr
	}
	f.Texts = append(f.Texts, text)
	f.Attached = append(f.Attached, files)
	return nil
}

func (f *FakeNotifier) React(_ context.Context, _ notify.ThreadRef, _ notify.MessageRef, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reacted = append(f.Reacted, emoji)
	return nil
}

func (f *FakeNotifier) Delete(_ context.Context, _ notify.ThreadRef, msg notify.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deleted = append(f.Deleted, msg)
	return nil
}

func (f *FakeNotifier) NoticeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Notices)
}

func (f *FakeNotifier) NoticeTitles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.Notices))
	for _, n := range f.Notices {
		out = append(out, n.Title)
	}
	return out
}

func (f *FakeNotifier) LastNotice() notify.Notice {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Notices) == 0 {
		return notify.Notice{}
	}
	return f.Notices[len(f.Notices)-1]
}

func (f *FakeNotifier) DeletedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Deleted)
}

func (f *FakeNotifier) ReactedWith(emoji string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.Reacted {
		if e == emoji {
			return true
		}
	}
	return false
}

func (f *FakeNotifier) AttachCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Attached)
}

// FakeWaiter feeds scripted messages to WaitForMessage callers. Every
// active waiter sees every delivered message, like a real gateway stream;
// each waiter applies its own filter.
type FakeWaiter struct {
	mu   sync.Mutex
	subs map[int]chan notify.Message
	next int
}

func NewFakeWaiter() *FakeWaiter {
	return &FakeWaiter{subs: map[int]chan notify.Message{}}
}

// Deliver injects a message as if a human posted it in the thread.
func (w *FakeWaiter) Deliver(msg notify.Message) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ch := range w.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

// SubscriberCount reports how many WaitForMessage calls are blocked; tests
// poll it before delivering so no message is lost to a race.
func (w *FakeWaiter) SubscriberCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.subs)
}

func (w *FakeWaiter) WaitForMessage(ctx context.Context, _ notify.ThreadRef, match func(notify.Message) bool) (notify.Message, error) {
	ch := make(chan notify.Message, 16)
	w.mu.Lock()
	id := w.next
	w.next++
	w.subs[id] = ch
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.subs, id)
		w.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return notify.Message{}, ctx.Err()
		case msg := <-ch:
			if match == nil || match(msg) {
				return msg, nil
			}
		}
	}
}
