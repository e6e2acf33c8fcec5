package notify

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// LogNotifier renders notices to the process log. It is the default
// Notifier until a chat platform adapter is plugged in, and keeps the whole
// pipeline runnable locally.
type LogNotifier struct {
	mu         sync.Mutex
	threadSeq  int
	messageSeq int
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) CreateThread(_ context.Context, parentChannel, name, initiator string) (ThreadRef, error) {
	n.mu.Lock()
	n.threadSeq++
	ref := ThreadRef(fmt.Sprintf("%s/thread-%d", parentChannel, n.threadSeq))
	n.mu.Unlock()
	log.Printf("notify: thread %s created (%s, by %s)", ref, name, initiator)
	return ref, nil
}

func (n *LogNotifier) Post(_ context.Context, thread ThreadRef, notice Notice) (MessageRef, error) {
	n.mu.Lock()
	n.messageSeq++
	ref := MessageRef(fmt.Sprintf("msg-%d", n.messageSeq))
	n.mu.Unlock()
	log.Printf("notify: [%s] %s (%s): %s", thread, notice.Title, notice.Color, notice.Body)
	for _, f := range notice.Fields {
		log.Printf("notify: [%s]   %s: %s", thread, f.Name, f.Value)
	}
	return ref, nil
}

func (n *LogNotifier) Edit(_ context.Context, thread ThreadRef, msg MessageRef, notice Notice) error {
	log.Printf("notify: [%s] edit %s: %s: %s", thread, msg, notice.Title, notice.Body)
	return nil
}

func (n *LogNotifier) Attach(_ context.Context, thread ThreadRef, text string, files []Attachment) error {
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	log.Printf("notify: [%s] attach %v: %s", thread, names, text)
	return nil
}

func (n *LogNotifier) React(_ context.Context, thread ThreadRef, msg MessageRef, emoji string) error {
	log.Printf("notify: [%s] react %s to %s", thread, emoji, msg)
	return nil
}

func (n *LogNotifier) Delete(_ context.Context, thread ThreadRef, msg MessageRef) error {
	log.Printf("notify: [%s] delete %s", thread, msg)
	return nil
}
