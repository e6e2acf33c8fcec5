// Package notify defines the chat-platform surface the relay consumes.
// Implementations adapt a concrete platform (Discord, Slack, a test fake);
// the rest of the system only sees these types.
package notify

import "context"

type Color string

const (
	ColorGreen  Color = "green"
	ColorBlue   Color = "blue"
	ColorRed    Color = "red"
	ColorOrange Color = "orange"
	ColorPurple Color = "purple"
	ColorGrey   Color = "grey"
)

type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Notice is a structured update posted to a session thread.
type Notice struct {
	Title  string
	Body   string
	Color  Color
	Fields []Field
}

// Attachment is a staged local file to upload.
type Attachment struct {
	Name string
	Path string
}

// ThreadRef and MessageRef are opaque platform handles.
type ThreadRef string

type MessageRef string

// Message is an inbound human message observed in a thread.
type Message struct {
	ID      MessageRef
	Author  string
	Content string
}

type Notifier interface {
	// CreateThread opens a threaded conversation under the parent channel,
	// scoped to the initiating user.
	CreateThread(ctx context.Context, parentChannel, name, initiator string) (ThreadRef, error)

	Post(ctx context.Context, thread ThreadRef, n Notice) (MessageRef, error)
	Edit(ctx context.Context, thread ThreadRef, msg MessageRef, n Notice) error

	// Attach uploads one or more files in a single message.
	Attach(ctx context.Context, thread ThreadRef, text string, files []Attachment) error

	React(ctx context.Context, thread ThreadRef, msg MessageRef, emoji string) error
	Delete(ctx context.Context, thread ThreadRef, msg MessageRef) error
}

// MessageWaiter blocks until a message matching the filter appears in the
// thread, or ctx is done.
type MessageWaiter interface {
	WaitForMessage(ctx context.Context, thread ThreadRef, match func(Message) bool) (Message, error)
}
