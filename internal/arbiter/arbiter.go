// Package arbiter decides who may answer when a running task pauses for
// human input. It races a listener for the authorized author against a
// short, continuously re-armed listener for everyone else, so intruding
// messages are rejected without ever extending the authorized deadline.
package arbiter

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/reagent-systems/Simple-Agent-Discord-Bot/internal/notify"
)

// ErrTimeout reports that the authorized author never responded within the
// long timeout. The caller is expected to tear the session down.
var ErrTimeout = errors.New("input wait timed out")

// InputSender is the upstream command surface the arbiter drives.
type InputSender interface {
	SendUserInput(ctx context.Context, input string) error
	StopAgent(ctx context.Context) error
}

type Arbiter struct {
	Notifier notify.Notifier
	Waiter   notify.MessageWaiter
	Sender   InputSender

	LongTimeout  time.Duration // authorized-author deadline, default 600s
	RearmTimeout time.Duration // other-author listen window, default 1s
	NoticeTTL    time.Duration // transient rejection notice lifetime, default 10s
}

type waitResult struct {
	msg notify.Message
	err error
}

// Await blocks until the authorized author replies, the long timeout
// elapses, or ctx is cancelled. The long timeout is a hard deadline:
// other-author traffic never postpones it. On timeout a stop command is
// issued upstream and ErrTimeout is returned.
func (a *Arbiter) Await(ctx context.Context, thread notify.ThreadRef, authorizedUser string) error {
	long := a.LongTimeout
	if long <= 0 {
		long = 600 * time.Second
	}
	rearm := a.RearmTimeout
	if rearm <= 0 {
		rearm = time.Second
	}
	ttl := a.NoticeTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}

	a.post(ctx, thread, notify.Notice{
		Title: "Waiting for Your Input",
		Body:  fmt.Sprintf("The agent needs input from %s to continue. Reply in this thread.", authorizedUser),
		Color: notify.ColorOrange,
	})

	outerCtx, cancel := context.WithTimeout(ctx, long)
	defer cancel()

	authCh := make(chan waitResult, 1)
	go func() {
		msg, err := a.Waiter.WaitForMessage(outerCtx, thread, func(m notify.Message) bool {
			return m.Author == authorizedUser
		})
		authCh <- waitResult{msg: msg, err: err}
	}()

	for {
		shortCtx, shortCancel := context.WithTimeout(outerCtx, rearm)
		otherCh := make(chan waitResult, 1)
		go func() {
			msg, err := a.Waiter.WaitForMessage(shortCtx, thread, func(m notify.Message) bool {
				return m.Author != authorizedUser
			})
			otherCh <- waitResult{msg: msg, err: err}
		}()

		select {
		case res := <-authCh:
			shortCancel()
			if res.err != nil {
				return a.expire(ctx, thread)
			}
			return a.forward(ctx, thread, res.msg)

		case res := <-otherCh:
			shortCancel()
			if res.err == nil {
				a.reject(ctx, thread, res.msg, ttl)
			}
			// Listener expiry with no message is the normal re-arm path,
			// distinct from the hard deadline.
			if outerCtx.Err() != nil {
				<-authCh
				return a.expire(ctx, thread)
			}
		}
	}
}

func (a *Arbiter) forward(ctx context.Context, thread notify.ThreadRef, msg notify.Message) error {
	if err := a.Notifier.React(ctx, thread, msg.ID, "✅"); err != nil {
		log.Printf("react to input message: %v", err)
	}
	if err := a.Sender.SendUserInput(ctx, msg.Content); err != nil {
		a.post(ctx, thread, notify.Notice{
			Title: "Input Delivery Failed",
			Body:  "Your input could not be forwarded to the agent.",
			Color: notify.ColorRed,
		})
		return fmt.Errorf("forward input: %w", err)
	}
	a.post(ctx, thread, notify.Notice{
		Title: "Input Received",
		Body:  "Your input was sent to the agent. It will continue shortly.",
		Color: notify.ColorGreen,
	})
	return nil
}

// reject marks an other-author message as refused and posts a transient
// notice. The notice is deleted after ttl on a best-effort basis; a failed
// or raced deletion is swallowed.
func (a *Arbiter) reject(ctx context.Context, thread notify.ThreadRef, msg notify.Message, ttl time.Duration) {
	if err := a.Notifier.React(ctx, thread, msg.ID, "❌"); err != nil {
		log.Printf("react to unauthorized message: %v", err)
	}
	ref, err := a.Notifier.Post(ctx, thread, notify.Notice{
		Title: "Not Your Session",
		Body:  "Only the user who started this agent session can provide input.",
		Color: notify.ColorRed,
	})
	if err != nil {
		log.Printf("post unauthorized notice: %v", err)
		return
	}
	go func() {
		time.Sleep(ttl)
		delCtx, delCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer delCancel()
		_ = a.Notifier.Delete(delCtx, thread, ref)
	}()
}

func (a *Arbiter) expire(ctx context.Context, thread notify.ThreadRef) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	a.post(ctx, thread, notify.Notice{
		Title: "Input Timeout",
		Body:  "No input was received in time. Stopping the agent.",
		Color: notify.ColorRed,
	})
	if err := a.Sender.StopAgent(ctx); err != nil {
		log.Printf("stop agent after input timeout: %v", err)
	}
	return ErrTimeout
}

func (a *Arbiter) post(ctx context.Context, thread notify.ThreadRef, n notify.Notice) {
	if _, err := a.Notifier.Post(ctx, thread, n); err != nil {
		log.Printf("post %q notice: %v", n.Title, err)
	}
}
