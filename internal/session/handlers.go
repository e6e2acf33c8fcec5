package session

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/reagent-systems/Simple-Agent-Discord-Bot/internal/agentlink"
	"github.com/reagent-systems/Simple-Agent-Discord-Bot/internal/arbiter"
	"github.com/reagent-systems/Simple-Agent-Discord-Bot/internal/batch"
	"github.com/reagent-systems/Simple-Agent-Discord-Bot/internal/notify"
)

// route installs the event routing table for one session. Handlers run
// serially on the link's read loop; unknown events are dropped by the link
// itself.
func (d *Dispatcher) route(s *Session, link AgentLink) {
	routes := map[string]agentlink.Handler{
		agentlink.EventAgentStarted:     func(data map[string]any) { d.onAgentStarted(s, data) },
		agentlink.EventStepStart:        func(data map[string]any) { d.onStepStart(s, data) },
		agentlink.EventAssistantMessage: func(data map[string]any) { d.onAssistantMessage(s, data) },
		agentlink.EventToolCall:         func(data map[string]any) { d.onToolCall(s, data) },
		agentlink.EventToolResult:       func(data map[string]any) { d.onToolResult(s, data) },
		agentlink.EventStepSummary:      func(data map[string]any) { d.onStepSummary(s, data) },
		agentlink.EventFinalSummary:     func(data map[string]any) { d.onFinalSummary(s, data) },
		agentlink.EventFileCreated:      func(data map[string]any) { d.onFileCreated(s, data) },
		agentlink.EventDirectoryChanged: func(data map[string]any) { d.onDirectoryChanged(s, data) },
		agentlink.EventWaitingForInput:  func(data map[string]any) { d.onWaitingForInput(s, data) },
		agentlink.EventTaskCompleted:    func(data map[string]any) { d.onTaskCompleted(s, data) },
		agentlink.EventAgentFinished:    func(data map[string]any) { d.onAgentFinished(s, data) },
		agentlink.EventAgentError:       func(data map[string]any) { d.onAgentError(s, data) },
	}
	for event, h := range routes {
		link.On(event, h)
	}
}

func (d *Dispatcher) onAgentStarted(s *Session, data map[string]any) {
	s.adoptTrackingID(agentlink.SessionID(data))
	s.setStatus(StatusRunning)
	d.post(s, notify.Notice{
		Title: "Agent Started",
		Body:  agentlink.Text(data, "The agent is now working on your task.", "message"),
		Color: notify.ColorGreen,
	})
}

func (d *Dispatcher) onStepStart(s *Session, data map[string]any) {
	d.post(s, notify.Notice{
		Title: fmt.Sprintf("Step %s", agentlink.StepNumber(data)),
		Body:  agentlink.Text(data, "Working...", "description", "message"),
		Color: notify.ColorGrey,
	})
}

func (d *Dispatcher) onAssistantMessage(s *Session, data map[string]any) {
	body := agentlink.Text(data, "", "content", "message", "text")
	if body == "" {
		return
	}
	d.post(s, notify.Notice{
		Title: "Assistant",
		Body:  body,
		Color: notify.ColorBlue,
	})
}

func (d *Dispatcher) onToolCall(s *Session, data map[string]any) {
	name, desc := agentlink.ToolCall(data)
	d.batcher.Add(s.UserID, batch.KindTools, batch.Item{Title: name, Detail: desc})
}

// Successful tool results are implied by the batched tool_call notices;
// only failures are surfaced.
func (d *Dispatcher) onToolResult(s *Session, data map[string]any) {
	name, result, success := agentlink.ToolResult(data)
	if success {
		return
	}
	d.post(s, notify.Notice{
		Title: "Tool Failed",
		Body:  fmt.Sprintf("%s: %s", name, result),
		Color: notify.ColorRed,
	})
}

func (d *Dispatcher) onStepSummary(s *Session, data map[string]any) {
	body := agentlink.Text(data, "", "summary", "content", "message")
	if body == "" {
		return
	}
	d.post(s, notify.Notice{
		Title: fmt.Sprintf("Step %s Summary", agentlink.StepNumber(data)),
		Body:  body,
		Color: notify.ColorGrey,
	})
}

func (d *Dispatcher) onFinalSummary(s *Session, data map[string]any) {
	d.post(s, notify.Notice{
		Title: "Final Summary",
		Body:  agentlink.Text(data, "The agent finished its work.", "summary", "content", "message"),
		Color: notify.ColorGreen,
	})
}

func (d *Dispatcher) onFileCreated(s *Session, data map[string]any) {
	s.adoptTrackingID(agentlink.SessionID(data))
	rules := agentlink.PayloadRules{OutputDir: d.cfg.OutputDirFallback}
	ref := rules.ResolveFile(data)
	if !s.collector.Add(ref.RemotePath, ref.DisplayName) {
		return
	}
	d.batcher.Add(s.UserID, batch.KindFiles, batch.Item{Title: ref.DisplayName})
}

func (d *Dispatcher) onDirectoryChanged(s *Session, data map[string]any) {
	d.post(s, notify.Notice{
		Title: "Working Directory Changed",
		Body:  agentlink.Text(data, "?", "directory", "path", "new_directory"),
		Color: notify.ColorGrey,
	})
}

// onWaitingForInput posts the agent's question and hands the wait to the
// arbiter on its own goroutine so the read loop stays live for further
// events.
func (d *Dispatcher) onWaitingForInput(s *Session, data map[string]any) {
	s.setStatus(StatusWaitingInput)
	if q := agentlink.Text(data, "", "message", "question", "prompt"); q != "" {
		d.post(s, notify.Notice{
			Title: "Agent Question",
			Body:  q,
			Color: notify.ColorPurple,
		})
	}
	go func() {
		a := &arbiter.Arbiter{
			Notifier:    d.notifier,
			Waiter:      d.waiter,
			Sender:      s.link,
			LongTimeout: d.cfg.InputTimeout,
		}
		err := a.Await(s.ctx, s.Thread, s.UserID)
		switch {
		case err == nil:
			s.setStatus(StatusRunning)
		case errors.Is(err, arbiter.ErrTimeout):
			s.setStatus(StatusError)
			d.logEvent(s, "input_timeout", "")
			d.finalizeArtifacts(s)
			d.cleanup(s)
		default:
			// Session context cancelled; teardown is already in progress.
		}
	}()
}

func (d *Dispatcher) onTaskCompleted(s *Session, data map[string]any) {
	d.post(s, notify.Notice{
		Title: "Task Completed",
		Body:  agentlink.Text(data, "The task is complete.", "message", "summary"),
		Color: notify.ColorGreen,
	})
}

func (d *Dispatcher) onAgentFinished(s *Session, data map[string]any) {
	s.setStatus(StatusCompleted)
	d.post(s, notify.Notice{
		Title: "Agent Finished",
		Body:  agentlink.Text(data, "The agent has finished.", "message"),
		Color: notify.ColorGreen,
	})
	d.finalizeArtifacts(s)
	d.cleanup(s)
}

func (d *Dispatcher) onAgentError(s *Session, data map[string]any) {
	s.setStatus(StatusError)
	d.post(s, notify.Notice{
		Title: "Agent Error",
		Body:  agentlink.Text(data, "The agent hit an unexpected error.", "error", "message"),
		Color: notify.ColorRed,
	})
	d.finalizeArtifacts(s)
	d.cleanup(s)
}

// onDisconnect fires only on an unexpected link loss; a deliberate Close
// during teardown suppresses it.
func (d *Dispatcher) onDisconnect(s *Session, err error) {
	if err != nil {
		log.Printf("agent link lost for %s: %v", s.UserID, err)
	}
	s.setStatus(StatusError)
	d.post(s, notify.Notice{
		Title: "Connection Lost",
		Body:  "The connection to the agent server was lost. This session has ended.",
		Color: notify.ColorRed,
	})
	d.cleanup(s)
}

func (d *Dispatcher) flushTools(sessionKey string, items []batch.Item) {
	s := d.lookup(sessionKey)
	if s == nil {
		return
	}
	if len(items) == 1 {
		d.post(s, notify.Notice{
			Title: fmt.Sprintf("Tool: %s", items[0].Title),
			Body:  items[0].Detail,
			Color: notify.ColorBlue,
		})
		return
	}
	shown, more := batch.Truncate(items, toolFlushLimit)
	var b strings.Builder
	for _, item := range shown {
		fmt.Fprintf(&b, "• **%s** — %s\n", item.Title, item.Detail)
	}
	if more > 0 {
		fmt.Fprintf(&b, "...and %d more\n", more)
	}
	d.post(s, notify.Notice{
		Title: fmt.Sprintf("Tools Executed (%d)", len(items)),
		Body:  b.String(),
		Color: notify.ColorBlue,
	})
}

func (d *Dispatcher) flushFiles(sessionKey string, items []batch.Item) {
	s := d.lookup(sessionKey)
	if s == nil {
		return
	}
	if len(items) == 1 {
		d.post(s, notify.Notice{
			Title: "New File",
			Body:  items[0].Title,
			Color: notify.ColorGreen,
		})
		return
	}
	shown, more := batch.Truncate(items, fileFlushLimit)
	var b strings.Builder
	for _, item := range shown {
		fmt.Fprintf(&b, "• %s\n", item.Title)
	}
	if more > 0 {
		fmt.Fprintf(&b, "...and %d more\n", more)
	}
	d.post(s, notify.Notice{
		Title: fmt.Sprintf("New Files (%d)", len(items)),
		Body:  b.String(),
		Color: notify.ColorGreen,
	})
}
