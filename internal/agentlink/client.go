// Package agentlink speaks to the Simple Agent server: a websocket stream of
// named events inbound, three commands outbound, and an HTTP endpoint for
// file content.
package agentlink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Inbound event names, as emitted by the agent server.
const (
	EventAgentStarted     = "agent_started"
	EventStepStart        = "step_start"
	EventAssistantMessage = "assistant_message"
	EventToolCall         = "tool_call"
	EventToolResult       = "tool_result"
	EventStepSummary      = "step_summary"
	EventFinalSummary     = "final_summary"
	EventFileCreated      = "file_created"
	EventDirectoryChanged = "directory_changed"
	EventWaitingForInput  = "waiting_for_input"
	EventTaskCompleted    = "task_completed"
	EventAgentFinished    = "agent_finished"
	EventAgentError       = "agent_error"
)

var ErrNotConnected = errors.New("agent link not connected")

// Handler processes one inbound event's payload. Handlers for a single
// client run serially on the read loop, in arrival order.
type Handler func(data map[string]any)

type frame struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

type Client struct {
	wsURL       string
	dialTimeout time.Duration

	// OnDisconnect, if set, is invoked once when the read loop exits.
	OnDisconnect func(err error)

	mu           sync.Mutex
	conn         *websocket.Conn
	connected    bool
	handlers     map[string]Handler
	cancel       context.CancelFunc
	remoteStatus string
}

// New builds a client for the agent server at serverURL (an http(s) base
// URL; the websocket endpoint is derived from it).
func New(serverURL string, dialTimeout time.Duration) (*Client, error) {
	ws, err := websocketURL(serverURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		wsURL:       ws,
		dialTimeout: dialTimeout,
		handlers:    map[string]Handler{},
	}, nil
}

func websocketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

// SetOnDisconnect installs the disconnect callback. Must be called before
// Connect.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.OnDisconnect = fn
}

// On registers the handler for a named event. Must be called before
// Connect; unknown inbound events are ignored.
func (c *Client) On(event string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = h
}

// Connect dials the websocket endpoint and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	dialCtx := ctx
	if c.dialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.dialTimeout)
		defer cancel()
	}
	conn, _, err := websocket.Dial(dialCtx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial agent server: %w", err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.cancel = cancel
	c.mu.Unlock()

	go c.readLoop(readCtx, conn)
	return nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	var loopErr error
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			loopErr = err
			break
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Printf("agentlink: drop malformed frame: %v", err)
			continue
		}
		c.mu.Lock()
		if st, ok := lifecycleStatus[f.Event]; ok {
			c.remoteStatus = st
		}
		h := c.handlers[f.Event]
		c.mu.Unlock()
		if h != nil {
			h(f.Data)
		}
	}

	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.mu.Unlock()

	if wasConnected && c.OnDisconnect != nil {
		c.OnDisconnect(loopErr)
	}
}

// lifecycleStatus maps inbound events to the remote lifecycle they imply.
var lifecycleStatus = map[string]string{
	EventAgentStarted:    "running",
	EventWaitingForInput: "waiting_for_input",
	EventTaskCompleted:   "completed",
	EventAgentFinished:   "finished",
	EventAgentError:      "error",
}

// RemoteStatus reports the remote task lifecycle as last observed on the
// event stream; empty until the first lifecycle event arrives.
func (c *Client) RemoteStatus() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteStatus
}

// Connected reports whether the link is usable for commands.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Close shuts the connection down. Safe to call repeatedly.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	cancel := c.cancel
	c.conn = nil
	c.connected = false
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "done")
	}
	return nil
}

func (c *Client) emit(ctx context.Context, event string, data map[string]any) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}
	payload, err := json.Marshal(frame{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("send %s: %w", event, err)
	}
	return nil
}

// RunAgent starts agent execution.
func (c *Client) RunAgent(ctx context.Context, instruction string, maxSteps, autoContinue int) error {
	return c.emit(ctx, "run_agent", map[string]any{
		"instruction":   instruction,
		"max_steps":     maxSteps,
		"auto_continue": autoContinue,
	})
}

// StopAgent requests the remote task stop.
func (c *Client) StopAgent(ctx context.Context) error {
	return c.emit(ctx, "stop_agent", map[string]any{})
}

// SendUserInput forwards a human response to the waiting agent.
func (c *Client) SendUserInput(ctx context.Context, input string) error {
	return c.emit(ctx, "user_input", map[string]any{"input": input})
}
