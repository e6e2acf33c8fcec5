package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/reagent-systems/Simple-Agent-Discord-Bot/internal/agentlink"
	"github.com/reagent-systems/Simple-Agent-Discord-Bot/internal/artifacts"
	"github.com/reagent-systems/Simple-Agent-Discord-Bot/internal/batch"
	"github.com/reagent-systems/Simple-Agent-Discord-Bot/internal/config"
	"github.com/reagent-systems/Simple-Agent-Discord-Bot/internal/journal"
	"github.com/reagent-systems/Simple-Agent-Discord-Bot/internal/notify"
)

const (
	maxStepsCeiling = 100
	toolFlushLimit  = 8
	fileFlushLimit  = 10
)

// StartRequest asks for a new agent session. Nil step fields take the
// configured defaults.
type StartRequest struct {
	UserID        string
	ParentChannel string
	Prompt        string
	MaxSteps      *int
	AutoSteps     *int
}

type Options struct {
	Config    config.Config
	Notifier  notify.Notifier
	Waiter    notify.MessageWaiter
	Deliverer *artifacts.Deliverer
	Journal   *journal.Store // optional; nil disables the audit log

	// NewLink builds one connection per session.
	NewLink func() (AgentLink, error)
}

// Dispatcher owns all active sessions and is the only component that
// mutates per-session state. One user owns at most one active session.
type Dispatcher struct {
	cfg      config.Config
	notifier notify.Notifier
	waiter   notify.MessageWaiter
	deliver  *artifacts.Deliverer
	journal  *journal.Store
	newLink  func() (AgentLink, error)
	batcher  *batch.Batcher

	mu       sync.Mutex
	sessions map[string]*Session // key: UserID
}

func NewDispatcher(opts Options) *Dispatcher {
	d := &Dispatcher{
		cfg:      opts.Config,
		notifier: opts.Notifier,
		waiter:   opts.Waiter,
		deliver:  opts.Deliverer,
		journal:  opts.Journal,
		newLink:  opts.NewLink,
		batcher:  batch.New(),
		sessions: map[string]*Session{},
	}
	d.batcher.Configure(batch.KindTools, d.cfg.ToolBatchDelay, d.flushTools)
	d.batcher.Configure(batch.KindFiles, d.cfg.FileBatchDelay, d.flushFiles)
	return d
}

// Start validates the request, creates the thread, connects to the agent
// server with retries and issues run_agent. A duplicate active session for
// the user is rejected before any resource is allocated.
func (d *Dispatcher) Start(ctx context.Context, req StartRequest) (*Session, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, &ValidationError{Field: "prompt", Reason: "must not be empty"}
	}
	maxSteps := d.cfg.DefaultMaxSteps
	if req.MaxSteps != nil {
		maxSteps = *req.MaxSteps
	}
	if maxSteps < 1 || maxSteps > maxStepsCeiling {
		return nil, &ValidationError{Field: "max_steps", Reason: fmt.Sprintf("must be between 1 and %d", maxStepsCeiling)}
	}
	autoSteps := d.cfg.DefaultAutoSteps
	if autoSteps > maxSteps {
		autoSteps = maxSteps
	}
	if req.AutoSteps != nil {
		autoSteps = *req.AutoSteps
	}
	if autoSteps < 0 || autoSteps > maxSteps {
		return nil, &ValidationError{Field: "auto_steps", Reason: "must be between 0 and max_steps"}
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		UserID:     req.UserID,
		collector:  artifacts.NewCollector(),
		ctx:        sessCtx,
		cancel:     cancel,
		status:     StatusIdle,
		trackingID: req.UserID,
	}

	d.mu.Lock()
	if _, exists := d.sessions[req.UserID]; exists {
		d.mu.Unlock()
		cancel()
		return nil, ErrSessionExists
	}
	d.sessions[req.UserID] = s
	d.mu.Unlock()

	thread, err := d.notifier.CreateThread(ctx, req.ParentChannel, threadName(req.Prompt), req.UserID)
	if err != nil {
		d.cleanup(s)
		return nil, fmt.Errorf("create session thread: %w", err)
	}
	s.Thread = thread

	d.post(s, notify.Notice{
		Title: "Agent Session Started",
		Body:  req.Prompt,
		Color: notify.ColorBlue,
		Fields: []notify.Field{
			{Name: "Max Steps", Value: fmt.Sprintf("%d", maxSteps), Inline: true},
			{Name: "Auto Continue", Value: fmt.Sprintf("%d", autoSteps), Inline: true},
		},
	})

	link, err := d.newLink()
	if err != nil {
		d.post(s, notify.Notice{
			Title: "Connection Failed",
			Body:  "Could not prepare a connection to the agent server.",
			Color: notify.ColorRed,
		})
		d.cleanup(s)
		return nil, fmt.Errorf("build agent link: %w", err)
	}
	s.link = link
	d.route(s, link)
	link.SetOnDisconnect(func(err error) { d.onDisconnect(s, err) })

	retries := d.cfg.ConnectRetries
	if retries < 1 {
		retries = 1
	}
	var connectErr error
	for attempt := 1; attempt <= retries; attempt++ {
		connectErr = link.Connect(ctx)
		if connectErr == nil {
			break
		}
		log.Printf("connect attempt %d/%d for %s: %v", attempt, retries, req.UserID, connectErr)
		if attempt < retries {
			d.post(s, notify.Notice{
				Title: "Connection Failed",
				Body:  fmt.Sprintf("Attempt %d of %d failed. Retrying...", attempt, retries),
				Color: notify.ColorOrange,
			})
			select {
			case <-time.After(d.cfg.ConnectRetryDelay):
			case <-ctx.Done():
				connectErr = ctx.Err()
				attempt = retries
			}
		}
	}
	if connectErr != nil {
		d.post(s, notify.Notice{
			Title: "Connection Failed",
			Body:  fmt.Sprintf("Could not reach the agent server after %d attempts.", retries),
			Color: notify.ColorRed,
		})
		d.cleanup(s)
		return nil, fmt.Errorf("connect agent server: %w", connectErr)
	}

	if err := link.RunAgent(ctx, req.Prompt, maxSteps, autoSteps); err != nil {
		d.post(s, notify.Notice{
			Title: "Start Failed",
			Body:  "The agent server refused the run command.",
			Color: notify.ColorRed,
		})
		d.cleanup(s)
		return nil, fmt.Errorf("run agent: %w", err)
	}

	s.setStatus(StatusRunning)
	d.logEvent(s, "session_started", req.Prompt)
	return s, nil
}

// Stop tears down the requesting user's session, delivering any collected
// artifacts first.
func (d *Dispatcher) Stop(ctx context.Context, userID string) error {
	s := d.lookup(userID)
	if s == nil {
		return ErrNoSession
	}
	if err := s.link.StopAgent(ctx); err != nil {
		log.Printf("stop agent for %s: %v", userID, err)
	}
	d.post(s, notify.Notice{
		Title: "Session Stopped",
		Body:  "The agent session was stopped at your request.",
		Color: notify.ColorOrange,
	})
	s.setStatus(StatusCompleted)
	d.finalizeArtifacts(s)
	d.cleanup(s)
	return nil
}

// StatusOf answers a status query for the user's session.
func (d *Dispatcher) StatusOf(userID string) (Info, error) {
	s := d.lookup(userID)
	if s == nil {
		return Info{}, ErrNoSession
	}
	connected := s.link != nil && s.link.Connected()
	return Info{
		Status:        s.Status(),
		Connected:     connected,
		ArtifactCount: s.collector.Count(),
		TrackingID:    s.TrackingID(),
	}, nil
}

// Shutdown tears down every active session exactly once. Artifact delivery
// is skipped; the process is exiting.
func (d *Dispatcher) Shutdown(ctx context.Context) {
	d.mu.Lock()
	active := make([]*Session, 0, len(d.sessions))
	for _, s := range d.sessions {
		active = append(active, s)
	}
	d.mu.Unlock()

	for _, s := range active {
		if s.link != nil {
			if err := s.link.StopAgent(ctx); err != nil && !errors.Is(err, agentlink.ErrNotConnected) {
				log.Printf("stop agent for %s during shutdown: %v", s.UserID, err)
			}
		}
		d.post(s, notify.Notice{
			Title: "Shutting Down",
			Body:  "The relay is shutting down. This session has ended.",
			Color: notify.ColorGrey,
		})
		d.cleanup(s)
	}
}

func (d *Dispatcher) lookup(userID string) *Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[userID]
}

// cleanup is the single idempotent teardown path: it cancels the session
// context, closes the link, discards pending batches and artifacts, and
// removes the session from the registry.
func (d *Dispatcher) cleanup(s *Session) {
	s.cleanupOnce.Do(func() {
		s.cancel()
		if s.link != nil {
			if err := s.link.Close(); err != nil {
				log.Printf("close agent link for %s: %v", s.UserID, err)
			}
		}
		d.batcher.CancelAll(s.UserID)
		s.collector.Clear()
		if f, ok := d.notifier.(interface{ Forget(notify.ThreadRef) }); ok && s.Thread != "" {
			f.Forget(s.Thread)
		}
		d.mu.Lock()
		if d.sessions[s.UserID] == s {
			delete(d.sessions, s.UserID)
		}
		d.mu.Unlock()
		d.logEvent(s, "session_ended", string(s.Status()))
	})
}

func threadName(prompt string) string {
	const max = 80
	name := "Agent: " + prompt
	if len(name) > max {
		name = name[:max-3] + "..."
	}
	return name
}

func (d *Dispatcher) post(s *Session, n notify.Notice) {
	if s.Thread == "" {
		return
	}
	if _, err := d.notifier.Post(s.ctx, s.Thread, n); err != nil {
		log.Printf("post %q notice: %v", n.Title, err)
	}
}

func (d *Dispatcher) logEvent(s *Session, kind, detail string) {
	if d.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := d.journal.Append(ctx, s.TrackingID(), s.UserID, kind, detail); err != nil {
		log.Printf("journal %s: %v", kind, err)
	}
}

func (d *Dispatcher) finalizeArtifacts(s *Session) {
	if d.deliver == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := d.deliver.Finalize(ctx, s.TrackingID(), s.Thread, s.collector); err != nil {
		log.Printf("deliver artifacts for %s: %v", s.UserID, err)
	}
}
