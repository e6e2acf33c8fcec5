// Package session owns the per-session state machine and the dispatcher
// that routes inbound agent events to the batcher, the input arbiter and
// the artifact pipeline.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/reagent-systems/Simple-Agent-Discord-Bot/internal/agentlink"
	"github.com/reagent-systems/Simple-Agent-Discord-Bot/internal/artifacts"
	"github.com/reagent-systems/Simple-Agent-Discord-Bot/internal/notify"
)

type Status string

const (
	StatusIdle         Status = "idle"
	StatusRunning      Status = "running"
	StatusWaitingInput Status = "waiting_for_input"
	StatusCompleted    Status = "completed"
	StatusError        Status = "error"
)

var (
	// ErrSessionExists rejects a start request whose user already owns an
	// active session. Returned before any thread or connection is created.
	ErrSessionExists = errors.New("an active agent session already exists for this user")

	ErrNoSession = errors.New("no active agent session for this user")
)

// ValidationError rejects an out-of-range start parameter.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AgentLink is the per-session connection to the agent server. Satisfied by
// *agentlink.Client; tests substitute a fake.
type AgentLink interface {
	Connect(ctx context.Context) error
	Close() error
	Connected() bool
	On(event string, h agentlink.Handler)
	SetOnDisconnect(fn func(err error))
	RunAgent(ctx context.Context, instruction string, maxSteps, autoContinue int) error
	StopAgent(ctx context.Context) error
	SendUserInput(ctx context.Context, input string) error
}

// Session binds one running remote task to one authorized user and one
// destination thread. The dispatcher is the only writer of status and
// tracking identifier.
type Session struct {
	UserID string
	Thread notify.ThreadRef

	link      AgentLink
	collector *artifacts.Collector

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	status     Status
	trackingID string

	cleanupOnce sync.Once
}

func (s *Session) setStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// adoptTrackingID records the server-issued session identifier the first
// time it is observed; later observations are ignored.
func (s *Session) adoptTrackingID(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	if s.trackingID == "" || s.trackingID == s.UserID {
		s.trackingID = id
	}
	s.mu.Unlock()
}

// TrackingID is the identifier used for content lookups: the server-issued
// one once known, the caller-seeded key before that.
func (s *Session) TrackingID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trackingID
}

// Info is the answer to a status query.
type Info struct {
	Status        Status
	Connected     bool
	ArtifactCount int
	TrackingID    string
}
