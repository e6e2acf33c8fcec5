package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/reagent-systems/Simple-Agent-Discord-Bot/internal/agentlink"
	"github.com/reagent-systems/Simple-Agent-Discord-Bot/internal/config"
	"github.com/reagent-systems/Simple-Agent-Discord-Bot/internal/session"
	"github.com/reagent-systems/Simple-Agent-Discord-Bot/internal/testutil"
)

type stubLink struct {
	mu        sync.Mutex
	connected bool
	stops     int
}

func (l *stubLink) Connect(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = true
	return nil
}

func (l *stubLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = false
	return nil
}

func (l *stubLink) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

func (l *stubLink) On(string, agentlink.Handler) {}

func (l *stubLink) SetOnDisconnect(func(error)) {}

func (l *stubLink) RunAgent(context.Context, string, int, int) error { return nil }

func (l *stubLink) SendUserInput(context.Context, string) error { return nil }

func (l *stubLink) StopAgent(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stops++
	return nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	dispatcher := session.NewDispatcher(session.Options{
		Config: config.Config{
			ConnectRetries:    1,
			ConnectRetryDelay: time.Millisecond,
			DefaultMaxSteps:   20,
			DefaultAutoSteps:  10,
			FileBatchDelay:    time.Second,
			ToolBatchDelay:    time.Second,
			InputTimeout:      time.Minute,
		},
		Notifier: testutil.NewFakeNotifier(),
		Waiter:   testutil.NewFakeWaiter(),
		NewLink:  func() (session.AgentLink, error) { return &stubLink{}, nil },
	})
	srv := httptest.NewServer((&Server{Sessions: dispatcher}).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, err := client.Post(srv.URL+"/api/sessions", "application/json",
		strings.NewReader(`{"user_id":"alice","channel":"general","prompt":"write a poem"}`))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", res.StatusCode)
	}

	// Duplicate start is a conflict.
	res, err = client.Post(srv.URL+"/api/sessions", "application/json",
		strings.NewReader(`{"user_id":"alice","channel":"general","prompt":"again"}`))
	if err != nil {
		t.Fatalf("duplicate start: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", res.StatusCode)
	}

	res, err = client.Get(srv.URL + "/api/sessions/alice")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/sessions/alice", nil)
	res, err = client.Do(req)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.StatusCode)
	}

	res, err = client.Get(srv.URL + "/api/sessions/alice")
	if err != nil {
		t.Fatalf("status after stop: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after stop, got %d", res.StatusCode)
	}
}

func TestStartRejectsBadPayload(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	cases := []string{
		`{"user_id":"bob","channel":"general","prompt":"p","max_steps":0}`,
		`{"user_id":"bob","channel":"general","prompt":"p","max_steps":101}`,
		`{"user_id":"bob","channel":"general","prompt":"p","max_steps":10,"auto_steps":11}`,
		`{"user_id":"bob","channel":"general","prompt":""}`,
		`{"channel":"general","prompt":"p"}`,
		`{"unknown_field":true}`,
	}
	for _, body := range cases {
		res, err := client.Post(srv.URL+"/api/sessions", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("post %s: %v", body, err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, res.StatusCode)
		}
	}
}
