// Package api exposes the session commands over HTTP: start, stop, status
// and bulk state. The surrounding application (or an operator with curl)
// drives the dispatcher through it.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/reagent-systems/Simple-Agent-Discord-Bot/internal/idgen"
	"github.com/reagent-systems/Simple-Agent-Discord-Bot/internal/journal"
	"github.com/reagent-systems/Simple-Agent-Discord-Bot/internal/notify"
	"github.com/reagent-systems/Simple-Agent-Discord-Bot/internal/session"
)

type Server struct {
	Sessions *session.Dispatcher
	Journal  *journal.Store // optional; enables session history
	Inbox    *notify.Inbox  // optional; enables inbound thread messages
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/sessions/", s.handleSessionItem)
	mux.HandleFunc("/api/threads/", s.handleThreadMessage)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "time": time.Now().UTC()})
}

type startPayload struct {
	UserID    string `json:"user_id"`
	Channel   string `json:"channel"`
	Prompt    string `json:"prompt"`
	MaxSteps  *int   `json:"max_steps,omitempty"`
	AutoSteps *int   `json:"auto_steps,omitempty"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var payload startPayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.UserID == "" {
		writeError(w, http.StatusBadRequest, errors.New("user_id is required"))
		return
	}
	sess, err := s.Sessions.Start(r.Context(), session.StartRequest{
		UserID:        payload.UserID,
		ParentChannel: payload.Channel,
		Prompt:        payload.Prompt,
		MaxSteps:      payload.MaxSteps,
		AutoSteps:     payload.AutoSteps,
	})
	if err != nil {
		var vErr *session.ValidationError
		switch {
		case errors.As(err, &vErr):
			writeError(w, http.StatusBadRequest, err)
		case errors.Is(err, session.ErrSessionExists):
			writeError(w, http.StatusConflict, err)
		default:
			writeError(w, http.StatusBadGateway, err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"user_id": sess.UserID,
		"thread":  string(sess.Thread),
		"status":  string(sess.Status()),
	})
}

func (s *Server) handleSessionItem(w http.ResponseWriter, r *http.Request) {
	userID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/")
	if userID == "" {
		writeError(w, http.StatusNotFound, errors.New("session not found"))
		return
	}
	switch r.Method {
	case http.MethodGet:
		info, err := s.Sessions.StatusOf(userID)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		resp := map[string]any{
			"status":         string(info.Status),
			"connected":      info.Connected,
			"artifact_count": info.ArtifactCount,
			"tracking_id":    info.TrackingID,
		}
		if s.Journal != nil {
			entries, err := s.Journal.Recent(r.Context(), info.TrackingID, 20)
			if err == nil {
				resp["history"] = entries
			}
		}
		writeJSON(w, http.StatusOK, resp)
	case http.MethodDelete:
		if err := s.Sessions.Stop(r.Context(), userID); err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeMethodNotAllowed(w)
	}
}

type messagePayload struct {
	Author  string `json:"author"`
	Content string `json:"content"`
}

// handleThreadMessage feeds a human message into a session thread, the way
// a chat platform adapter would on a message event. Thread refs may contain
// slashes.
func (s *Server) handleThreadMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if s.Inbox == nil {
		writeError(w, http.StatusNotFound, errors.New("inbound messages not enabled"))
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/threads/")
	thread, ok := strings.CutSuffix(path, "/messages")
	if !ok || thread == "" {
		writeError(w, http.StatusNotFound, errors.New("thread not found"))
		return
	}
	var payload messagePayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.Author == "" || payload.Content == "" {
		writeError(w, http.StatusBadRequest, errors.New("author and content are required"))
		return
	}
	msg := notify.Message{
		ID:      notify.MessageRef(idgen.New()),
		Author:  payload.Author,
		Content: payload.Content,
	}
	s.Inbox.Deliver(notify.ThreadRef(thread), msg)
	writeJSON(w, http.StatusAccepted, map[string]any{"id": string(msg.ID)})
}

func decodeJSON(body io.Reader, dest any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
}
