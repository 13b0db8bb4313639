package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kalambet/tablevoice/internal/dialogue"
	"github.com/kalambet/tablevoice/internal/logging"
)

type utteranceRequest struct {
	Text string `json:"text"`
}

type utteranceResponse struct {
	Reply string        `json:"reply"`
	Step  dialogue.Step `json:"step"`
}

// currentSession resolves the cookie-bound conversation. When create is set
// a missing or expired conversation is replaced by a new one and bound.
func currentSession(deps Deps, w http.ResponseWriter, r *http.Request, create bool) (*dialogue.Session, bool) {
	id, _ := deps.Cookies.SessionID(r)
	if !create {
		if id == "" {
			return nil, false
		}
		s, err := deps.Sessions.Get(id)
		if err != nil {
			deps.Cookies.Clear(w)
			return nil, false
		}
		return s, true
	}
	s, created := deps.Sessions.GetOrCreate(id)
	if created {
		if err := deps.Cookies.Bind(w, r, s.ID()); err != nil {
			logging.FromContext(r.Context(), deps.logger()).Error("binding conversation", "error", err)
		}
	}
	return s, true
}

func handleStartConversation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if old, ok := deps.Cookies.SessionID(r); ok {
			deps.Sessions.Close(r.Context(), old)
		}
		s := deps.Sessions.Create()
		if err := deps.Cookies.Bind(w, r, s.ID()); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		logging.FromContext(r.Context(), deps.logger()).Info("conversation started", "session_id", s.ID())
		writeJSON(w, http.StatusCreated, s.Snapshot())
	}
}

func handleCurrentConversation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := currentSession(deps, w, r, false)
		if !ok {
			writeMessage(w, http.StatusNotFound, "No active conversation")
			return
		}
		writeJSON(w, http.StatusOK, s.Snapshot())
	}
}

func handleUtterance(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req utteranceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		s, _ := currentSession(deps, w, r, true)
		reply, err := s.Handle(r.Context(), strings.TrimSpace(req.Text))
		switch {
		case errors.Is(err, dialogue.ErrBusy):
			httpError(w, http.StatusConflict, "busy", "previous utterance is still being handled")
			return
		case errors.Is(err, dialogue.ErrStale):
			httpError(w, http.StatusConflict, "stale", "conversation was restarted")
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, utteranceResponse{Reply: reply, Step: s.Step()})
	}
}

// handleResetConversation starts the bound conversation over.
func handleResetConversation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := currentSession(deps, w, r, false)
		if !ok {
			writeMessage(w, http.StatusNotFound, "No active conversation")
			return
		}
		s.Reset()
		writeJSON(w, http.StatusOK, s.Snapshot())
	}
}

func handleConversationSocket(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, _ := currentSession(deps, w, r, true)
		deps.Speech.Serve(w, r, s)
	}
}

func handleListTranscripts(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Transcripts == nil {
			writeJSON(w, http.StatusOK, []dialogue.Transcript{})
			return
		}
		var (
			ts  []dialogue.Transcript
			err error
		)
		if sid := r.URL.Query().Get("session"); sid != "" {
			ts, err = deps.Transcripts.ForSession(r.Context(), sid)
		} else {
			ts, err = deps.Transcripts.List(r.Context(), parseIntParam(r, "limit", 20, 200))
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list transcripts: %v", err)
			return
		}
		if ts == nil {
			ts = []dialogue.Transcript{}
		}
		writeJSON(w, http.StatusOK, ts)
	}
}
