package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"termslens/internal/chat"
	"termslens/internal/models"
	"termslens/internal/repository"
	"termslens/internal/services"
	"termslens/internal/view"
)

const persistTimeout = 5 * time.Second

// Publisher pushes chat state snapshots to live watchers of a session.
type Publisher interface {
	Publish(ctx context.Context, sessionID uuid.UUID, state models.ChatState)
}

// SessionHandler serves the result page and drives one chat panel per
// session. Panels live in this process; their state is saved to the session
// repo after every change and restored from it on first use.
type SessionHandler struct {
	sessions  repository.SessionRepo
	asker     chat.Asker
	publisher Publisher
	metrics   *services.Metrics

	mu     sync.Mutex
	panels map[uuid.UUID]*chat.Panel
}

func NewSessionHandler(sessions repository.SessionRepo, asker chat.Asker, publisher Publisher, metrics *services.Metrics) *SessionHandler {
	return &SessionHandler{
		sessions:  sessions,
		asker:     asker,
		publisher: publisher,
		metrics:   metrics,
		panels:    make(map[uuid.UUID]*chat.Panel),
	}
}

type chatSubmitRequest struct {
	Question string `json:"question"`
}

func (h *SessionHandler) Show(w http.ResponseWriter, r *http.Request) {
	session, _, ok := h.loadPage(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := view.RenderSession(w, session); err != nil {
		log.Printf("Render session %s failed: %v", session.ID, err)
	}
}

// Ask submits the form's question and redirects back to the session page.
// The answer arrives in the background and is pushed over the websocket.
func (h *SessionHandler) Ask(w http.ResponseWriter, r *http.Request) {
	session, panel, ok := h.loadPage(w, r)
	if !ok {
		return
	}

	done, err := panel.AskAsync(context.WithoutCancel(r.Context()), r.FormValue("question"))
	if err != nil {
		h.recordRound(err)
	} else {
		go func() { h.recordRound(<-done) }()
	}

	http.Redirect(w, r, sessionURL(session.ID), http.StatusSeeOther)
}

// Suggest fills the chat input with a suggested question without sending it.
func (h *SessionHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	session, panel, ok := h.loadPage(w, r)
	if !ok {
		return
	}

	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil {
		http.Error(w, "Invalid suggestion", http.StatusBadRequest)
		return
	}
	if err := panel.ChooseSuggestion(n); err != nil {
		http.Error(w, "Unknown suggestion", http.StatusNotFound)
		return
	}

	http.Redirect(w, r, sessionURL(session.ID), http.StatusSeeOther)
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, _, ok := h.loadAPI(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Chat is the JSON submit: it waits for the round and returns the panel
// state. A failed round answers 502 with the state carrying the error.
func (h *SessionHandler) Chat(w http.ResponseWriter, r *http.Request) {
	_, panel, ok := h.loadAPI(w, r)
	if !ok {
		return
	}

	var req chatSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	state, err := panel.Ask(context.WithoutCancel(r.Context()), req.Question)
	h.recordRound(err)

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, state)
	case errors.Is(err, chat.ErrBusy):
		writeJSON(w, http.StatusConflict, errorResp("CONFLICT", "A question is already in flight", r))
	case errors.Is(err, chat.ErrBlankQuestion):
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Question is required", r))
	default:
		writeJSON(w, http.StatusBadGateway, state)
	}
}

func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return
	}

	h.forget(id)
	if err := h.sessions.Delete(r.Context(), id); err != nil {
		log.Printf("Delete session %s failed: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to delete session", r))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Prune drops panels whose sessions have expired from the repo.
func (h *SessionHandler) Prune(ctx context.Context) int {
	h.mu.Lock()
	ids := make([]uuid.UUID, 0, len(h.panels))
	for id := range h.panels {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	pruned := 0
	for _, id := range ids {
		if _, err := h.sessions.GetByID(ctx, id); errors.Is(err, repository.ErrSessionNotFound) {
			h.forget(id)
			pruned++
		}
	}
	return pruned
}

// loadPage resolves the session for an HTML route, answering 404 itself.
func (h *SessionHandler) loadPage(w http.ResponseWriter, r *http.Request) (*models.Session, *chat.Panel, bool) {
	id, err := sessionIDParam(r)
	if err != nil {
		http.NotFound(w, r)
		return nil, nil, false
	}
	session, panel, err := h.panel(r.Context(), id)
	if errors.Is(err, repository.ErrSessionNotFound) {
		http.NotFound(w, r)
		return nil, nil, false
	}
	if err != nil {
		log.Printf("Load session %s failed: %v", id, err)
		http.Error(w, "Failed to load session", http.StatusInternalServerError)
		return nil, nil, false
	}
	return session, panel, true
}

func (h *SessionHandler) loadAPI(w http.ResponseWriter, r *http.Request) (*models.Session, *chat.Panel, bool) {
	id, err := sessionIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return nil, nil, false
	}
	session, panel, err := h.panel(r.Context(), id)
	if errors.Is(err, repository.ErrSessionNotFound) {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Session not found", r))
		return nil, nil, false
	}
	if err != nil {
		log.Printf("Load session %s failed: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load session", r))
		return nil, nil, false
	}
	return session, panel, true
}

// panel returns the session with its live chat state and the panel that
// owns that state, restoring the panel from the repo if this process has
// not seen the session yet.
func (h *SessionHandler) panel(ctx context.Context, id uuid.UUID) (*models.Session, *chat.Panel, error) {
	session, err := h.sessions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			h.forget(id)
		}
		return nil, nil, err
	}

	h.mu.Lock()
	p, ok := h.panels[id]
	if !ok {
		p = chat.RestorePanel(h.asker, session.Context, session.Chat)
		p.Subscribe(h.persist(*session))
		h.panels[id] = p
	}
	h.mu.Unlock()

	session.Chat = p.State()
	return session, p, nil
}

func (h *SessionHandler) forget(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.panels, id)
}

// persist saves every snapshot to the repo and pushes it to watchers.
// Observers run outside the panel lock, so a snapshot can arrive after a
// newer one; those are dropped.
func (h *SessionHandler) persist(session models.Session) chat.Observer {
	var (
		mu     sync.Mutex
		latest = session.Chat.Version
	)
	return func(state models.ChatState) {
		mu.Lock()
		defer mu.Unlock()
		if state.Version <= latest {
			return
		}
		latest = state.Version

		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		session.Chat = state
		if err := h.sessions.Update(ctx, &session); err != nil {
			log.Printf("Save chat state for session %s failed: %v", session.ID, err)
		}
		if h.publisher != nil {
			h.publisher.Publish(ctx, session.ID, state)
		}
	}
}

func (h *SessionHandler) recordRound(err error) {
	switch {
	case err == nil:
		h.metrics.ChatRound("success")
	case errors.Is(err, chat.ErrBusy):
		h.metrics.ChatRound("busy")
	case errors.Is(err, chat.ErrBlankQuestion):
		h.metrics.ChatRound("blank")
	default:
		h.metrics.ChatRound("error")
	}
}
