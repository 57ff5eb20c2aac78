package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"termslens/internal/models"
	"termslens/internal/repository"
)

func setupHub(t *testing.T) (*Hub, *repository.MemorySessionRepo, *httptest.Server) {
	t.Helper()
	repo := repository.NewMemorySessionRepo(time.Hour)
	t.Cleanup(repo.Close)

	hub := NewHub(repo, nil)
	r := chi.NewRouter()
	r.Get("/sessions/{id}/ws", hub.HandleWebSocket)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return hub, repo, srv
}

func dial(t *testing.T, srv *httptest.Server, id uuid.UUID) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/" + id.String() + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readState(t *testing.T, ws *websocket.Conn) models.ChatState {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var state models.ChatState
	if err := ws.ReadJSON(&state); err != nil {
		t.Fatalf("read: %v", err)
	}
	return state
}

func waitForWatchers(t *testing.T, hub *Hub, id uuid.UUID, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Watchers(id) != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d watchers, got %d", n, hub.Watchers(id))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHandleWebSocket_SendsCurrentStateThenUpdates(t *testing.T) {
	hub, repo, srv := setupHub(t)

	session := &models.Session{
		Chat: models.ChatState{Transcript: []models.ChatMessage{{Role: models.RoleUser, Content: "Can I cancel?"}}, InFlight: true},
	}
	if err := repo.Create(context.Background(), session); err != nil {
		t.Fatalf("Create: %v", err)
	}

	ws := dial(t, srv, session.ID)
	initial := readState(t, ws)
	if !initial.InFlight || len(initial.Transcript) != 1 {
		t.Fatalf("initial state mismatch: %+v", initial)
	}

	waitForWatchers(t, hub, session.ID, 1)

	hub.Publish(context.Background(), session.ID, models.ChatState{
		Transcript: []models.ChatMessage{
			{Role: models.RoleUser, Content: "Can I cancel?"},
			{Role: models.RoleAssistant, Content: "Yes."},
		},
	})

	update := readState(t, ws)
	if update.InFlight {
		t.Errorf("update should not be in flight")
	}
	if len(update.Transcript) != 2 || update.Transcript[1].Content != "Yes." {
		t.Errorf("update transcript mismatch: %+v", update.Transcript)
	}
}

// racingRepo lands a chat update right after the first lookup, before the
// socket has been registered.
type racingRepo struct {
	repository.SessionRepo
	hub    *Hub
	update models.ChatState
	once   sync.Once
}

func (r *racingRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	session, err := r.SessionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.once.Do(func() {
		updated := *session
		updated.Chat = r.update
		r.SessionRepo.Update(ctx, &updated)
		r.hub.Publish(ctx, id, r.update)
	})
	return session, nil
}

func TestHandleWebSocket_UpdateBeforeRegistrationIsNotLost(t *testing.T) {
	repo := repository.NewMemorySessionRepo(time.Hour)
	t.Cleanup(repo.Close)

	session := &models.Session{Chat: models.ChatState{Input: "draft", Version: 1}}
	if err := repo.Create(context.Background(), session); err != nil {
		t.Fatalf("Create: %v", err)
	}

	racing := &racingRepo{SessionRepo: repo, update: models.ChatState{
		Transcript: []models.ChatMessage{{Role: models.RoleUser, Content: "Can I cancel?"}},
		InFlight:   true,
		Version:    2,
	}}
	hub := NewHub(racing, nil)
	racing.hub = hub

	r := chi.NewRouter()
	r.Get("/sessions/{id}/ws", hub.HandleWebSocket)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	ws := dial(t, srv, session.ID)
	initial := readState(t, ws)
	if initial.Version != 2 || !initial.InFlight || len(initial.Transcript) != 1 {
		t.Errorf("first message should carry the update, got %+v", initial)
	}
}

func TestHandleWebSocket_OnlySessionWatchersReceive(t *testing.T) {
	hub, repo, srv := setupHub(t)

	a := &models.Session{}
	b := &models.Session{}
	repo.Create(context.Background(), a)
	repo.Create(context.Background(), b)

	wsA := dial(t, srv, a.ID)
	wsB := dial(t, srv, b.ID)
	readState(t, wsA)
	readState(t, wsB)
	waitForWatchers(t, hub, a.ID, 1)
	waitForWatchers(t, hub, b.ID, 1)

	hub.Publish(context.Background(), a.ID, models.ChatState{Input: "for a"})

	if got := readState(t, wsA); got.Input != "for a" {
		t.Errorf("Expected session a update, got %+v", got)
	}

	wsB.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := wsB.ReadMessage(); err == nil {
		t.Errorf("session b should not receive session a updates")
	}
}

func TestHandleWebSocket_UnregistersOnClose(t *testing.T) {
	hub, repo, srv := setupHub(t)

	session := &models.Session{}
	repo.Create(context.Background(), session)

	ws := dial(t, srv, session.ID)
	readState(t, ws)
	waitForWatchers(t, hub, session.ID, 1)

	ws.Close()
	waitForWatchers(t, hub, session.ID, 0)
}

func TestHandleWebSocket_Rejections(t *testing.T) {
	_, _, srv := setupHub(t)

	tests := []struct {
		name string
		id   string
		want int
	}{
		{"invalid id", "not-a-uuid", http.StatusBadRequest},
		{"unknown session", uuid.New().String(), http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + "/sessions/" + tc.id + "/ws")
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Errorf("Expected status %d, got %d", tc.want, resp.StatusCode)
			}
		})
	}
}

func TestChannelName(t *testing.T) {
	id := uuid.MustParse("6f1c1f0e-4f4a-4b8e-9d55-3f2b1c0a9e77")
	if got := channelName(id); got != "session_updates:6f1c1f0e-4f4a-4b8e-9d55-3f2b1c0a9e77" {
		t.Errorf("unexpected channel name %q", got)
	}
}
