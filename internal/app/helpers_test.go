package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"yacht/internal/archive"
	"yacht/internal/domain"
	"yacht/internal/store"
)

func testSettings() Settings {
	s := DefaultSettings()
	s.TurnDuration = 0
	s.AutoStartDuration = 0
	s.TickInterval = 10 * time.Millisecond
	s.WriteTimeout = time.Second
	return s
}

type fakeRecorder struct {
	mu      sync.Mutex
	results []archive.GameResult
}

func (f *fakeRecorder) RecordResult(_ context.Context, r archive.GameResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, r)
	return nil
}

func (f *fakeRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.results)
}

type harness struct {
	t   *testing.T
	hub *GameHub
	rec *fakeRecorder
}

func newHarness(t *testing.T, settings Settings) *harness {
	t.Helper()
	rec := &fakeRecorder{}
	hub := NewGameHub(store.NewMemory(), HubConfig{Settings: settings}, rec, zerolog.Nop())
	t.Cleanup(hub.Close)
	return &harness{t: t, hub: hub, rec: rec}
}

type client struct {
	*Session
	events chan *domain.GameEvent
}

func (h *harness) open(userID string, opts ...SessionOption) *client {
	events := make(chan *domain.GameEvent, 1024)
	view := NewEventView(func(e *domain.GameEvent) {
		select {
		case events <- e:
		default:
		}
	})
	session, err := h.hub.Open(userID, view, opts...)
	if err != nil {
		h.t.Fatalf("Open(%s): %v", userID, err)
	}
	return &client{Session: session, events: events}
}

// room reads the authoritative room state
func (h *harness) room(code string) *domain.Room {
	h.t.Helper()
	room, err := h.hub.LookupRoom(context.Background(), code)
	if err != nil {
		return nil
	}
	return room
}

// waitEvent consumes events until one of type t satisfies match
func (c *client) waitEvent(t *testing.T, typ domain.EventType, match func(*domain.GameEvent) bool) *domain.GameEvent {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e := <-c.events:
			if e.Type == typ && (match == nil || match(e)) {
				return e
			}
		case <-timeout:
			t.Fatalf("%s: timed out waiting for %s", c.UserID(), typ)
			return nil
		}
	}
}

func eventually(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// keepOrder makes Fisher-Yates a no-op so turn order is the sorted ids
func keepOrder(n int) int {
	return n - 1
}

// constantDice gives each session its own rig that always rolls face
func constantDice(face int) SessionOption {
	return func(s *Session) {
		s.rig = domain.NewDiceRig(domain.WithFaces(func() int { return face }))
	}
}

// startedGame seats players p1..pn, p1 hosting, and starts a game whose
// turn order is p1..pn
func (h *harness) startedGame(n int, opts ...SessionOption) (string, []*client) {
	h.t.Helper()
	ctx := context.Background()
	ids := []string{"p1", "p2", "p3", "p4"}[:n]

	clients := make([]*client, n)
	for i, id := range ids {
		clients[i] = h.open(id, append([]SessionOption{WithShuffle(keepOrder)}, opts...)...)
	}

	code, err := clients[0].CreateRoom(ctx, "host")
	if err != nil {
		h.t.Fatalf("CreateRoom: %v", err)
	}
	for _, c := range clients[1:] {
		if _, err := c.JoinRoomByCode(ctx, code, c.UserID()); err != nil {
			h.t.Fatalf("JoinRoomByCode(%s): %v", c.UserID(), err)
		}
	}
	order, err := clients[0].StartGame(ctx)
	if err != nil {
		h.t.Fatalf("StartGame: %v", err)
	}
	for i, id := range ids {
		if order[i] != id {
			h.t.Fatalf("turn order = %v, want %v", order, ids)
		}
	}
	for _, c := range clients {
		c := c
		eventually(h.t, func() bool {
			r := c.Room()
			return r != nil && r.Status == domain.StatusPlaying
		}, c.UserID()+" to see the game start")
	}
	return code, clients
}
