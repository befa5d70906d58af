package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"yacht/internal/domain"
	"yacht/internal/store"
)

const (
	// DefaultFinishedRoomRetention is how long a finished room stays readable
	DefaultFinishedRoomRetention = 30 * time.Minute

	// DefaultCleanupInterval is how often finished rooms are swept
	DefaultCleanupInterval = 5 * time.Minute
)

// HubConfig configures a GameHub
type HubConfig struct {
	Settings              Settings
	FinishedRoomRetention time.Duration
	CleanupInterval       time.Duration
}

// GameHub owns the live sessions of the process and their store
// connections
type GameHub struct {
	store    *store.Memory
	conn     *store.Conn
	config   HubConfig
	recorder ResultRecorder
	logger   zerolog.Logger

	sessions map[*Session]*store.Conn
	users    map[string]*Session
	mu       sync.RWMutex
	done     chan struct{}
	once     sync.Once
	now      func() time.Time
}

// NewGameHub creates a new game hub on the given store
func NewGameHub(mem *store.Memory, config HubConfig, recorder ResultRecorder, logger zerolog.Logger) *GameHub {
	if config.FinishedRoomRetention <= 0 {
		config.FinishedRoomRetention = DefaultFinishedRoomRetention
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultCleanupInterval
	}

	hub := &GameHub{
		store:    mem,
		conn:     mem.Connect(),
		config:   config,
		recorder: recorder,
		logger:   logger,
		sessions: make(map[*Session]*store.Conn),
		users:    make(map[string]*Session),
		done:     make(chan struct{}),
		now:      time.Now,
	}

	// Start cleanup goroutine
	go hub.cleanupLoop()

	return hub
}

// Open creates a session for userID on its own store connection. An
// identity holds at most one live session: the player record in a room is
// keyed by user, so a second session would share it and closing either
// would remove it. Open fails with domain.ErrSessionActive until the
// existing session is released.
func (h *GameHub) Open(userID string, view View, opts ...SessionOption) (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.users[userID]; ok {
		return nil, domain.ErrSessionActive
	}

	conn := h.store.Connect()
	if h.recorder != nil {
		opts = append([]SessionOption{WithRecorder(h.recorder)}, opts...)
	}
	session := NewSession(userID, conn, view, h.config.Settings, h.logger, opts...)
	h.sessions[session] = conn
	h.users[userID] = session

	h.logger.Debug().Str("user", userID).Str("conn", conn.ID()).Msg("session opened")
	return session, nil
}

// Release closes a session and its connection. The player is not removed
// from the room explicitly; closing the connection fires the presence
// cleanup, which is the same path a dropped network takes.
func (h *GameHub) Release(session *Session) {
	h.mu.Lock()
	conn, ok := h.sessions[session]
	delete(h.sessions, session)
	if h.users[session.UserID()] == session {
		delete(h.users, session.UserID())
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	session.Close()
	if err := conn.Close(); err != nil {
		h.logger.Warn().Err(err).Msg("failed to close store connection")
	}
	h.logger.Debug().Str("user", session.UserID()).Msg("session released")
}

// LookupRoom reads a room by code
func (h *GameHub) LookupRoom(ctx context.Context, code string) (*domain.Room, error) {
	snap, err := h.conn.Read(ctx, roomPath(code))
	if err != nil {
		return nil, err
	}
	return decodeRoom(snap)
}

// Settings returns the game settings sessions are opened with
func (h *GameHub) Settings() Settings {
	return h.config.Settings
}

// SessionCount returns the number of open sessions
func (h *GameHub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Stats summarizes the rooms in the store
type Stats struct {
	Sessions int            `json:"sessions"`
	Rooms    int            `json:"rooms"`
	Players  int            `json:"players"`
	ByStatus map[string]int `json:"byStatus"`
}

// Stats counts sessions, rooms and present players
func (h *GameHub) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{
		Sessions: h.SessionCount(),
		ByStatus: make(map[string]int),
	}

	snap, err := h.conn.Read(ctx, "rooms")
	if err != nil {
		return stats, err
	}
	rooms := make(map[string]domain.Room)
	if err := snap.Decode(&rooms); err != nil {
		return stats, err
	}
	for _, room := range rooms {
		stats.Rooms++
		stats.Players += room.PlayerCount()
		stats.ByStatus[room.Status.String()]++
	}
	return stats, nil
}

// RoomCount returns the number of rooms in the store
func (h *GameHub) RoomCount(ctx context.Context) int {
	stats, err := h.Stats(ctx)
	if err != nil {
		return 0
	}
	return stats.Rooms
}

// Close shuts down the hub and all sessions
func (h *GameHub) Close() {
	h.once.Do(func() { close(h.done) })

	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[*Session]*store.Conn)
	h.users = make(map[string]*Session)
	h.mu.Unlock()

	for session, conn := range sessions {
		session.Close()
		_ = conn.Close()
	}
	_ = h.conn.Close()
}

// cleanupLoop periodically removes finished and abandoned rooms
func (h *GameHub) cleanupLoop() {
	ticker := time.NewTicker(h.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.cleanupRooms(context.Background())
		}
	}
}

// cleanupRooms removes rooms that finished longer ago than the retention
// period, and rooms of any status whose players have all gone and which
// are older than the same period. It returns how many were removed.
func (h *GameHub) cleanupRooms(ctx context.Context) int {
	snap, err := h.conn.Read(ctx, "rooms")
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to scan rooms")
		return 0
	}
	rooms := make(map[string]*domain.Room)
	if err := snap.Decode(&rooms); err != nil {
		h.logger.Error().Err(err).Msg("failed to decode rooms")
		return 0
	}

	cutoff := h.now().Add(-h.config.FinishedRoomRetention)
	removed := 0
	for code, room := range rooms {
		if room == nil || !roomExpired(room, cutoff) {
			continue
		}
		// Re-checked inside the transaction: a player may have joined since
		_, err := h.conn.Transact(ctx, roomPath(code), func(cur store.Snapshot) (any, error) {
			room, err := decodeRoom(cur)
			if err != nil || !roomExpired(room, cutoff) {
				return nil, store.ErrAbort
			}
			return nil, nil
		})
		if err == nil {
			removed++
			h.logger.Info().Str("room", code).Str("status", room.Status.String()).Msg("room cleaned up")
		}
	}
	return removed
}

func roomExpired(room *domain.Room, cutoff time.Time) bool {
	if room.Status == domain.StatusFinished && !room.FinishedAt.Time().After(cutoff) {
		return true
	}
	return room.PlayerCount() == 0 && !room.CreatedAt.Time().After(cutoff)
}
