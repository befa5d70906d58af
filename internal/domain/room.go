package domain

import (
	"math/rand/v2"
	"sort"
)

const (
	// DefaultMaxPlayers is the room capacity
	DefaultMaxPlayers = 4

	// MinPlayers is the smallest roster that can start a game
	MinPlayers = 2
)

// Room is one game session as stored under rooms/{code}, including its
// players, score sheets and the mirrored dice of the current turn.
type Room struct {
	Code          string                 `json:"roomCode"`
	HostID        string                 `json:"hostId"`
	Status        Status                 `json:"status"`
	MaxPlayers    int                    `json:"maxPlayers"`
	TurnOrder     []string               `json:"turnOrder,omitempty"`
	CurrentTurn   int                    `json:"currentTurn"`
	TurnStartedAt Timestamp              `json:"turnStartedAt"`
	CreatedAt     Timestamp              `json:"createdAt"`
	StartedAt     Timestamp              `json:"startedAt"`
	FinishedAt    Timestamp              `json:"finishedAt"`
	Players       map[string]*Player     `json:"players,omitempty"`
	Scores        map[string]*ScoreSheet `json:"scores,omitempty"`
	GameState     *GameState             `json:"gameState,omitempty"`
}

// NewRoom creates a waiting room with its creator as host and first player
func NewRoom(code, hostID, nickname string, maxPlayers int) *Room {
	if maxPlayers <= 0 {
		maxPlayers = DefaultMaxPlayers
	}
	return &Room{
		Code:       code,
		HostID:     hostID,
		Status:     StatusWaiting,
		MaxPlayers: maxPlayers,
		CreatedAt:  ServerTime(),
		Players: map[string]*Player{
			hostID: NewPlayer(hostID, nickname, 0),
		},
	}
}

// PlayerCount returns the number of present players
func (r *Room) PlayerCount() int {
	return len(r.Players)
}

// IsPresent reports whether the identity has a player record
func (r *Room) IsPresent(userID string) bool {
	_, ok := r.Players[userID]
	return ok
}

// IsHost checks if the given identity is the host
func (r *Room) IsHost(userID string) bool {
	return r.HostID == userID
}

// CanJoin checks if a new player could join right now
func (r *Room) CanJoin() bool {
	return r.Status == StatusWaiting && r.PlayerCount() < r.MaxPlayers
}

// CanStart checks if the host could start the game
func (r *Room) CanStart() bool {
	return r.Status == StatusWaiting && r.PlayerCount() >= MinPlayers
}

// Join adds a player. Joining again with a present identity only refreshes
// the nickname.
func (r *Room) Join(userID, nickname string) (*Player, error) {
	if r.Status != StatusWaiting {
		return nil, ErrRoomNotJoinable
	}

	if p, ok := r.Players[userID]; ok {
		p.Nickname = nickname
		return p, nil
	}

	if r.PlayerCount() >= r.MaxPlayers {
		return nil, ErrRoomFull
	}

	if r.Players == nil {
		r.Players = make(map[string]*Player)
	}
	player := NewPlayer(userID, nickname, r.nextJoinOrder())
	r.Players[userID] = player

	// An empty room left behind by disconnects has no host to defer to
	if r.HostID == "" || !r.IsPresent(r.HostID) {
		r.HostID = r.ElectHost()
	}

	return player, nil
}

// nextJoinOrder is the current count, bumped past any order still held by
// a player so join orders stay unique after departures
func (r *Room) nextJoinOrder() int {
	next := r.PlayerCount()
	for _, p := range r.Players {
		if p.JoinOrder >= next {
			next = p.JoinOrder + 1
		}
	}
	return next
}

// Leave removes a player and their score sheet. It reports whether the room
// is now empty and should be deleted. A departing host is replaced by the
// oldest remaining player; a departing turn-holder passes the turn.
func (r *Room) Leave(userID string) (empty bool, err error) {
	if !r.IsPresent(userID) {
		return r.PlayerCount() == 0, ErrPlayerNotFound
	}

	wasHolder := r.Status == StatusPlaying && r.TurnHolder() == userID

	delete(r.Players, userID)
	delete(r.Scores, userID)

	if r.PlayerCount() == 0 {
		return true, nil
	}

	if r.HostID == userID {
		r.HostID = r.ElectHost()
	}

	if wasHolder {
		r.AdvanceTurn()
	}

	return false, nil
}

// ElectHost returns the present player with the smallest join order.
// Ties, which only arise from foreign writes, break on identity.
func (r *Room) ElectHost() string {
	best := ""
	bestOrder := 0
	for id, p := range r.Players {
		if best == "" || p.JoinOrder < bestOrder || p.JoinOrder == bestOrder && id < best {
			best, bestOrder = id, p.JoinOrder
		}
	}
	return best
}

// NeedsHost reports whether the listed host is absent from a non-empty room
func (r *Room) NeedsHost() bool {
	return r.PlayerCount() > 0 && !r.IsPresent(r.HostID)
}

// GetPlayerInfoList returns present players ordered by join order
func (r *Room) GetPlayerInfoList() []PlayerInfo {
	players := make([]PlayerInfo, 0, len(r.Players))
	for _, p := range r.Players {
		players = append(players, p.ToInfo(r.HostID))
	}
	sort.Slice(players, func(i, j int) bool {
		return players[i].Order < players[j].Order
	})
	return players
}

// Start shuffles the present players into a turn order and begins play.
// intn picks a uniform index in [0,n); nil uses math/rand.
func (r *Room) Start(callerID string, intn func(n int) int) ([]string, error) {
	if !r.IsHost(callerID) {
		return nil, ErrNotHost
	}

	if !r.Status.CanTransitionTo(StatusPlaying) {
		return nil, ErrInvalidTransition
	}

	if r.PlayerCount() < MinPlayers {
		return nil, ErrInsufficientPlayers
	}

	ids := make([]string, 0, len(r.Players))
	for id := range r.Players {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if intn == nil {
		intn = rand.IntN
	}
	r.TurnOrder = ShuffleOrder(ids, intn)

	r.Scores = make(map[string]*ScoreSheet, len(ids))
	for _, id := range ids {
		r.Scores[id] = NewScoreSheet()
	}

	r.Status = StatusPlaying
	r.CurrentTurn = 0
	r.StartedAt = ServerTime()
	r.TurnStartedAt = ServerTime()
	r.GameState = NewGameState(1)

	order := make([]string, len(r.TurnOrder))
	copy(order, r.TurnOrder)
	return order, nil
}

// ShuffleOrder returns a Fisher-Yates permutation of ids
func ShuffleOrder(ids []string, intn func(n int) int) []string {
	order := make([]string, len(ids))
	copy(order, ids)
	for i := len(order) - 1; i > 0; i-- {
		j := intn(i + 1)
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// Sheet returns the player's score sheet, creating it if the store pruned
// an empty one
func (r *Room) Sheet(userID string) *ScoreSheet {
	if r.Scores == nil {
		r.Scores = make(map[string]*ScoreSheet)
	}
	sheet, ok := r.Scores[userID]
	if !ok || sheet == nil {
		sheet = NewScoreSheet()
		r.Scores[userID] = sheet
	}
	return sheet
}

// End finishes the game
func (r *Room) End() error {
	if !r.Status.CanTransitionTo(StatusFinished) {
		return ErrInvalidTransition
	}
	r.Status = StatusFinished
	r.FinishedAt = ServerTime()
	return nil
}
