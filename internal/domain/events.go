package domain

import "time"

// EventType represents the type of event pushed to a client
type EventType string

const (
	EventRoomUpdate      EventType = "room_update"
	EventPlayersUpdate   EventType = "players_update"
	EventGameStateUpdate EventType = "game_state_update"
	EventScoresUpdate    EventType = "scores_update"
	EventRoomDeleted     EventType = "room_deleted"
	EventTimerTick       EventType = "timer_tick"
	EventGameStarted     EventType = "game_started"
	EventGameFinished    EventType = "game_finished"
	EventNotice          EventType = "notice"
)

// GameEvent is a notification for one client about its current room
type GameEvent struct {
	Type      EventType   `json:"type"`
	RoomCode  string      `json:"roomCode,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEvent creates a new game event
func NewEvent(eventType EventType, roomCode string, payload interface{}) *GameEvent {
	return &GameEvent{
		Type:      eventType,
		RoomCode:  roomCode,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// Payload types for different events

// RoomUpdatePayload carries the room-level fields
type RoomUpdatePayload struct {
	HostID        string   `json:"hostId"`
	Status        Status   `json:"status"`
	MaxPlayers    int      `json:"maxPlayers"`
	TurnOrder     []string `json:"turnOrder,omitempty"`
	CurrentTurn   int      `json:"currentTurn"`
	TurnHolder    string   `json:"turnHolder,omitempty"`
	TurnStartedAt int64    `json:"turnStartedAt,omitempty"`
	CanStart      bool     `json:"canStart"`
}

// PlayersUpdatePayload is sent when the roster changes
type PlayersUpdatePayload struct {
	Players []PlayerInfo `json:"players"`
	HostID  string       `json:"hostId"`
}

// ScoreLine is one player's sheet with derived totals
type ScoreLine struct {
	UserID     string      `json:"userId"`
	Sheet      *ScoreSheet `json:"sheet"`
	UpperTotal int         `json:"upperTotal"`
	Bonus      int         `json:"bonus"`
	Total      int         `json:"total"`
	Left       bool        `json:"left"`
}

// ScoresUpdatePayload is sent when any sheet changes
type ScoresUpdatePayload struct {
	Scores []ScoreLine `json:"scores"`
}

// GameStatePayload mirrors the dice along with a preview for the holder
type GameStatePayload struct {
	GameState
	Preview      map[Category]int `json:"preview,omitempty"`
	Combinations []Category       `json:"combinations,omitempty"`
}

// TimerKind distinguishes the two countdowns
type TimerKind string

const (
	TimerTurn      TimerKind = "turn"
	TimerAutoStart TimerKind = "auto_start"
)

// TimerTickPayload is sent every second while a countdown runs
type TimerTickPayload struct {
	Kind             TimerKind `json:"kind"`
	RemainingSeconds int       `json:"remainingSeconds"`
}

// GameStartedPayload carries the shuffled order for the reveal animation
type GameStartedPayload struct {
	TurnOrder []PlayerInfo `json:"turnOrder"`
}

// GameFinishedPayload carries the final standings
type GameFinishedPayload struct {
	Rankings []Ranking `json:"rankings"`
}

// NoticePayload is a transient message for the player
type NoticePayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScoreLines builds per-player sheets in turn order, flagging departed players
func (r *Room) ScoreLines() []ScoreLine {
	ids := r.TurnOrder
	if len(ids) == 0 {
		for _, p := range r.GetPlayerInfoList() {
			ids = append(ids, p.ID)
		}
	}
	lines := make([]ScoreLine, 0, len(ids))
	for _, id := range ids {
		sheet := r.Scores[id]
		if sheet == nil {
			sheet = NewScoreSheet()
		}
		lines = append(lines, ScoreLine{
			UserID:     id,
			Sheet:      sheet,
			UpperTotal: sheet.UpperTotal(),
			Bonus:      sheet.Bonus(),
			Total:      sheet.Total(),
			Left:       !r.IsPresent(id),
		})
	}
	return lines
}
