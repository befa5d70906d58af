package ws

import (
	"encoding/json"
	"errors"
	"time"

	"yacht/internal/domain"
)

// MessageType represents the type of WebSocket message
type MessageType string

// Client → Server message types
const (
	MsgCreateRoom     MessageType = "create_room"
	MsgJoinRoom       MessageType = "join_room"
	MsgRandomMatch    MessageType = "random_match"
	MsgStartGame      MessageType = "start_game"
	MsgLeaveRoom      MessageType = "leave_room"
	MsgRollDice       MessageType = "roll_dice"
	MsgToggleKeep     MessageType = "toggle_keep"
	MsgSelectCategory MessageType = "select_category"
	MsgPing           MessageType = "ping"
)

// Server → Client message types. Game events keep the names of
// domain.EventType.
const (
	MsgConnected       MessageType = "connected"
	MsgRoomJoined      MessageType = "room_joined"
	MsgRoomUpdate      MessageType = MessageType(domain.EventRoomUpdate)
	MsgPlayersUpdate   MessageType = MessageType(domain.EventPlayersUpdate)
	MsgGameStateUpdate MessageType = MessageType(domain.EventGameStateUpdate)
	MsgScoresUpdate    MessageType = MessageType(domain.EventScoresUpdate)
	MsgRoomDeleted     MessageType = MessageType(domain.EventRoomDeleted)
	MsgTimerTick       MessageType = MessageType(domain.EventTimerTick)
	MsgGameStarted     MessageType = MessageType(domain.EventGameStarted)
	MsgGameFinished    MessageType = MessageType(domain.EventGameFinished)
	MsgNotice          MessageType = MessageType(domain.EventNotice)
	MsgError           MessageType = "error"
	MsgPong            MessageType = "pong"
)

// ClientMessage represents a message from client to server
type ClientMessage struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerMessage represents a message from server to client
type ServerMessage struct {
	Type      MessageType `json:"type"`
	RoomCode  string      `json:"roomCode,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// NewServerMessage creates a new server message with current timestamp
func NewServerMessage(msgType MessageType, payload interface{}) *ServerMessage {
	return &ServerMessage{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// eventMessage converts a session notification to a server message
func eventMessage(ev *domain.GameEvent) *ServerMessage {
	return &ServerMessage{
		Type:      MessageType(ev.Type),
		RoomCode:  ev.RoomCode,
		Payload:   ev.Payload,
		Timestamp: ev.Timestamp.UTC().Format(time.RFC3339),
	}
}

// Client message payloads

// NicknamePayload is the payload for create_room and random_match
type NicknamePayload struct {
	Nickname string `json:"nickname"`
}

// JoinRoomPayload is the payload for join_room
type JoinRoomPayload struct {
	RoomCode string `json:"roomCode"`
	Nickname string `json:"nickname"`
}

// ToggleKeepPayload is the payload for toggle_keep
type ToggleKeepPayload struct {
	Index *int `json:"index"`
}

// SelectCategoryPayload is the payload for select_category
type SelectCategoryPayload struct {
	Category domain.Category `json:"category"`
}

// Server message payloads

// ConnectedPayload is the payload for connected message. The token should
// be kept by the browser and sent back on reconnect.
type ConnectedPayload struct {
	UserID    string    `json:"userId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// RoomJoinedPayload confirms the room the client is now in
type RoomJoinedPayload struct {
	RoomCode string `json:"roomCode"`
	Created  bool   `json:"created"`
}

// ErrorPayload is the payload for error message
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeInvalidMessage    = "INVALID_MESSAGE"
	ErrCodeRoomNotFound      = "ROOM_NOT_FOUND"
	ErrCodeRoomNotJoinable   = "ROOM_NOT_JOINABLE"
	ErrCodeRoomFull          = "ROOM_FULL"
	ErrCodeRoomCodeExhausted = "ROOM_CODE_EXHAUSTED"
	ErrCodeNotHost           = "NOT_HOST"
	ErrCodeNotEnoughPlayers  = "NOT_ENOUGH_PLAYERS"
	ErrCodeNotYourTurn       = "NOT_YOUR_TURN"
	ErrCodeNoRollsLeft       = "NO_ROLLS_LEFT"
	ErrCodeRollInFlight      = "ROLL_IN_FLIGHT"
	ErrCodeCategoryFilled    = "CATEGORY_FILLED"
	ErrCodeNotYetRolled      = "NOT_YET_ROLLED"
	ErrCodeOutOfRolls        = "OUT_OF_ROLLS"
	ErrCodeUnknownCategory   = "UNKNOWN_CATEGORY"
	ErrCodeInvalidDie        = "INVALID_DIE"
	ErrCodeInvalidNickname   = "INVALID_NICKNAME"
	ErrCodeNotInRoom         = "NOT_IN_ROOM"
	ErrCodeAlreadyInRoom     = "ALREADY_IN_ROOM"
	ErrCodeGameNotPlaying    = "GAME_NOT_PLAYING"
	ErrCodeSessionActive     = "SESSION_ACTIVE"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{domain.ErrRoomNotFound, ErrCodeRoomNotFound},
	{domain.ErrRoomNotJoinable, ErrCodeRoomNotJoinable},
	{domain.ErrRoomFull, ErrCodeRoomFull},
	{domain.ErrRoomCodeExhausted, ErrCodeRoomCodeExhausted},
	{domain.ErrNotHost, ErrCodeNotHost},
	{domain.ErrInsufficientPlayers, ErrCodeNotEnoughPlayers},
	{domain.ErrNotYourTurn, ErrCodeNotYourTurn},
	{domain.ErrNoRollsLeft, ErrCodeNoRollsLeft},
	{domain.ErrRollInFlight, ErrCodeRollInFlight},
	{domain.ErrCategoryAlreadyFilled, ErrCodeCategoryFilled},
	{domain.ErrNotYetRolled, ErrCodeNotYetRolled},
	{domain.ErrOutOfRolls, ErrCodeOutOfRolls},
	{domain.ErrUnknownCategory, ErrCodeUnknownCategory},
	{domain.ErrInvalidDieIndex, ErrCodeInvalidDie},
	{domain.ErrInvalidNickname, ErrCodeInvalidNickname},
	{domain.ErrNotInRoom, ErrCodeNotInRoom},
	{domain.ErrAlreadyInRoom, ErrCodeAlreadyInRoom},
	{domain.ErrGameNotPlaying, ErrCodeGameNotPlaying},
	{domain.ErrSessionActive, ErrCodeSessionActive},
}

// ErrorCode maps an intent error to its stable wire code. Domain errors
// keep their message; anything else is reported as internal.
func ErrorCode(err error) (code, message string) {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code, ec.err.Error()
		}
	}
	return ErrCodeInternalError, "Internal server error"
}
