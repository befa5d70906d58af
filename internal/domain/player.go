package domain

import (
	"strings"
	"unicode/utf8"
)

// MaxNicknameLength is counted in characters, not bytes
const MaxNicknameLength = 10

// Player is a present member of a room. Its record existing in the store
// is what makes the player connected.
type Player struct {
	UserID    string    `json:"userId"`
	Nickname  string    `json:"nickname"`
	JoinOrder int       `json:"order"`
	JoinedAt  Timestamp `json:"joinedAt"`
}

// NewPlayer creates a player record for the given identity
func NewPlayer(userID, nickname string, joinOrder int) *Player {
	return &Player{
		UserID:    userID,
		Nickname:  nickname,
		JoinOrder: joinOrder,
		JoinedAt:  ServerTime(),
	}
}

// NormalizeNickname trims the nickname and checks it is 1-10 characters
func NormalizeNickname(nickname string) (string, error) {
	trimmed := strings.TrimSpace(nickname)
	n := utf8.RuneCountInString(trimmed)
	if n == 0 || n > MaxNicknameLength {
		return "", ErrInvalidNickname
	}
	return trimmed, nil
}

// PlayerInfo is the view of a player sent to clients
type PlayerInfo struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Order    int    `json:"order"`
	IsHost   bool   `json:"isHost"`
}

// ToInfo converts a Player to PlayerInfo
func (p *Player) ToInfo(hostID string) PlayerInfo {
	return PlayerInfo{
		ID:       p.UserID,
		Nickname: p.Nickname,
		Order:    p.JoinOrder,
		IsHost:   p.UserID == hostID,
	}
}
