package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"yacht/internal/domain"
	"yacht/internal/store"
)

const (
	// DefaultRoomCodeLength is the default number of digits in a room code
	DefaultRoomCodeLength = 6

	// DefaultCodeAttempts bounds how many codes CreateRoom tries
	DefaultCodeAttempts = 10

	// DefaultRandomMatchWindow is how many waiting rooms a random match scans
	DefaultRandomMatchWindow = 10
)

// RoomCodeChars are the characters used for room codes
const RoomCodeChars = "0123456789"

var errCodeTaken = errors.New("room code taken")

// RandomCode returns a numeric code of width digits, leading zeros allowed
func RandomCode(width int) string {
	b := make([]byte, width)
	rand.Read(b)

	code := make([]byte, width)
	for i := range code {
		code[i] = RoomCodeChars[int(b[i])%len(RoomCodeChars)]
	}
	return string(code)
}

// ValidRoomCode reports whether code has the configured shape
func ValidRoomCode(code string, width int) bool {
	if len(code) != width {
		return false
	}
	for _, c := range code {
		if !strings.ContainsRune(RoomCodeChars, c) {
			return false
		}
	}
	return true
}

// CreateRoom creates a waiting room hosted by the caller and enters it.
// Each candidate code is claimed inside a transaction that fails if the
// code is in use, so two creators can never share a room.
func (s *Session) CreateRoom(ctx context.Context, nickname string) (string, error) {
	nickname, err := domain.NormalizeNickname(nickname)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lobbyLocked(); err != nil {
		return "", err
	}
	return s.createRoomLocked(ctx, nickname)
}

func (s *Session) createRoomLocked(ctx context.Context, nickname string) (string, error) {
	for attempt := 0; attempt < s.settings.CodeAttempts; attempt++ {
		code := s.codes(s.settings.CodeLength)
		_, err := s.conn.Transact(ctx, roomPath(code), func(cur store.Snapshot) (any, error) {
			if cur.Exists {
				return nil, errCodeTaken
			}
			return domain.NewRoom(code, s.userID, nickname, s.settings.MaxPlayers), nil
		})
		if errors.Is(err, errCodeTaken) {
			s.logger.Debug().Str("room", code).Int("attempt", attempt+1).Msg("room code collision")
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create room: %w", err)
		}

		if err := s.attachLocked(ctx, code, nickname); err != nil {
			s.abandonLocked(code)
			return "", err
		}
		s.logger.Info().Str("room", code).Msg("room created")
		return code, nil
	}
	return "", domain.ErrRoomCodeExhausted
}

// JoinRoomByCode joins a waiting room with free capacity
func (s *Session) JoinRoomByCode(ctx context.Context, code, nickname string) (string, error) {
	nickname, err := domain.NormalizeNickname(nickname)
	if err != nil {
		return "", err
	}
	code = strings.TrimSpace(code)
	if !ValidRoomCode(code, s.settings.CodeLength) {
		return "", domain.ErrRoomNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lobbyLocked(); err != nil {
		return "", err
	}
	if err := s.joinLocked(ctx, code, nickname); err != nil {
		return "", err
	}
	return code, nil
}

func (s *Session) joinLocked(ctx context.Context, code, nickname string) error {
	_, err := s.conn.Transact(ctx, roomPath(code), func(cur store.Snapshot) (any, error) {
		room, err := decodeRoom(cur)
		if err != nil {
			return nil, err
		}
		if _, err := room.Join(s.userID, nickname); err != nil {
			return nil, err
		}
		return room, nil
	})
	if err != nil {
		return err
	}

	if err := s.attachLocked(ctx, code, nickname); err != nil {
		s.abandonLocked(code)
		return err
	}
	s.logger.Info().Str("room", code).Msg("joined room")
	return nil
}

// JoinRandomMatch joins the first waiting room with space, deleting empty
// rooms left behind by dropped connections on the way. With nothing to
// join it creates a room.
func (s *Session) JoinRandomMatch(ctx context.Context, nickname string) (string, error) {
	nickname, err := domain.NormalizeNickname(nickname)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lobbyLocked(); err != nil {
		return "", err
	}

	candidates, err := s.conn.Query(ctx, "rooms", "status", domain.StatusWaiting, s.settings.RandomMatchWindow)
	if err != nil {
		return "", fmt.Errorf("scan waiting rooms: %w", err)
	}

	for _, snap := range candidates {
		room, err := decodeRoom(snap)
		if err != nil {
			s.logger.Warn().Err(err).Str("room", snap.Key).Msg("skipping unreadable room")
			continue
		}

		if room.PlayerCount() == 0 {
			s.reclaimLocked(ctx, room.Code)
			continue
		}
		if !room.CanJoin() {
			continue
		}

		err = s.joinLocked(ctx, room.Code, nickname)
		switch {
		case err == nil:
			return room.Code, nil
		case errors.Is(err, domain.ErrRoomFull), errors.Is(err, domain.ErrRoomNotJoinable), errors.Is(err, domain.ErrRoomNotFound):
			// Lost a race for this room
			continue
		default:
			return "", err
		}
	}

	return s.createRoomLocked(ctx, nickname)
}

// reclaimLocked deletes a zombie room, re-checking inside the transaction
// that it is still empty
func (s *Session) reclaimLocked(ctx context.Context, code string) {
	_, err := s.conn.Transact(ctx, roomPath(code), func(cur store.Snapshot) (any, error) {
		room, err := decodeRoom(cur)
		if err != nil {
			return nil, store.ErrAbort
		}
		if room.PlayerCount() > 0 {
			return nil, store.ErrAbort
		}
		return nil, nil
	})
	switch {
	case err == nil:
		s.logger.Info().Str("room", code).Msg("reclaimed empty room")
	case !errors.Is(err, store.ErrAbort):
		s.logger.Warn().Err(err).Str("room", code).Msg("failed to reclaim empty room")
	}
}

// LeaveRoom removes the caller from the room, deleting the room if it is
// now empty, and returns the session to the lobby
func (s *Session) LeaveRoom(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.roomCode == "" {
		return domain.ErrNotInRoom
	}
	code := s.roomCode

	if err := s.leaveLocked(ctx, code); err != nil {
		return err
	}
	if err := s.conn.CancelOnDisconnect(ctx, playerPath(code, s.userID)); err != nil {
		s.logger.Warn().Err(err).Msg("failed to cancel presence cleanup")
	}
	s.detachLocked()
	s.logger.Info().Str("room", code).Msg("left room")
	return nil
}

func (s *Session) leaveLocked(ctx context.Context, code string) error {
	_, err := s.conn.Transact(ctx, roomPath(code), func(cur store.Snapshot) (any, error) {
		room, err := decodeRoom(cur)
		if err != nil {
			return nil, store.ErrAbort
		}
		empty, err := room.Leave(s.userID)
		if errors.Is(err, domain.ErrPlayerNotFound) && !empty {
			return nil, store.ErrAbort
		}
		if empty {
			return nil, nil
		}
		return room, nil
	})
	if err != nil && !errors.Is(err, store.ErrAbort) {
		return fmt.Errorf("leave room: %w", err)
	}
	return nil
}

// abandonLocked undoes a join whose subscription could not be set up
func (s *Session) abandonLocked(code string) {
	ctx, cancel := s.writeContext()
	defer cancel()
	if err := s.leaveLocked(ctx, code); err != nil {
		s.logger.Error().Err(err).Str("room", code).Msg("failed to undo join")
	}
}

func (s *Session) lobbyLocked() error {
	if s.closed {
		return store.ErrClosed
	}
	if s.roomCode != "" {
		return domain.ErrAlreadyInRoom
	}
	return nil
}

func (s *Session) inRoomLocked() (*domain.Room, error) {
	if s.closed {
		return nil, store.ErrClosed
	}
	if s.roomCode == "" {
		return nil, domain.ErrNotInRoom
	}
	if s.room == nil {
		// Subscribed but the first notification has not landed yet
		return s.readRoomLocked()
	}
	return s.room, nil
}

func (s *Session) readRoomLocked() (*domain.Room, error) {
	snap, err := s.conn.Read(s.ctx, roomPath(s.roomCode))
	if err != nil {
		return nil, err
	}
	return decodeRoom(snap)
}
