package app

import (
	"context"
	"fmt"

	"yacht/internal/domain"
	"yacht/internal/store"
)

// StartGame shuffles the present players into a turn order and begins
// play. Only the host may start. It returns the chosen order.
func (s *Session) StartGame(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.inRoomLocked(); err != nil {
		return nil, err
	}
	return s.startGameLocked(ctx)
}

func (s *Session) startGameLocked(ctx context.Context) ([]string, error) {
	var order []string
	_, err := s.conn.Transact(ctx, roomPath(s.roomCode), func(cur store.Snapshot) (any, error) {
		room, err := decodeRoom(cur)
		if err != nil {
			return nil, err
		}
		order, err = room.Start(s.userID, s.intn)
		if err != nil {
			return nil, err
		}
		return room, nil
	})
	if err != nil {
		return nil, err
	}

	s.autoStart.Stop()
	s.autoStart = nil
	s.logger.Info().Str("room", s.roomCode).Strs("order", order).Msg("game started")
	return order, nil
}

// myTurnLocked checks the caller may act on the dice
func (s *Session) myTurnLocked() (*domain.Room, error) {
	room, err := s.inRoomLocked()
	if err != nil {
		return nil, err
	}
	if room.Status != domain.StatusPlaying {
		return nil, domain.ErrGameNotPlaying
	}
	if !room.IsTurnHolder(s.userID) {
		return nil, domain.ErrNotYourTurn
	}
	return room, nil
}

// Roll rolls the un-kept dice and publishes them. A second roll while one
// is in flight is rejected rather than queued. The session lock is not held
// while the dice settle so notifications keep flowing; the rolling flag
// keeps other intents off the dice until they are published.
func (s *Session) Roll(ctx context.Context) error {
	s.mu.Lock()
	if _, err := s.myTurnLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.rolling || s.rig.Rolling() {
		s.mu.Unlock()
		return domain.ErrRollInFlight
	}
	if s.rig.RollsLeft() <= 0 {
		s.mu.Unlock()
		return domain.ErrNoRollsLeft
	}
	code, key := s.roomCode, s.turnKey
	before := s.rig.Snapshot(s.roundLocked())
	s.rolling = true
	s.mu.Unlock()

	rolled := s.rig.Roll(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.finishRollLocked()

	if !rolled {
		if s.rig.RollsLeft() > 0 {
			return domain.ErrRollInFlight
		}
		return domain.ErrNoRollsLeft
	}
	if s.roomCode != code || s.turnKey != key {
		// The turn ended while the dice were settling
		if s.room != nil && s.room.GameState != nil {
			s.rig.Restore(*s.room.GameState)
		} else {
			s.rig.NewTurn()
		}
		return domain.ErrNotYourTurn
	}
	return s.publishDiceLocked(ctx, before)
}

// finishRollLocked closes the rolling window and runs an auto-play that
// came due while the dice were settling
func (s *Session) finishRollLocked() {
	s.rolling = false
	if !s.autoPlayDue {
		return
	}
	s.autoPlayDue = false
	s.expireTurnLocked()
}

// rollLocked rolls while holding the session lock, used by auto-play
func (s *Session) rollLocked(ctx context.Context) error {
	before := s.rig.Snapshot(s.roundLocked())
	if !s.rig.Roll(ctx) {
		if s.rig.RollsLeft() > 0 {
			return domain.ErrRollInFlight
		}
		return domain.ErrNoRollsLeft
	}
	return s.publishDiceLocked(ctx, before)
}

// ToggleKeep flips whether die i is held for the next roll
func (s *Session) ToggleKeep(ctx context.Context, i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.myTurnLocked(); err != nil {
		return err
	}
	if s.rolling {
		return domain.ErrRollInFlight
	}

	before := s.rig.Snapshot(s.roundLocked())
	if err := s.rig.ToggleKeep(i); err != nil {
		return err
	}
	return s.publishDiceLocked(ctx, before)
}

// publishDiceLocked writes the rig to the room's game state. If the write
// fails the rig is put back to before so local state matches the store.
func (s *Session) publishDiceLocked(ctx context.Context, before domain.GameState) error {
	state := s.rig.Snapshot(s.roundLocked())
	key := s.turnKey

	_, err := s.conn.Transact(ctx, roomPath(s.roomCode), func(cur store.Snapshot) (any, error) {
		room, err := decodeRoom(cur)
		if err != nil {
			return nil, err
		}
		if !room.IsTurnHolder(s.userID) || room.TurnStartedAt.Millis != key {
			return nil, domain.ErrNotYourTurn
		}
		room.GameState = &state
		return room, nil
	})
	if err != nil {
		s.rig.Restore(before)
		return fmt.Errorf("publish dice: %w", err)
	}
	return nil
}

// SelectCategory scores the current dice in category and passes the turn,
// in one transaction. It returns the points scored.
func (s *Session) SelectCategory(ctx context.Context, category domain.Category) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.myTurnLocked()
	if err != nil {
		return 0, err
	}
	if s.rolling {
		return 0, domain.ErrRollInFlight
	}
	if s.rig.RollsLeft() >= domain.RollsPerTurn {
		return 0, domain.ErrNotYetRolled
	}
	if !category.Valid() {
		return 0, domain.ErrUnknownCategory
	}
	if room.Scores[s.userID].Get(category).IsSet() {
		return 0, domain.ErrCategoryAlreadyFilled
	}
	return s.selectLocked(ctx, category)
}

func (s *Session) selectLocked(ctx context.Context, category domain.Category) (int, error) {
	dice := s.rig.Values()
	key := s.turnKey

	var (
		score    int
		finished bool
	)
	_, err := s.conn.Transact(ctx, roomPath(s.roomCode), func(cur store.Snapshot) (any, error) {
		room, err := decodeRoom(cur)
		if err != nil {
			return nil, err
		}
		if room.TurnStartedAt.Millis != key {
			return nil, domain.ErrNotYourTurn
		}
		if score, err = room.ScoreCategory(s.userID, category, dice); err != nil {
			return nil, err
		}
		finished = room.AdvanceTurn()
		return room, nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info().
		Str("room", s.roomCode).
		Str("category", category.String()).
		Int("score", score).
		Bool("finished", finished).
		Msg("category scored")
	return score, nil
}

// autoPlayLocked plays the turn for a holder whose time ran out: it rolls
// once if the dice were never rolled, then takes the lowest-scoring open
// category
func (s *Session) autoPlayLocked(ctx context.Context) error {
	room, err := s.myTurnLocked()
	if err != nil {
		return err
	}
	if s.rolling {
		return domain.ErrRollInFlight
	}

	if s.rig.RollsLeft() >= domain.RollsPerTurn {
		if err := s.rollLocked(ctx); err != nil {
			return err
		}
	}

	category, _, ok := domain.LowestCategory(s.rig.Values(), room.Scores[s.userID])
	if !ok {
		return domain.ErrCategoryAlreadyFilled
	}
	score, err := s.selectLocked(ctx, category)
	if err != nil {
		return err
	}
	s.view.OnNotice(&domain.NoticePayload{
		Code:    "auto_selected",
		Message: fmt.Sprintf("time is up: %s scored %d", category, score),
	})
	return nil
}
