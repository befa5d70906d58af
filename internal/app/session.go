package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"yacht/internal/archive"
	"yacht/internal/domain"
	"yacht/internal/store"
)

// Settings are the game rules and timings a session plays by
type Settings struct {
	MaxPlayers        int
	CodeLength        int
	CodeAttempts      int
	RandomMatchWindow int

	TurnDuration      time.Duration
	AutoStartDuration time.Duration
	TickInterval      time.Duration
	RollSettle        time.Duration
	WriteTimeout      time.Duration
}

// DefaultSettings returns the standard game settings
func DefaultSettings() Settings {
	return Settings{
		MaxPlayers:        domain.DefaultMaxPlayers,
		CodeLength:        DefaultRoomCodeLength,
		CodeAttempts:      DefaultCodeAttempts,
		RandomMatchWindow: DefaultRandomMatchWindow,
		TurnDuration:      45 * time.Second,
		AutoStartDuration: 120 * time.Second,
		TickInterval:      time.Second,
		WriteTimeout:      5 * time.Second,
	}
}

// ResultRecorder archives the standings of a finished game
type ResultRecorder interface {
	RecordResult(ctx context.Context, r archive.GameResult) error
}

// Session is one client's view of the game: the room it is in, a mirror
// of that room's state and the local dice. Intents, store notifications
// and timer callbacks are serialized on one lock.
type Session struct {
	mu sync.Mutex

	userID   string
	conn     store.Gateway
	view     View
	rig      *domain.DiceRig
	settings Settings
	recorder ResultRecorder
	logger   zerolog.Logger
	codes    func(width int) string
	intn     func(n int) int

	ctx    context.Context
	cancel context.CancelFunc
	closed bool

	// Current room; empty roomCode means the lobby
	roomCode  string
	nickname  string
	sub       store.Subscription
	gen       uint64
	room      *domain.Room
	turnKey   int64
	turnTimer *Countdown
	timerKey  int64
	autoStart *Countdown
	autoFired bool
	recorded  string

	// Set from a Roll's first check until its dice are published or
	// discarded; an expiry in that window is deferred to autoPlayDue
	rolling     bool
	autoPlayDue bool
}

// SessionOption configures a Session
type SessionOption func(*Session)

// WithRecorder archives finished games
func WithRecorder(r ResultRecorder) SessionOption {
	return func(s *Session) { s.recorder = r }
}

// WithCodeGenerator replaces the room code generator
func WithCodeGenerator(codes func(width int) string) SessionOption {
	return func(s *Session) { s.codes = codes }
}

// WithShuffle replaces the random source used for turn order
func WithShuffle(intn func(n int) int) SessionOption {
	return func(s *Session) { s.intn = intn }
}

// WithDiceRig replaces the session's dice
func WithDiceRig(rig *domain.DiceRig) SessionOption {
	return func(s *Session) { s.rig = rig }
}

// NewSession creates a lobby session for userID on conn
func NewSession(userID string, conn store.Gateway, view View, settings Settings, logger zerolog.Logger, opts ...SessionOption) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		userID:   userID,
		conn:     conn,
		view:     view,
		settings: settings,
		logger:   logger.With().Str("user", userID).Logger(),
		codes:    RandomCode,
		intn:     rand.IntN,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rig == nil {
		s.rig = domain.NewDiceRig(domain.WithSettleTime(settings.RollSettle))
	}
	if ev, ok := view.(*EventView); ok {
		ev.bind(s)
	}
	return s
}

// UserID returns the session's identity
func (s *Session) UserID() string {
	return s.userID
}

// RoomCode returns the current room code, or "" in the lobby
func (s *Session) RoomCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomCode
}

func (s *Session) roomCodeLocked() string {
	return s.roomCode
}

// IsMyTurn reports whether the session holds the turn
func (s *Session) IsMyTurn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room != nil && s.room.IsTurnHolder(s.userID)
}

// Dice returns the local dice for rendering
func (s *Session) Dice() domain.GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rig.Snapshot(s.roundLocked())
}

// Room returns a copy of the last mirrored room state, or nil
func (s *Session) Room() *domain.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return nil
	}
	cp := *s.room
	return &cp
}

// Close tears the session down without leaving the room. Presence cleanup
// is left to the store connection closing.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.detachLocked()
	s.cancel()
}

func (s *Session) roundLocked() int {
	if s.room != nil && s.room.GameState != nil {
		return s.room.GameState.Round
	}
	return 1
}

func roomPath(code string) string {
	return "rooms/" + code
}

func playerPath(code, userID string) string {
	return roomPath(code) + "/players/" + userID
}

// writeContext bounds store writes the session makes on its own behalf
func (s *Session) writeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(s.ctx, s.settings.WriteTimeout)
}

// attachLocked makes code the current room and starts mirroring it
func (s *Session) attachLocked(ctx context.Context, code, nickname string) error {
	if err := s.conn.OnDisconnectRemove(ctx, playerPath(code, s.userID)); err != nil {
		return fmt.Errorf("register presence: %w", err)
	}

	s.gen++
	gen := s.gen
	sub, err := s.conn.Subscribe(roomPath(code), func(snap store.Snapshot) {
		s.onRoomSnapshot(gen, snap)
	})
	if err != nil {
		return fmt.Errorf("subscribe room %s: %w", code, err)
	}

	s.roomCode = code
	s.nickname = nickname
	s.sub = sub
	s.room = nil
	s.turnKey = 0
	s.autoFired = false
	s.autoPlayDue = false
	s.recorded = ""
	s.rig.NewTurn()

	s.logger.Info().Str("room", code).Msg("entered room")
	return nil
}

// detachLocked returns the session to the lobby. Notifications still in
// flight for the old subscription are discarded by the generation check.
func (s *Session) detachLocked() {
	if s.sub != nil {
		s.conn.Unsubscribe(s.sub)
		s.sub = nil
	}
	s.gen++
	s.stopTimersLocked()
	s.roomCode = ""
	s.room = nil
	s.turnKey = 0
	s.autoPlayDue = false
	s.rig.NewTurn()
}

func (s *Session) stopTimersLocked() {
	s.turnTimer.Stop()
	s.turnTimer = nil
	s.timerKey = 0
	s.autoStart.Stop()
	s.autoStart = nil
}

// onRoomSnapshot mirrors a pushed room state
func (s *Session) onRoomSnapshot(gen uint64, snap store.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || gen != s.gen || s.roomCode == "" {
		return
	}

	if !snap.Exists {
		code := s.roomCode
		s.logger.Info().Str("room", code).Msg("room deleted")
		_ = s.conn.CancelOnDisconnect(s.ctx, playerPath(code, s.userID))
		s.detachLocked()
		s.view.OnRoomDeleted(code)
		return
	}

	var room domain.Room
	if err := snap.Decode(&room); err != nil {
		s.logger.Error().Err(err).Str("room", s.roomCode).Msg("failed to decode room")
		return
	}

	prev := s.room
	s.room = &room

	s.syncTurnLocked(&room)
	s.notifyLocked(prev, &room)
	s.syncTimersLocked(&room)
	s.repairLocked(&room)
}

// syncTurnLocked resets the dice when a new turn begins and mirrors the
// turn-holder's dice while it is someone else's turn
func (s *Session) syncTurnLocked(room *domain.Room) {
	if room.Status != domain.StatusPlaying {
		return
	}
	newTurn := room.TurnStartedAt.Millis != s.turnKey
	if newTurn {
		s.turnKey = room.TurnStartedAt.Millis
		s.autoPlayDue = false
		s.rig.NewTurn()
	}
	if room.GameState == nil {
		return
	}
	if newTurn || !room.IsTurnHolder(s.userID) {
		s.rig.Restore(*room.GameState)
	}
}

// notifyLocked tells the view what changed between two room states
func (s *Session) notifyLocked(prev, cur *domain.Room) {
	if prev == nil || roomFieldsChanged(prev, cur) {
		s.view.OnRoomUpdate(&domain.RoomUpdatePayload{
			HostID:        cur.HostID,
			Status:        cur.Status,
			MaxPlayers:    cur.MaxPlayers,
			TurnOrder:     cur.TurnOrder,
			CurrentTurn:   cur.CurrentTurn,
			TurnHolder:    cur.TurnHolder(),
			TurnStartedAt: cur.TurnStartedAt.Millis,
			CanStart:      cur.CanStart(),
		})
	}

	if prev == nil || prev.HostID != cur.HostID || !reflect.DeepEqual(prev.Players, cur.Players) {
		s.view.OnPlayersUpdate(&domain.PlayersUpdatePayload{
			Players: cur.GetPlayerInfoList(),
			HostID:  cur.HostID,
		})
	}

	if cur.GameState != nil && (prev == nil || !reflect.DeepEqual(prev.GameState, cur.GameState)) {
		s.view.OnGameStateUpdate(gameStatePayload(cur.GameState))
	}

	if cur.Status != domain.StatusWaiting && (prev == nil || !reflect.DeepEqual(prev.Scores, cur.Scores) ||
		!reflect.DeepEqual(prev.Players, cur.Players)) {
		s.view.OnScoresUpdate(&domain.ScoresUpdatePayload{Scores: cur.ScoreLines()})
	}

	if cur.Status == domain.StatusPlaying && (prev == nil || prev.Status == domain.StatusWaiting) {
		order := make([]domain.PlayerInfo, 0, len(cur.TurnOrder))
		for _, id := range cur.TurnOrder {
			if p, ok := cur.Players[id]; ok {
				order = append(order, p.ToInfo(cur.HostID))
			}
		}
		s.view.OnGameStarted(&domain.GameStartedPayload{TurnOrder: order})
	}

	if cur.Status == domain.StatusFinished && (prev == nil || prev.Status != domain.StatusFinished) {
		rankings := cur.Rankings()
		s.view.OnGameFinished(&domain.GameFinishedPayload{Rankings: rankings})
		s.recordLocked(cur, rankings)
	}
}

func roomFieldsChanged(a, b *domain.Room) bool {
	return a.HostID != b.HostID ||
		a.Status != b.Status ||
		a.MaxPlayers != b.MaxPlayers ||
		a.CurrentTurn != b.CurrentTurn ||
		a.TurnStartedAt != b.TurnStartedAt ||
		!reflect.DeepEqual(a.TurnOrder, b.TurnOrder)
}

func gameStatePayload(g *domain.GameState) *domain.GameStatePayload {
	p := &domain.GameStatePayload{GameState: *g}
	if g.HasRolled() {
		p.Preview = domain.CalculateAllPossibleScores(g.Dice)
		p.Combinations = domain.CompletedCombinations(g.Dice)
	}
	return p
}

// syncTimersLocked runs the waiting-room countdown while waiting and
// restarts the turn countdown whenever a new turn begins
func (s *Session) syncTimersLocked(room *domain.Room) {
	switch room.Status {
	case domain.StatusWaiting:
		if s.autoStart == nil && !s.autoFired && s.settings.AutoStartDuration > 0 {
			s.startAutoStartLocked()
		}
	case domain.StatusPlaying:
		s.autoStart.Stop()
		s.autoStart = nil
		if s.timerKey != s.turnKey {
			s.startTurnTimerLocked()
		}
	default:
		s.stopTimersLocked()
	}
}

func (s *Session) startAutoStartLocked() {
	steps := int(s.settings.AutoStartDuration / s.settings.TickInterval)
	s.autoStart = StartCountdown(domain.TimerAutoStart, s.settings.AutoStartDuration, s.settings.TickInterval,
		s.onAutoStartTick, s.onAutoStartExpired)
	s.view.OnTimerTick(&domain.TimerTickPayload{Kind: domain.TimerAutoStart, RemainingSeconds: steps})
}

func (s *Session) startTurnTimerLocked() {
	s.turnTimer.Stop()
	s.timerKey = s.turnKey
	if s.settings.TurnDuration <= 0 {
		s.turnTimer = nil
		return
	}
	steps := int(s.settings.TurnDuration / s.settings.TickInterval)
	s.turnTimer = StartCountdown(domain.TimerTurn, s.settings.TurnDuration, s.settings.TickInterval,
		s.onTurnTick, s.onTurnExpired)
	s.view.OnTimerTick(&domain.TimerTickPayload{Kind: domain.TimerTurn, RemainingSeconds: steps})
}

func (s *Session) onAutoStartTick(c *Countdown, remaining int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.autoStart != c {
		return
	}
	s.view.OnTimerTick(&domain.TimerTickPayload{Kind: domain.TimerAutoStart, RemainingSeconds: remaining})
}

func (s *Session) onAutoStartExpired(c *Countdown) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.autoStart != c {
		return
	}
	s.autoStart = nil
	s.autoFired = true
	s.view.OnTimerTick(&domain.TimerTickPayload{Kind: domain.TimerAutoStart, RemainingSeconds: 0})

	if s.room == nil || !s.room.IsHost(s.userID) {
		return
	}
	ctx, cancel := s.writeContext()
	defer cancel()
	if _, err := s.startGameLocked(ctx); err != nil {
		s.logger.Warn().Err(err).Str("room", s.roomCode).Msg("auto start failed")
		s.noticeLocked("auto_start_failed", err)
	}
}

func (s *Session) onTurnTick(c *Countdown, remaining int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turnTimer != c {
		return
	}
	s.view.OnTimerTick(&domain.TimerTickPayload{Kind: domain.TimerTurn, RemainingSeconds: remaining})
}

func (s *Session) onTurnExpired(c *Countdown) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turnTimer != c {
		return
	}
	s.view.OnTimerTick(&domain.TimerTickPayload{Kind: domain.TimerTurn, RemainingSeconds: 0})
	s.expireTurnLocked()
}

// expireTurnLocked auto-plays for the turn holder. While a roll is in
// flight it waits for that roll to publish so only stored dice are scored.
func (s *Session) expireTurnLocked() {
	if s.room == nil || !s.room.IsTurnHolder(s.userID) {
		return
	}
	if s.rolling {
		s.autoPlayDue = true
		return
	}
	ctx, cancel := s.writeContext()
	defer cancel()
	if err := s.autoPlayLocked(ctx); err != nil {
		s.logger.Warn().Err(err).Str("room", s.roomCode).Msg("auto play failed")
		s.noticeLocked("auto_play_failed", err)
	}
}

// repairLocked applies the corrections any present client may make: it
// re-elects an absent host, skips an absent turn-holder and ends a game
// everyone else has abandoned. Each write is idempotent so several clients
// making it at once converge.
func (s *Session) repairLocked(room *domain.Room) {
	if !room.IsPresent(s.userID) {
		return
	}
	ctx, cancel := s.writeContext()
	defer cancel()

	if room.NeedsHost() && room.ElectHost() == s.userID {
		s.logger.Info().Str("room", room.Code).Str("previous", room.HostID).Msg("claiming host")
		if err := s.conn.Update(ctx, roomPath(room.Code), map[string]any{"hostId": s.userID}); err != nil {
			s.logger.Error().Err(err).Msg("host correction failed")
		}
		// The next notification carries the new host
		return
	}

	if room.Status != domain.StatusPlaying || !room.IsHost(s.userID) {
		return
	}

	if room.LastPlayerStanding() {
		s.logger.Info().Str("room", room.Code).Msg("last player standing, ending game")
		if _, err := s.conn.Transact(ctx, roomPath(room.Code), func(cur store.Snapshot) (any, error) {
			r, err := decodeRoom(cur)
			if err != nil {
				return nil, err
			}
			if !r.LastPlayerStanding() {
				return nil, store.ErrAbort
			}
			if err := r.End(); err != nil {
				return nil, err
			}
			return r, nil
		}); err != nil && !errors.Is(err, store.ErrAbort) {
			s.logger.Error().Err(err).Msg("ending abandoned game failed")
		}
		return
	}

	if holder := room.TurnHolder(); holder != "" && !room.IsPresent(holder) {
		expected := room.CurrentTurn
		s.logger.Info().Str("room", room.Code).Str("holder", holder).Msg("skipping absent turn-holder")
		if _, err := s.conn.Transact(ctx, roomPath(room.Code), func(cur store.Snapshot) (any, error) {
			r, err := decodeRoom(cur)
			if err != nil {
				return nil, err
			}
			if !r.SkipAbsentHolder(expected) {
				return nil, store.ErrAbort
			}
			return r, nil
		}); err != nil && !errors.Is(err, store.ErrAbort) {
			s.logger.Error().Err(err).Msg("turn skip failed")
		}
	}
}

// recordLocked archives the standings once per game
func (s *Session) recordLocked(room *domain.Room, rankings []domain.Ranking) {
	if s.recorder == nil || room.StartedAt.IsZero() {
		return
	}
	gameID := archive.GameID(room.Code, room.StartedAt.Time())
	if s.recorded == gameID {
		return
	}
	s.recorded = gameID

	result := archive.GameResult{
		GameID:     gameID,
		RoomCode:   room.Code,
		StartedAt:  room.StartedAt.Time(),
		FinishedAt: room.FinishedAt.Time(),
		Entries:    make([]archive.Entry, 0, len(rankings)),
	}
	for _, r := range rankings {
		result.Entries = append(result.Entries, archive.Entry(r))
	}

	recorder, logger := s.recorder, s.logger
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := recorder.RecordResult(ctx, result); err != nil {
			logger.Error().Err(err).Str("game", result.GameID).Msg("failed to archive result")
		}
	}()
}

func (s *Session) noticeLocked(code string, err error) {
	s.view.OnNotice(&domain.NoticePayload{Code: code, Message: err.Error()})
}

func decodeRoom(snap store.Snapshot) (*domain.Room, error) {
	if !snap.Exists {
		return nil, domain.ErrRoomNotFound
	}
	var room domain.Room
	if err := snap.Decode(&room); err != nil {
		return nil, err
	}
	if room.Code == "" {
		room.Code = snap.Key
	}
	return &room, nil
}
