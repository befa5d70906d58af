package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"yacht/internal/domain"
	"yacht/internal/store"
)

func TestTurnFlow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testSettings())
	code, cs := h.startedGame(2, constantDice(3))
	p1, p2 := cs[0], cs[1]

	eventually(t, p1.IsMyTurn, "p1 to hold the first turn")
	if p2.IsMyTurn() {
		t.Fatal("both players hold the turn")
	}

	p1.waitEvent(t, domain.EventGameStarted, func(e *domain.GameEvent) bool {
		return len(e.Payload.(*domain.GameStartedPayload).TurnOrder) == 2
	})

	if err := p1.Roll(ctx); err != nil {
		t.Fatalf("Roll: %v", err)
	}
	e := p2.waitEvent(t, domain.EventGameStateUpdate, func(e *domain.GameEvent) bool {
		return e.Payload.(*domain.GameStatePayload).RollsLeft == 2
	})
	state := e.Payload.(*domain.GameStatePayload)
	if state.Dice != (domain.Dice{3, 3, 3, 3, 3}) || state.Preview[domain.Yacht] != 50 {
		t.Errorf("mirrored state = %+v", state)
	}
	eventually(t, func() bool { return p2.Dice().Dice == domain.Dice{3, 3, 3, 3, 3} }, "p2 rig to mirror the roll")

	if err := p1.ToggleKeep(ctx, 0); err != nil {
		t.Fatalf("ToggleKeep: %v", err)
	}
	eventually(t, func() bool { return p2.Dice().Kept[0] }, "p2 to see the kept die")

	score, err := p1.SelectCategory(ctx, domain.Chance)
	if err != nil || score != 15 {
		t.Fatalf("SelectCategory = %d, %v", score, err)
	}

	eventually(t, p2.IsMyTurn, "turn to pass to p2")
	room := h.room(code)
	if v, ok := room.Scores["p1"].Get(domain.Chance).Value(); !ok || v != 15 {
		t.Errorf("p1 chance = %d, %v", v, ok)
	}
	if room.GameState.RollsLeft != domain.RollsPerTurn || room.GameState.Kept[0] {
		t.Errorf("dice not reset for p2: %+v", room.GameState)
	}
	p2.waitEvent(t, domain.EventScoresUpdate, func(e *domain.GameEvent) bool {
		return e.Payload.(*domain.ScoresUpdatePayload).Scores[0].Total == 15
	})
}

func TestTurnValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testSettings())
	_, cs := h.startedGame(2, constantDice(2))
	p1, p2 := cs[0], cs[1]
	eventually(t, p1.IsMyTurn, "p1 turn")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"other player rolls", p2.Roll(ctx), domain.ErrNotYourTurn},
		{"other player scores", errOf(p2.SelectCategory(ctx, domain.Chance)), domain.ErrNotYourTurn},
		{"score before rolling", errOf(p1.SelectCategory(ctx, domain.Chance)), domain.ErrNotYetRolled},
		{"keep before rolling", p1.ToggleKeep(ctx, 0), domain.ErrNotYetRolled},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, tt.want) {
			t.Errorf("%s: %v, want %v", tt.name, tt.err, tt.want)
		}
	}

	for i := 0; i < domain.RollsPerTurn; i++ {
		if err := p1.Roll(ctx); err != nil {
			t.Fatalf("roll %d: %v", i+1, err)
		}
	}
	if err := p1.Roll(ctx); !errors.Is(err, domain.ErrNoRollsLeft) {
		t.Errorf("fourth roll: %v", err)
	}
	if err := p1.ToggleKeep(ctx, 0); !errors.Is(err, domain.ErrOutOfRolls) {
		t.Errorf("keep after last roll: %v", err)
	}
	if err := p1.ToggleKeep(ctx, 9); !errors.Is(err, domain.ErrInvalidDieIndex) {
		t.Errorf("keep die 9: %v", err)
	}
	if _, err := p1.SelectCategory(ctx, "bogus"); !errors.Is(err, domain.ErrUnknownCategory) {
		t.Errorf("unknown category: %v", err)
	}
	if _, err := p1.SelectCategory(ctx, domain.Twos); err != nil {
		t.Fatal(err)
	}

	eventually(t, p2.IsMyTurn, "p2 turn")
	_ = p2.Roll(ctx)
	if _, err := p2.SelectCategory(ctx, domain.Ones); err != nil {
		t.Fatal(err)
	}

	eventually(t, p1.IsMyTurn, "p1 second turn")
	if p1.Dice().RollsLeft != domain.RollsPerTurn {
		t.Errorf("rig not reset for new turn: %+v", p1.Dice())
	}
	_ = p1.Roll(ctx)
	if _, err := p1.SelectCategory(ctx, domain.Twos); !errors.Is(err, domain.ErrCategoryAlreadyFilled) {
		t.Errorf("refill twos: %v", err)
	}
}

func errOf(_ int, err error) error {
	return err
}

// flakyConn fails every transaction while down is set
type flakyConn struct {
	store.Gateway
	down atomic.Bool
}

func (f *flakyConn) Transact(ctx context.Context, path string, fn store.TxFunc) (store.Snapshot, error) {
	if f.down.Load() {
		return store.Snapshot{}, errors.New("network unreachable")
	}
	return f.Gateway.Transact(ctx, path, fn)
}

func TestFailedWriteRestoresDice(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testSettings())

	conn := &flakyConn{Gateway: h.hub.store.Connect()}
	rig := domain.NewDiceRig(domain.WithFaces(func() int { return 4 }))
	p1 := NewSession("p1", conn, NewEventView(func(*domain.GameEvent) {}), testSettings(), zerolog.Nop(),
		WithDiceRig(rig), WithShuffle(keepOrder))
	defer p1.Close()
	p2 := h.open("p2")

	code, err := p1.CreateRoom(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p2.JoinRoomByCode(ctx, code, "p2"); err != nil {
		t.Fatal(err)
	}
	if _, err := p1.StartGame(ctx); err != nil {
		t.Fatal(err)
	}
	eventually(t, p1.IsMyTurn, "p1 turn")

	if err := p1.Roll(ctx); err != nil {
		t.Fatal(err)
	}
	before := p1.Dice()

	conn.down.Store(true)
	if err := p1.Roll(ctx); err == nil {
		t.Fatal("roll succeeded with the store down")
	}
	if err := p1.ToggleKeep(ctx, 1); err == nil {
		t.Fatal("keep succeeded with the store down")
	}
	if got := p1.Dice(); got != before {
		t.Errorf("dice after failed writes = %+v, want %+v", got, before)
	}

	conn.down.Store(false)
	if err := p1.Roll(ctx); err != nil {
		t.Fatalf("roll after recovery: %v", err)
	}
	if got := p1.Dice().RollsLeft; got != before.RollsLeft-1 {
		t.Errorf("RollsLeft = %d, want %d", got, before.RollsLeft-1)
	}
}

func TestDisconnectedTurnHolderIsSkipped(t *testing.T) {
	h := newHarness(t, testSettings())
	code, cs := h.startedGame(3)
	p1, p2, p3 := cs[0], cs[1], cs[2]
	eventually(t, p1.IsMyTurn, "p1 turn")

	// p1 is host and turn-holder; its connection drops
	h.hub.Release(p1.Session)

	eventually(t, p2.IsMyTurn, "turn to skip to p2")
	room := h.room(code)
	if room.HostID != "p2" {
		t.Errorf("HostID = %s, want p2", room.HostID)
	}
	if room.IsPresent("p1") {
		t.Error("dropped player still present")
	}
	p3.waitEvent(t, domain.EventScoresUpdate, func(e *domain.GameEvent) bool {
		for _, line := range e.Payload.(*domain.ScoresUpdatePayload).Scores {
			if line.UserID == "p1" {
				return line.Left
			}
		}
		return false
	})
}

func TestLastPlayerStandingWins(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testSettings())
	code, cs := h.startedGame(2)
	p1, p2 := cs[0], cs[1]

	if err := p1.LeaveRoom(ctx); err != nil {
		t.Fatal(err)
	}

	e := p2.waitEvent(t, domain.EventGameFinished, nil)
	rankings := e.Payload.(*domain.GameFinishedPayload).Rankings
	if len(rankings) != 1 || rankings[0].UserID != "p2" || rankings[0].Place != 1 {
		t.Errorf("rankings = %+v", rankings)
	}
	if room := h.room(code); room.Status != domain.StatusFinished || room.FinishedAt.IsZero() {
		t.Errorf("room = %+v", room)
	}
	eventually(t, func() bool { return h.rec.count() == 1 }, "result to be archived")
}

func TestRoomDeletionReturnsToLobby(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testSettings())
	a, b := h.open("a"), h.open("b")
	code, _ := a.CreateRoom(ctx, "a")
	_, _ = b.JoinRoomByCode(ctx, code, "b")

	if err := h.hub.conn.Remove(ctx, roomPath(code)); err != nil {
		t.Fatal(err)
	}
	e := b.waitEvent(t, domain.EventRoomDeleted, nil)
	if e.RoomCode != code {
		t.Errorf("deleted room = %q", e.RoomCode)
	}
	if b.RoomCode() != "" {
		t.Error("session still in deleted room")
	}
	if _, err := b.StartGame(ctx); !errors.Is(err, domain.ErrNotInRoom) {
		t.Errorf("StartGame after deletion = %v", err)
	}
}

func TestTurnTimeoutAutoPlays(t *testing.T) {
	settings := testSettings()
	settings.TurnDuration = 50 * time.Millisecond
	h := newHarness(t, settings)
	code, cs := h.startedGame(2, constantDice(6))
	p1 := cs[0]

	p1.waitEvent(t, domain.EventTimerTick, func(e *domain.GameEvent) bool {
		p := e.Payload.(*domain.TimerTickPayload)
		return p.Kind == domain.TimerTurn && p.RemainingSeconds == 0
	})
	p1.waitEvent(t, domain.EventNotice, func(e *domain.GameEvent) bool {
		return e.Payload.(*domain.NoticePayload).Code == "auto_selected"
	})

	eventually(t, func() bool {
		room := h.room(code)
		return room != nil && room.Scores["p1"].Get(domain.Ones).IsSet()
	}, "p1 to be scored in ones")
	if v, _ := h.room(code).Scores["p1"].Get(domain.Ones).Value(); v != 0 {
		t.Errorf("auto-selected ones = %d, want 0", v)
	}
}

func TestWaitingRoomAutoStarts(t *testing.T) {
	ctx := context.Background()
	settings := testSettings()
	settings.AutoStartDuration = 150 * time.Millisecond
	h := newHarness(t, settings)

	host, guest := h.open("host"), h.open("guest")
	code, err := host.CreateRoom(ctx, "host")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := guest.JoinRoomByCode(ctx, code, "guest"); err != nil {
		t.Fatal(err)
	}

	guest.waitEvent(t, domain.EventGameStarted, nil)
	if room := h.room(code); room.Status != domain.StatusPlaying || len(room.TurnOrder) != 2 {
		t.Errorf("room = %+v", room)
	}
}

func TestAutoStartAloneNotifiesHost(t *testing.T) {
	ctx := context.Background()
	settings := testSettings()
	settings.AutoStartDuration = 30 * time.Millisecond
	h := newHarness(t, settings)

	host := h.open("host")
	code, _ := host.CreateRoom(ctx, "host")

	e := host.waitEvent(t, domain.EventNotice, nil)
	if e.Payload.(*domain.NoticePayload).Code != "auto_start_failed" {
		t.Errorf("notice = %+v", e.Payload)
	}
	if room := h.room(code); room.Status != domain.StatusWaiting {
		t.Errorf("Status = %s, want waiting", room.Status)
	}
}

// slowDice rolls face every time and keeps each roll in flight for settle
func slowDice(face int, settle time.Duration) SessionOption {
	return func(s *Session) {
		s.rig = domain.NewDiceRig(domain.WithFaces(func() int { return face }), domain.WithSettleTime(settle))
	}
}

func TestScoringWaitsForRolledDiceToPublish(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testSettings())
	code, cs := h.startedGame(2, slowDice(6, 50*time.Millisecond))
	p1 := cs[0]
	eventually(t, p1.IsMyTurn, "p1 turn")

	rolled := make(chan error, 1)
	go func() { rolled <- p1.Roll(ctx) }()

	for {
		select {
		case err := <-rolled:
			if err != nil {
				t.Fatalf("Roll: %v", err)
			}
			if got := h.room(code).GameState.Dice; got != (domain.Dice{6, 6, 6, 6, 6}) {
				t.Fatalf("stored dice = %v", got)
			}
			score, err := p1.SelectCategory(ctx, domain.Yacht)
			if err != nil || score != 50 {
				t.Fatalf("SelectCategory after roll = %d, %v", score, err)
			}
			return
		default:
		}
		score, err := p1.SelectCategory(ctx, domain.Yacht)
		if err == nil {
			t.Fatalf("scored %d while the roll was unpublished, stored dice %v", score, h.room(code).GameState.Dice)
		}
		if !errors.Is(err, domain.ErrRollInFlight) && !errors.Is(err, domain.ErrNotYetRolled) {
			t.Fatalf("SelectCategory during roll = %v", err)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestTurnExpiryDuringRollWaitsForPublish(t *testing.T) {
	ctx := context.Background()
	settings := testSettings()
	settings.TurnDuration = 200 * time.Millisecond
	h := newHarness(t, settings)
	code, cs := h.startedGame(2, slowDice(6, 500*time.Millisecond))
	p1 := cs[0]
	eventually(t, p1.IsMyTurn, "p1 turn")

	if err := p1.Roll(ctx); err != nil {
		t.Fatalf("Roll spanning the expiry: %v", err)
	}
	p1.waitEvent(t, domain.EventNotice, func(e *domain.GameEvent) bool {
		return e.Payload.(*domain.NoticePayload).Code == "auto_selected"
	})
	eventually(t, func() bool {
		room := h.room(code)
		return room != nil && room.Scores["p1"].Get(domain.Ones).IsSet()
	}, "p1 to be scored in ones")
	if v, _ := h.room(code).Scores["p1"].Get(domain.Ones).Value(); v != 0 {
		t.Errorf("auto-selected ones = %d, want 0", v)
	}
}
