package domain

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"
)

// RollsPerTurn is how many times a player may roll in one turn
const RollsPerTurn = 3

// GameState is the shared mirror of the turn-holder's dice rig
type GameState struct {
	Dice      Dice            `json:"dice"`
	Kept      [DiceCount]bool `json:"kept"`
	RollsLeft int             `json:"rollsLeft"`
	Round     int             `json:"round"`
}

// NewGameState returns the idle state every turn starts from
func NewGameState(round int) *GameState {
	return &GameState{
		Dice:      Dice{1, 1, 1, 1, 1},
		RollsLeft: RollsPerTurn,
		Round:     round,
	}
}

// HasRolled reports whether at least one roll happened this turn
func (g *GameState) HasRolled() bool {
	return g.RollsLeft < RollsPerTurn
}

// DiceRig owns the local player's dice for the turn in progress
type DiceRig struct {
	mu        sync.RWMutex
	values    Dice
	kept      [DiceCount]bool
	rollsLeft int
	rolling   atomic.Bool

	face   func() int
	settle time.Duration
}

// RigOption configures a DiceRig
type RigOption func(*DiceRig)

// WithFaces replaces the random face source, mostly for tests
func WithFaces(face func() int) RigOption {
	return func(r *DiceRig) { r.face = face }
}

// WithSettleTime keeps a roll in flight for d before committing values
func WithSettleTime(d time.Duration) RigOption {
	return func(r *DiceRig) { r.settle = d }
}

// NewDiceRig creates an idle rig
func NewDiceRig(opts ...RigOption) *DiceRig {
	r := &DiceRig{
		face: func() int { return rand.IntN(6) + 1 },
	}
	for _, opt := range opts {
		opt(r)
	}
	r.NewTurn()
	return r
}

// NewTurn restores the idle state
func (r *DiceRig) NewTurn() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = Dice{1, 1, 1, 1, 1}
	r.kept = [DiceCount]bool{}
	r.rollsLeft = RollsPerTurn
}

// Reset is an alias of NewTurn
func (r *DiceRig) Reset() {
	r.NewTurn()
}

// Rolling reports whether a roll is in flight
func (r *DiceRig) Rolling() bool {
	return r.rolling.Load()
}

// Roll re-rolls every die that is not kept. It returns false without
// touching the dice when no rolls are left or another roll is in flight;
// concurrent callers are rejected, never queued.
func (r *DiceRig) Roll(ctx context.Context) bool {
	if !r.rolling.CompareAndSwap(false, true) {
		return false
	}
	defer r.rolling.Store(false)

	r.mu.Lock()
	if r.rollsLeft <= 0 {
		r.mu.Unlock()
		return false
	}
	next := r.values
	for i := range next {
		if !r.kept[i] {
			next[i] = r.face()
		}
	}
	r.rollsLeft--
	r.mu.Unlock()

	if r.settle > 0 {
		t := time.NewTimer(r.settle)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
		}
	}

	r.mu.Lock()
	r.values = next
	r.mu.Unlock()
	return true
}

// ToggleKeep flips whether die i is kept for the next roll
func (r *DiceRig) ToggleKeep(i int) error {
	if i < 0 || i >= DiceCount {
		return ErrInvalidDieIndex
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.rollsLeft {
	case RollsPerTurn:
		return ErrNotYetRolled
	case 0:
		return ErrOutOfRolls
	}
	r.kept[i] = !r.kept[i]
	return nil
}

// Values returns the current faces
func (r *DiceRig) Values() Dice {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.values
}

// Kept returns the kept flags
func (r *DiceRig) Kept() [DiceCount]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.kept
}

// RollsLeft returns how many rolls remain this turn
func (r *DiceRig) RollsLeft() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rollsLeft
}

// SetValues mirrors faces from the store without validation
func (r *DiceRig) SetValues(d Dice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = d
}

// SetKept mirrors kept flags from the store without validation
func (r *DiceRig) SetKept(k [DiceCount]bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kept = k
}

// SetRollsLeft mirrors the roll counter from the store without validation
func (r *DiceRig) SetRollsLeft(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rollsLeft = n
}

// Snapshot captures the rig as a GameState for the given round
func (r *DiceRig) Snapshot(round int) GameState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return GameState{
		Dice:      r.values,
		Kept:      r.kept,
		RollsLeft: r.rollsLeft,
		Round:     round,
	}
}

// Restore puts back a state captured by Snapshot
func (r *DiceRig) Restore(g GameState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = g.Dice
	r.kept = g.Kept
	r.rollsLeft = g.RollsLeft
}
