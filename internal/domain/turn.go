package domain

import "sort"

// TurnHolder returns the identity whose turn it is, or "" outside play
func (r *Room) TurnHolder() string {
	if r.CurrentTurn < 0 || r.CurrentTurn >= len(r.TurnOrder) {
		return ""
	}
	return r.TurnOrder[r.CurrentTurn]
}

// IsTurnHolder checks if it is the given identity's turn
func (r *Room) IsTurnHolder(userID string) bool {
	return r.Status == StatusPlaying && userID != "" && r.TurnHolder() == userID
}

// NextPresentIndex scans the turn order circularly, starting after the
// current index, for a player who is still present. The current holder is
// considered last, so a lone remaining player keeps the turn.
func (r *Room) NextPresentIndex() (int, bool) {
	n := len(r.TurnOrder)
	for step := 1; step <= n; step++ {
		idx := (r.CurrentTurn + step) % n
		if r.IsPresent(r.TurnOrder[idx]) {
			return idx, true
		}
	}
	return 0, false
}

// AllPresentComplete reports whether every present player has filled their
// sheet. Sheets of departed players are not considered.
func (r *Room) AllPresentComplete() bool {
	if r.PlayerCount() == 0 {
		return false
	}
	for id := range r.Players {
		if !r.Scores[id].Complete() {
			return false
		}
	}
	return true
}

// ScoreCategory validates the turn and writes the category score for dice
// into the holder's sheet
func (r *Room) ScoreCategory(userID string, c Category, dice Dice) (int, error) {
	if r.Status != StatusPlaying {
		return 0, ErrGameNotPlaying
	}
	if !r.IsTurnHolder(userID) {
		return 0, ErrNotYourTurn
	}
	if !c.Valid() {
		return 0, ErrUnknownCategory
	}

	score := CalculateScore(c, dice)
	if err := r.Sheet(userID).Set(c, score); err != nil {
		return 0, err
	}
	return score, nil
}

// AdvanceTurn passes the turn to the next present player, or finishes the
// game when nobody is left or every present sheet is complete. It reports
// whether the game finished.
func (r *Room) AdvanceTurn() (finished bool) {
	if r.Status != StatusPlaying {
		return r.Status == StatusFinished
	}

	next, ok := r.NextPresentIndex()
	if !ok || r.AllPresentComplete() {
		_ = r.End()
		return true
	}

	round := 1
	if r.GameState != nil {
		round = r.GameState.Round
	}
	if next <= r.CurrentTurn {
		round++
	}

	r.CurrentTurn = next
	r.TurnStartedAt = ServerTime()
	r.GameState = NewGameState(round)
	return false
}

// SkipAbsentHolder advances past a turn-holder who is no longer present.
// expectedTurn guards against a concurrent writer having already moved the
// turn; it reports whether anything changed.
func (r *Room) SkipAbsentHolder(expectedTurn int) bool {
	if r.Status != StatusPlaying || r.CurrentTurn != expectedTurn {
		return false
	}
	if holder := r.TurnHolder(); holder == "" || r.IsPresent(holder) {
		return false
	}
	r.AdvanceTurn()
	return true
}

// LastPlayerStanding reports a game in progress that every other player
// has abandoned
func (r *Room) LastPlayerStanding() bool {
	return r.Status == StatusPlaying && len(r.TurnOrder) > 1 && r.PlayerCount() == 1
}

// Ranking is one line of the final standings
type Ranking struct {
	UserID     string `json:"userId"`
	Nickname   string `json:"nickname"`
	Score      int    `json:"score"`
	UpperTotal int    `json:"upperTotal"`
	Bonus      int    `json:"bonus"`
	Place      int    `json:"place"`
}

// Rankings orders present players by total score, highest first. Players
// on equal totals share a place.
func (r *Room) Rankings() []Ranking {
	out := make([]Ranking, 0, len(r.Players))
	for id, p := range r.Players {
		sheet := r.Scores[id]
		out = append(out, Ranking{
			UserID:     id,
			Nickname:   p.Nickname,
			Score:      sheet.Total(),
			UpperTotal: sheet.UpperTotal(),
			Bonus:      sheet.Bonus(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].UserID < out[j].UserID
	})
	for i := range out {
		out[i].Place = i + 1
		if i > 0 && out[i].Score == out[i-1].Score {
			out[i].Place = out[i-1].Place
		}
	}
	return out
}
