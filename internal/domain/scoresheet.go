package domain

import (
	"encoding/json"
	"fmt"
)

// Slot is one score sheet entry: either unset or scored with a value.
// A scored zero is distinct from unset.
type Slot struct {
	value  int
	scored bool
}

// Unset returns an empty slot
func Unset() Slot {
	return Slot{}
}

// Scored returns a slot holding v
func Scored(v int) Slot {
	return Slot{value: v, scored: true}
}

// IsSet reports whether the slot holds a score
func (s Slot) IsSet() bool {
	return s.scored
}

// Value returns the score and whether the slot is set
func (s Slot) Value() (int, bool) {
	return s.value, s.scored
}

// ScoreSheet holds one player's 13 category slots.
// A nil *ScoreSheet reads as an empty sheet.
type ScoreSheet struct {
	slots [CategoryCount]Slot
}

// NewScoreSheet creates a sheet with every slot unset
func NewScoreSheet() *ScoreSheet {
	return &ScoreSheet{}
}

// Get returns the slot for category; unknown categories read as unset
func (s *ScoreSheet) Get(c Category) Slot {
	i := c.Index()
	if s == nil || i < 0 {
		return Unset()
	}
	return s.slots[i]
}

// Set records a score. Slots are write-once.
func (s *ScoreSheet) Set(c Category, score int) error {
	i := c.Index()
	if i < 0 {
		return ErrUnknownCategory
	}
	if s.slots[i].scored {
		return ErrCategoryAlreadyFilled
	}
	s.slots[i] = Scored(score)
	return nil
}

// UpperTotal sums the six upper slots, treating unset as zero
func (s *ScoreSheet) UpperTotal() int {
	total := 0
	for _, c := range UpperCategories {
		if v, ok := s.Get(c).Value(); ok {
			total += v
		}
	}
	return total
}

// Bonus returns BonusPoints once the upper total reaches BonusThreshold
func (s *ScoreSheet) Bonus() int {
	if s.UpperTotal() >= BonusThreshold {
		return BonusPoints
	}
	return 0
}

// Total returns the sum of all set slots plus the bonus
func (s *ScoreSheet) Total() int {
	total := 0
	for _, c := range Categories {
		if v, ok := s.Get(c).Value(); ok {
			total += v
		}
	}
	return total + s.Bonus()
}

// Complete reports whether all 13 slots are set
func (s *ScoreSheet) Complete() bool {
	for _, c := range Categories {
		if !s.Get(c).IsSet() {
			return false
		}
	}
	return true
}

// Available lists unset categories in sheet order
func (s *ScoreSheet) Available() []Category {
	open := make([]Category, 0, CategoryCount)
	for _, c := range Categories {
		if !s.Get(c).IsSet() {
			open = append(open, c)
		}
	}
	return open
}

// MarshalJSON writes the sheet as category -> score with null for unset
func (s *ScoreSheet) MarshalJSON() ([]byte, error) {
	out := make(map[Category]*int, CategoryCount)
	for _, c := range Categories {
		if v, ok := s.Get(c).Value(); ok {
			out[c] = &v
		} else {
			out[c] = nil
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a sheet; missing and null entries are unset
func (s *ScoreSheet) UnmarshalJSON(data []byte) error {
	var raw map[string]*int
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode score sheet: %w", err)
	}
	*s = ScoreSheet{}
	for key, v := range raw {
		i := Category(key).Index()
		if i < 0 || v == nil {
			continue
		}
		s.slots[i] = Scored(*v)
	}
	return nil
}
