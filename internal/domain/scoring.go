package domain

import "sort"

const (
	// DiceCount is the number of dice in play
	DiceCount = 5

	// BonusThreshold is the upper section total that earns the bonus
	BonusThreshold = 63

	// BonusPoints is awarded once the upper section reaches BonusThreshold
	BonusPoints = 35

	SmallStraightPoints = 15
	LargeStraightPoints = 30
	YachtPoints         = 50
)

// Dice holds the five face values of a roll
type Dice [DiceCount]int

// Sum returns the total of all faces
func (d Dice) Sum() int {
	total := 0
	for _, v := range d {
		total += v
	}
	return total
}

// counts returns how many dice show each face; index 0 is unused.
// Faces outside 1..6 are ignored.
func (d Dice) counts() [7]int {
	var c [7]int
	for _, v := range d {
		if v >= 1 && v <= 6 {
			c[v]++
		}
	}
	return c
}

// SumOfNumber returns the sum of the dice showing n
func SumOfNumber(d Dice, n int) int {
	total := 0
	for _, v := range d {
		if v == n {
			total += v
		}
	}
	return total
}

// HasNOfAKind reports whether any face appears at least n times
func HasNOfAKind(d Dice, n int) bool {
	for _, c := range d.counts() {
		if c >= n {
			return true
		}
	}
	return false
}

// IsFullHouse reports a 3+2 split. Five of a kind does not qualify.
func IsFullHouse(d Dice) bool {
	hasThree, hasTwo := false, false
	for _, c := range d.counts() {
		switch c {
		case 3:
			hasThree = true
		case 2:
			hasTwo = true
		}
	}
	return hasThree && hasTwo
}

var smallStraights = [...][4]int{{1, 2, 3, 4}, {2, 3, 4, 5}, {3, 4, 5, 6}}

// IsSmallStraight reports whether the distinct faces contain a run of four
func IsSmallStraight(d Dice) bool {
	c := d.counts()
	for _, run := range smallStraights {
		ok := true
		for _, face := range run {
			if c[face] == 0 {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// IsLargeStraight reports whether the sorted dice are exactly 1-5 or 2-6
func IsLargeStraight(d Dice) bool {
	sorted := d
	sort.Ints(sorted[:])
	for _, start := range []int{1, 2} {
		ok := true
		for i, v := range sorted {
			if v != start+i {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// IsYacht reports whether all five dice show the same face
func IsYacht(d Dice) bool {
	for _, v := range d[1:] {
		if v != d[0] {
			return false
		}
	}
	return true
}

// CalculateScore returns what the dice would score in category.
// Unknown categories score 0.
func CalculateScore(category Category, d Dice) int {
	switch category {
	case Ones, Twos, Threes, Fours, Fives, Sixes:
		return SumOfNumber(d, category.face())
	case ThreeOfAKind:
		if HasNOfAKind(d, 3) {
			return d.Sum()
		}
	case FourOfAKind:
		if HasNOfAKind(d, 4) {
			return d.Sum()
		}
	case FullHouse:
		if IsFullHouse(d) {
			return d.Sum()
		}
	case SmallStraight:
		if IsSmallStraight(d) {
			return SmallStraightPoints
		}
	case LargeStraight:
		if IsLargeStraight(d) {
			return LargeStraightPoints
		}
	case Chance:
		return d.Sum()
	case Yacht:
		if IsYacht(d) {
			return YachtPoints
		}
	}
	return 0
}

// CalculateAllPossibleScores previews every category for the dice,
// regardless of what is already filled
func CalculateAllPossibleScores(d Dice) map[Category]int {
	scores := make(map[Category]int, CategoryCount)
	for _, c := range Categories {
		scores[c] = CalculateScore(c, d)
	}
	return scores
}

// CompletedCombinations lists the special combinations the dice satisfy
func CompletedCombinations(d Dice) []Category {
	combos := make([]Category, 0, 6)
	if IsYacht(d) {
		combos = append(combos, Yacht)
	}
	if IsLargeStraight(d) {
		combos = append(combos, LargeStraight)
	}
	if IsSmallStraight(d) {
		combos = append(combos, SmallStraight)
	}
	if IsFullHouse(d) {
		combos = append(combos, FullHouse)
	}
	if HasNOfAKind(d, 4) {
		combos = append(combos, FourOfAKind)
	}
	if HasNOfAKind(d, 3) {
		combos = append(combos, ThreeOfAKind)
	}
	return combos
}

// BestCategory returns the open category with the highest score for the
// dice. The first category wins ties. ok is false when the sheet is full.
func BestCategory(d Dice, sheet *ScoreSheet) (category Category, score int, ok bool) {
	score = -1
	for _, c := range sheet.Available() {
		if s := CalculateScore(c, d); s > score {
			category, score, ok = c, s, true
		}
	}
	return category, score, ok
}

// LowestCategory returns the open category with the lowest score for the
// dice, used as the penalty pick when a turn times out. The first category
// wins ties. ok is false when the sheet is full.
func LowestCategory(d Dice, sheet *ScoreSheet) (category Category, score int, ok bool) {
	for _, c := range sheet.Available() {
		s := CalculateScore(c, d)
		if !ok || s < score {
			category, score, ok = c, s, true
		}
	}
	return category, score, ok
}
