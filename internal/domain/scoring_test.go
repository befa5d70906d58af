package domain

import (
	"reflect"
	"testing"
)

func TestYachtScoresFiftyOnlyWhenAllEqual(t *testing.T) {
	// Walk every one of the 6^5 assignments
	var d Dice
	var walk func(i int)
	walk = func(i int) {
		if i == DiceCount {
			allEqual := d[0] == d[1] && d[1] == d[2] && d[2] == d[3] && d[3] == d[4]
			want := 0
			if allEqual {
				want = YachtPoints
			}
			if got := CalculateScore(Yacht, d); got != want {
				t.Fatalf("CalculateScore(yacht, %v) = %d, want %d", d, got, want)
			}
			return
		}
		for face := 1; face <= 6; face++ {
			d[i] = face
			walk(i + 1)
		}
	}
	walk(0)
}

func TestIsFullHouse(t *testing.T) {
	tests := []struct {
		name     string
		dice     Dice
		expected bool
	}{
		{name: "three and two", dice: Dice{2, 2, 3, 3, 3}, expected: true},
		{name: "unsorted split", dice: Dice{6, 1, 6, 1, 6}, expected: true},
		{name: "five of a kind", dice: Dice{4, 4, 4, 4, 4}, expected: false},
		{name: "four and one", dice: Dice{4, 4, 4, 4, 1}, expected: false},
		{name: "two pairs", dice: Dice{1, 1, 2, 2, 3}, expected: false},
		{name: "straight", dice: Dice{1, 2, 3, 4, 5}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFullHouse(tt.dice); got != tt.expected {
				t.Errorf("IsFullHouse(%v) = %v, want %v", tt.dice, got, tt.expected)
			}
		})
	}
}

func TestStraights(t *testing.T) {
	tests := []struct {
		name  string
		dice  Dice
		small bool
		large bool
	}{
		{name: "small with duplicate", dice: Dice{1, 1, 2, 3, 4}, small: true},
		{name: "broken run", dice: Dice{1, 1, 2, 3, 6}},
		{name: "high large", dice: Dice{2, 3, 4, 5, 6}, small: true, large: true},
		{name: "low large unsorted", dice: Dice{5, 4, 3, 2, 1}, small: true, large: true},
		{name: "gap at five", dice: Dice{1, 2, 3, 4, 6}, small: true},
		{name: "middle run", dice: Dice{3, 4, 5, 6, 6}, small: true},
		{name: "nothing", dice: Dice{1, 1, 1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSmallStraight(tt.dice); got != tt.small {
				t.Errorf("IsSmallStraight(%v) = %v, want %v", tt.dice, got, tt.small)
			}
			if got := IsLargeStraight(tt.dice); got != tt.large {
				t.Errorf("IsLargeStraight(%v) = %v, want %v", tt.dice, got, tt.large)
			}
		})
	}
}

func TestCalculateScore(t *testing.T) {
	tests := []struct {
		name     string
		category Category
		dice     Dice
		expected int
	}{
		{name: "ones", category: Ones, dice: Dice{1, 1, 2, 3, 1}, expected: 3},
		{name: "sixes", category: Sixes, dice: Dice{6, 6, 2, 3, 6}, expected: 18},
		{name: "fours none", category: Fours, dice: Dice{1, 2, 3, 5, 6}, expected: 0},
		{name: "three of a kind", category: ThreeOfAKind, dice: Dice{3, 3, 3, 1, 2}, expected: 12},
		{name: "three of a kind miss", category: ThreeOfAKind, dice: Dice{3, 3, 1, 1, 2}, expected: 0},
		{name: "four of a kind", category: FourOfAKind, dice: Dice{5, 5, 5, 5, 2}, expected: 22},
		{name: "yacht counts as four", category: FourOfAKind, dice: Dice{2, 2, 2, 2, 2}, expected: 10},
		{name: "full house sums dice", category: FullHouse, dice: Dice{2, 2, 5, 5, 5}, expected: 19},
		{name: "full house miss", category: FullHouse, dice: Dice{6, 6, 6, 6, 6}, expected: 0},
		{name: "small straight", category: SmallStraight, dice: Dice{1, 2, 3, 4, 4}, expected: 15},
		{name: "large straight", category: LargeStraight, dice: Dice{2, 3, 4, 5, 6}, expected: 30},
		{name: "chance", category: Chance, dice: Dice{1, 2, 3, 4, 6}, expected: 16},
		{name: "yacht", category: Yacht, dice: Dice{4, 4, 4, 4, 4}, expected: 50},
		{name: "unknown category", category: Category("bogus"), dice: Dice{6, 6, 6, 6, 6}, expected: 0},
		{name: "out of range faces", category: ThreeOfAKind, dice: Dice{0, 9, 9, 9, 1}, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculateScore(tt.category, tt.dice); got != tt.expected {
				t.Errorf("CalculateScore(%s, %v) = %d, want %d", tt.category, tt.dice, got, tt.expected)
			}
		})
	}
}

func TestCalculateAllPossibleScoresCoversEveryCategory(t *testing.T) {
	scores := CalculateAllPossibleScores(Dice{2, 2, 3, 3, 3})
	if len(scores) != CategoryCount {
		t.Fatalf("got %d categories, want %d", len(scores), CategoryCount)
	}
	if scores[FullHouse] != 13 || scores[Twos] != 4 || scores[Threes] != 9 || scores[Yacht] != 0 {
		t.Errorf("unexpected preview: %v", scores)
	}
}

func TestCompletedCombinations(t *testing.T) {
	got := CompletedCombinations(Dice{5, 5, 5, 5, 5})
	want := []Category{Yacht, FourOfAKind, ThreeOfAKind}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("CompletedCombinations(yacht) = %v, want %v", got, want)
	}

	if got := CompletedCombinations(Dice{1, 2, 4, 5, 6}); len(got) != 0 {
		t.Errorf("expected no combinations, got %v", got)
	}
}

func TestLowestCategoryPicksFirstOnTies(t *testing.T) {
	sheet := NewScoreSheet()
	_ = sheet.Set(Ones, 3)

	// Twos is the first open category scoring zero for these dice
	category, score, ok := LowestCategory(Dice{1, 3, 3, 5, 6}, sheet)
	if !ok || category != Twos || score != 0 {
		t.Errorf("LowestCategory = (%s, %d, %v), want (twos, 0, true)", category, score, ok)
	}

	best, bestScore, ok := BestCategory(Dice{6, 6, 6, 6, 6}, sheet)
	if !ok || best != Yacht || bestScore != YachtPoints {
		t.Errorf("BestCategory = (%s, %d, %v), want (yacht, 50, true)", best, bestScore, ok)
	}
}
