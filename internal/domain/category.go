package domain

// Category identifies one of the 13 score sheet slots
type Category string

const (
	Ones          Category = "ones"
	Twos          Category = "twos"
	Threes        Category = "threes"
	Fours         Category = "fours"
	Fives         Category = "fives"
	Sixes         Category = "sixes"
	ThreeOfAKind  Category = "threeOfAKind"
	FourOfAKind   Category = "fourOfAKind"
	FullHouse     Category = "fullHouse"
	SmallStraight Category = "smallStraight"
	LargeStraight Category = "largeStraight"
	Chance        Category = "chance"
	Yacht         Category = "yacht"
)

// Categories lists every category in score sheet order.
// Tie-breaking rules ("first encountered") follow this order.
var Categories = [...]Category{
	Ones, Twos, Threes, Fours, Fives, Sixes,
	ThreeOfAKind, FourOfAKind, FullHouse, SmallStraight, LargeStraight, Chance, Yacht,
}

// CategoryCount is the number of slots on a score sheet
const CategoryCount = len(Categories)

// UpperCategories are the six number categories counted towards the bonus
var UpperCategories = [...]Category{Ones, Twos, Threes, Fours, Fives, Sixes}

// String returns the string representation of the category
func (c Category) String() string {
	return string(c)
}

// Index returns the slot index of the category, or -1 if unknown
func (c Category) Index() int {
	for i, cat := range Categories {
		if cat == c {
			return i
		}
	}
	return -1
}

// Valid reports whether c is one of the 13 categories
func (c Category) Valid() bool {
	return c.Index() >= 0
}

// IsUpper reports whether c belongs to the upper section
func (c Category) IsUpper() bool {
	i := c.Index()
	return i >= 0 && i < len(UpperCategories)
}

// face returns the die face an upper category counts, or 0
func (c Category) face() int {
	if !c.IsUpper() {
		return 0
	}
	return c.Index() + 1
}
