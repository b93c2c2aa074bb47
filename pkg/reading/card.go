package reading

import (
	"math/rand/v2"
	"strings"
)

// Card is one tarot card with both orientations' text.
type Card struct {
	Name             string   `json:"name" validate:"required,max=100"`
	UprightMeaning   string   `json:"uprightMeaning" validate:"required,max=2000"`
	UprightKeywords  []string `json:"uprightKeywords" validate:"max=20,dive,max=100"`
	ReversedMeaning  string   `json:"reversedMeaning" validate:"required,max=2000"`
	ReversedKeywords []string `json:"reversedKeywords" validate:"max=20,dive,max=100"`
}

// DrawnCard is a card with its orientation fixed at pick time.
type DrawnCard struct {
	Card
	Reversed bool `json:"isReversed"`
}

// Orientation returns "Upright" or "Reversed".
func (d DrawnCard) Orientation() string {
	if d.Reversed {
		return "Reversed"
	}
	return "Upright"
}

// Meaning returns the meaning for the drawn orientation.
func (d DrawnCard) Meaning() string {
	if d.Reversed {
		return d.ReversedMeaning
	}
	return d.UprightMeaning
}

// Keywords returns the keywords for the drawn orientation.
func (d DrawnCard) Keywords() []string {
	if d.Reversed {
		return d.ReversedKeywords
	}
	return d.UprightKeywords
}

// Coin decides orientation; true means reversed.
type Coin func() bool

// FairCoin is reversed half of the time.
func FairCoin() bool {
	return rand.IntN(2) == 1
}

// Draw assigns an orientation to c.
func Draw(c Card, coin Coin) DrawnCard {
	if coin == nil {
		coin = FairCoin
	}
	return DrawnCard{Card: c, Reversed: coin()}
}

// findCard returns the index of the card named name, ignoring case.
func findCard(cards []Card, name string) int {
	for i, c := range cards {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}
