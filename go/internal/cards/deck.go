package cards

import (
	"fmt"
	"math/rand"
)

// DeckSize is the number of cards in a full deck.
const DeckSize = 52

// NewDeck returns an ordered 52-card deck.
func NewDeck() []Card {
	deck := make([]Card, 0, DeckSize)
	for _, s := range Suits {
		for r := Two; r <= Ace; r++ {
			deck = append(deck, Card{Rank: r, Suit: s})
		}
	}
	return deck
}

// Shuffle returns a shuffled copy of deck using rng.
func Shuffle(deck []Card, rng *rand.Rand) []Card {
	out := make([]Card, len(deck))
	copy(out, deck)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// Deal is the opening distribution for one seat.
type Deal struct {
	Stubs  [2]Card
	FaceUp Card
}

// DealSeats deals two stubs then one face-up card to each of n seats from
// the front of deck. It returns the per-seat deals and the remaining draw deck.
func DealSeats(deck []Card, n int) ([]Deal, []Card, error) {
	if n < 1 {
		return nil, nil, fmt.Errorf("cannot deal to %d seats", n)
	}
	if len(deck) < n*3 {
		return nil, nil, fmt.Errorf("deck of %d cards too small for %d seats", len(deck), n)
	}
	if err := checkUnique(deck); err != nil {
		return nil, nil, err
	}

	deals := make([]Deal, n)
	for i := 0; i < n; i++ {
		base := i * 3
		deals[i] = Deal{
			Stubs:  [2]Card{deck[base], deck[base+1]},
			FaceUp: deck[base+2],
		}
	}
	rest := make([]Card, len(deck)-n*3)
	copy(rest, deck[n*3:])
	return deals, rest, nil
}

func checkUnique(deck []Card) error {
	seen := make(map[Card]bool, len(deck))
	for _, c := range deck {
		if err := c.Validate(); err != nil {
			return err
		}
		if seen[c] {
			return fmt.Errorf("duplicate card %s in deck", c)
		}
		seen[c] = true
	}
	return nil
}
