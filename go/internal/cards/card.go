package cards

import (
	"fmt"
	"sort"
	"strconv"
)

// Suit is one of the four card suits. NoSuit marks an absent trump.
type Suit string

const (
	NoSuit   Suit = ""
	Spades   Suit = "SPADES"
	Hearts   Suit = "HEARTS"
	Diamonds Suit = "DIAMONDS"
	Clubs    Suit = "CLUBS"
)

// ReservedSuit can never become trump and is only beaten by itself.
const ReservedSuit = Spades

// Suits lists the suits in deck order.
var Suits = []Suit{Spades, Hearts, Diamonds, Clubs}

// Valid reports whether s names a real suit.
func (s Suit) Valid() bool {
	switch s {
	case Spades, Hearts, Diamonds, Clubs:
		return true
	}
	return false
}

// Rank is a card rank from 2 to 14 (Ace).
type Rank int

const (
	Two   Rank = 2
	Jack  Rank = 11
	Queen Rank = 12
	King  Rank = 13
	Ace   Rank = 14
)

func (r Rank) Valid() bool {
	return r >= Two && r <= Ace
}

func (r Rank) String() string {
	switch r {
	case Jack:
		return "J"
	case Queen:
		return "Q"
	case King:
		return "K"
	case Ace:
		return "A"
	}
	return strconv.Itoa(int(r))
}

// Card is an immutable playing card.
type Card struct {
	Rank Rank `json:"rank"`
	Suit Suit `json:"suit"`
}

func (c Card) String() string {
	if c.Suit == NoSuit {
		return c.Rank.String()
	}
	return c.Rank.String() + string(c.Suit[0])
}

// Validate checks the card is one of the 52 standard cards.
func (c Card) Validate() error {
	if !c.Rank.Valid() {
		return fmt.Errorf("invalid rank %d", c.Rank)
	}
	if !c.Suit.Valid() {
		return fmt.Errorf("invalid suit %q", c.Suit)
	}
	return nil
}

// Less orders cards by rank, then suit, for stable hand sorting.
func Less(a, b Card) bool {
	if a.Rank != b.Rank {
		return a.Rank < b.Rank
	}
	return suitIndex(a.Suit) < suitIndex(b.Suit)
}

// SortHand orders a hand ascending in place.
func SortHand(hand []Card) {
	sort.Slice(hand, func(i, j int) bool { return Less(hand[i], hand[j]) })
}

// IndexOf returns the index of c in hand or -1.
func IndexOf(hand []Card, c Card) int {
	for i, h := range hand {
		if h == c {
			return i
		}
	}
	return -1
}

// Remove returns hand without the first occurrence of c, and whether c was found.
// The input slice is not modified.
func Remove(hand []Card, c Card) ([]Card, bool) {
	i := IndexOf(hand, c)
	if i < 0 {
		return hand, false
	}
	out := make([]Card, 0, len(hand)-1)
	out = append(out, hand[:i]...)
	return append(out, hand[i+1:]...), true
}

func suitIndex(s Suit) int {
	for i, v := range Suits {
		if v == s {
			return i
		}
	}
	return len(Suits)
}
