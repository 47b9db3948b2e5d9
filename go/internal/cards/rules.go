package cards

// stage1Power maps a rank onto the stage-1 ordering, where 2 sits above Ace.
func stage1Power(r Rank) int {
	if r == Two {
		return int(Ace) + 1
	}
	return int(r)
}

// BeatsStage1 reports whether attacker may be played onto target in stage 1.
// Suits are ignored; rank 2 outranks Ace.
func BeatsStage1(attacker, target Card) bool {
	return stage1Power(attacker.Rank) > stage1Power(target.Rank)
}

// LowerStage1 reports whether a ranks strictly below b in stage 1.
func LowerStage1(a, b Card) bool {
	return stage1Power(a.Rank) < stage1Power(b.Rank)
}

// TrumpFor returns the trump suit chosen by the last card drawn. The reserved
// suit never becomes trump, so a reserved last card leaves the session without one.
func TrumpFor(last Card) Suit {
	if last.Suit == ReservedSuit {
		return NoSuit
	}
	return last.Suit
}

// Beats reports whether c beats top in stages 2 and 3.
//
// A reserved-suit top only falls to a higher reserved card. Otherwise the same
// suit with a higher rank wins, and trump wins over any other suit.
func Beats(top, c Card, trump Suit) bool {
	if top.Suit == ReservedSuit {
		return c.Suit == ReservedSuit && c.Rank > top.Rank
	}
	if c.Suit == top.Suit {
		return c.Rank > top.Rank
	}
	return trump != NoSuit && trump != ReservedSuit && c.Suit == trump
}

// LowestBeating returns the cheapest card in hand that beats top, preferring
// non-trump cards.
func LowestBeating(hand []Card, top Card, trump Suit) (Card, bool) {
	var best Card
	found := false
	for _, c := range hand {
		if !Beats(top, c, trump) {
			continue
		}
		if !found || cheaper(c, best, trump) {
			best, found = c, true
		}
	}
	return best, found
}

// Lowest returns the cheapest card to lead with, preferring non-trump cards.
func Lowest(hand []Card, trump Suit) (Card, bool) {
	if len(hand) == 0 {
		return Card{}, false
	}
	best := hand[0]
	for _, c := range hand[1:] {
		if cheaper(c, best, trump) {
			best = c
		}
	}
	return best, true
}

func cheaper(a, b Card, trump Suit) bool {
	aTrump := trump != NoSuit && a.Suit == trump
	bTrump := trump != NoSuit && b.Suit == trump
	if aTrump != bTrump {
		return !aTrump
	}
	return Less(a, b)
}
