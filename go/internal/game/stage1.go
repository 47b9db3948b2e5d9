package game

import (
	"fmt"

	"github.com/mcdev12/pidr/go/internal/cards"
	"github.com/mcdev12/pidr/go/internal/models"
)

// attack plays the actor's face-up card onto a weaker face-up card. The turn
// passes to the target.
func (s *Session) attack(actor *Seat, a Action) error {
	top, ok := actor.Top()
	if !ok {
		return fmt.Errorf("%w: no face-up card to play", models.ErrIllegalMove)
	}
	if a.Card != nil && *a.Card != top {
		return fmt.Errorf("%w: only the face-up card %s can be played", models.ErrIllegalMove, top)
	}
	if a.Target == actor.Position {
		return fmt.Errorf("%w: cannot play onto your own card", models.ErrIllegalMove)
	}
	target := s.seat(a.Target)
	if target == nil || target.Status != SeatActive {
		return fmt.Errorf("%w: no active seat at position %d", models.ErrIllegalMove, a.Target)
	}
	targetTop, ok := target.Top()
	if !ok {
		return fmt.Errorf("%w: seat %d has no face-up card", models.ErrIllegalMove, target.Position)
	}
	if !cards.BeatsStage1(top, targetTop) {
		return fmt.Errorf("%w: %s does not beat %s", models.ErrIllegalMove, top, targetTop)
	}

	actor.Hand = cloneCards(actor.Hand[:len(actor.Hand)-1])
	target.Hand = append(target.Hand, top)
	s.st.Turn = target.Position
	return nil
}

// draw takes the front card of the deck. A card that beats the actor's own
// face-up card replaces it and the actor keeps the turn; otherwise it goes
// under the face-up card and the turn moves on. Emptying the deck opens stage 2.
func (s *Session) draw(actor *Seat) error {
	if len(s.st.Deck) == 0 {
		return fmt.Errorf("%w: the deck is empty", models.ErrIllegalMove)
	}
	drawn := s.st.Deck[0]
	s.st.Deck = cloneCards(s.st.Deck[1:])
	s.st.LastDrawn = &drawn

	top, hasTop := actor.Top()
	keep := !hasTop || cards.BeatsStage1(drawn, top)
	if keep {
		actor.Hand = append(actor.Hand, drawn)
	} else {
		under := cloneCards(actor.Hand[:len(actor.Hand)-1])
		actor.Hand = append(under, drawn, top)
	}

	if len(s.st.Deck) == 0 {
		s.enterStage2(actor.Position, drawn)
		return nil
	}
	if !keep {
		s.st.Turn = s.nextActive(actor.Position)
	}
	return nil
}

// enterStage2 fixes trump from the last card drawn and hands the lead to the
// seat that drew it. Stage-1 piles become open hands.
func (s *Session) enterStage2(leader int, last cards.Card) {
	s.st.Phase = PhaseStage2
	s.st.Trump = cards.TrumpFor(last)
	s.st.Table = nil
	s.st.TrickSize = 0
	s.st.Passes = 0
	for i := range s.st.Seats {
		cards.SortHand(s.st.Seats[i].Hand)
	}
	s.st.Turn = leader
}

// LegalTargets lists the positions the seat may attack in stage 1.
func (s *Session) LegalTargets(position int) []int {
	if s.st.Phase != PhaseStage1 {
		return nil
	}
	actor := s.seat(position)
	if actor == nil {
		return nil
	}
	top, ok := actor.Top()
	if !ok {
		return nil
	}
	var out []int
	for _, seat := range s.st.Seats {
		if seat.Position == position || seat.Status != SeatActive {
			continue
		}
		if t, ok := seat.Top(); ok && cards.BeatsStage1(top, t) {
			out = append(out, seat.Position)
		}
	}
	return out
}
