package game

import (
	"fmt"

	"github.com/mcdev12/pidr/go/internal/cards"
	"github.com/mcdev12/pidr/go/internal/models"
)

// playTrick leads onto an empty table or beats the top card. Once the table
// holds one card per seat that was active at the lead it is discarded and
// the last beater leads again.
func (s *Session) playTrick(actor *Seat, a Action) error {
	if a.Card == nil {
		return fmt.Errorf("%w: a card is required", models.ErrIllegalMove)
	}
	card := *a.Card
	hand, ok := cards.Remove(actor.Hand, card)
	if !ok {
		return fmt.Errorf("%w: %s is not in hand", models.ErrIllegalMove, card)
	}
	if n := len(s.st.Table); n > 0 {
		top := s.st.Table[n-1].Card
		if !cards.Beats(top, card, s.st.Trump) {
			return fmt.Errorf("%w: %s does not beat %s", models.ErrIllegalMove, card, top)
		}
	} else {
		s.st.TrickSize = len(s.activePositions())
	}

	actor.Hand = hand
	s.st.Table = append(s.st.Table, TableCard{Card: card, Position: actor.Position})
	s.st.Passes = 0

	if len(s.st.Table) >= s.st.TrickSize {
		s.discardTable()
		s.st.Turn = actor.Position
		return nil
	}
	s.st.Turn = s.nextActive(actor.Position)
	return nil
}

// take moves the whole table into the actor's hand. The next seat leads.
func (s *Session) take(actor *Seat) error {
	if len(s.st.Table) == 0 {
		return fmt.Errorf("%w: the table is empty", models.ErrIllegalMove)
	}
	for _, tc := range s.st.Table {
		actor.Hand = append(actor.Hand, tc.Card)
	}
	cards.SortHand(actor.Hand)
	s.st.Table = nil
	s.st.TrickSize = 0
	s.st.Passes = 0
	s.st.Turn = s.nextActive(actor.Position)
	return nil
}

// pass skips beating when the rule variant allows it. When every other seat
// has passed, the table is discarded and the owner of the top card leads.
func (s *Session) pass(actor *Seat) error {
	if !s.rules.AllowPass {
		return fmt.Errorf("%w: passing is disabled for this room", models.ErrIllegalMove)
	}
	if len(s.st.Table) < 2 {
		return fmt.Errorf("%w: passing needs a beat on the table", models.ErrIllegalMove)
	}
	owner := s.st.Table[len(s.st.Table)-1].Position
	if owner == actor.Position {
		return fmt.Errorf("%w: cannot pass on your own card", models.ErrIllegalMove)
	}

	s.st.Passes++
	needed := len(s.activePositions())
	ownerSeat := s.seat(owner)
	ownerActive := ownerSeat != nil && ownerSeat.Status == SeatActive
	if ownerActive {
		needed--
	}
	if s.st.Passes >= needed {
		s.discardTable()
		if ownerActive {
			s.st.Turn = owner
		} else {
			s.st.Turn = s.nextActive(actor.Position)
		}
		return nil
	}
	s.st.Turn = s.nextActive(actor.Position)
	return nil
}

func (s *Session) discardTable() {
	for _, tc := range s.st.Table {
		s.st.Discard = append(s.st.Discard, tc.Card)
	}
	s.st.Table = nil
	s.st.TrickSize = 0
	s.st.Passes = 0
}
