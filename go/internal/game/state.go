package game

import (
	"github.com/google/uuid"
	"github.com/mcdev12/pidr/go/internal/cards"
	"github.com/mcdev12/pidr/go/internal/models"
)

// Phase is the session-wide state of the rule engine.
type Phase string

const (
	PhaseStage1 Phase = "STAGE_1" // elimination deal
	PhaseStage2 Phase = "STAGE_2" // trick-taking
	PhaseStage3 Phase = "STAGE_3" // every active seat plays from revealed stubs
	PhaseOver   Phase = "OVER"
)

// Stage returns the numeric stage, or 0 once the game is over.
func (p Phase) Stage() int {
	switch p {
	case PhaseStage1:
		return 1
	case PhaseStage2:
		return 2
	case PhaseStage3:
		return 3
	}
	return 0
}

// SeatStatus is the per-seat state.
type SeatStatus string

const (
	SeatActive   SeatStatus = "ACTIVE"
	SeatFinished SeatStatus = "FINISHED" // hand and stubs empty, out of the game
	SeatLoser    SeatStatus = "LOSER"
)

// Seat is one participant's cards. During stage 1 Hand is a pile whose last
// element is the face-up card.
type Seat struct {
	Position      int               `json:"position"`
	Occupant      models.OccupantID `json:"occupant_id"`
	Hand          []cards.Card      `json:"hand"`
	Stubs         []cards.Card      `json:"stubs"`
	StubsRevealed bool              `json:"stubs_revealed"`
	Status        SeatStatus        `json:"status"`
	Declared      bool              `json:"declared"`
}

// Top returns the stage-1 face-up card.
func (s Seat) Top() (cards.Card, bool) {
	if len(s.Hand) == 0 {
		return cards.Card{}, false
	}
	return s.Hand[len(s.Hand)-1], true
}

// TableCard is a card on the table stack together with who played it.
type TableCard struct {
	Card     cards.Card `json:"card"`
	Position int        `json:"position"`
}

// State is the complete, serializable state of a game session.
type State struct {
	RoomID      uuid.UUID         `json:"room_id"`
	Phase       Phase             `json:"phase"`
	Trump       cards.Suit        `json:"trump,omitempty"`
	Deck        []cards.Card      `json:"deck"`
	Table       []TableCard       `json:"table"`
	TrickSize   int               `json:"trick_size"`
	Passes      int               `json:"passes"`
	Discard     []cards.Card      `json:"discard"`
	Turn        int               `json:"turn"`
	Seats       []Seat            `json:"seats"`
	Challenges  []ChallengeRecord `json:"challenges"`
	FinishOrder []int             `json:"finish_order"`
	Loser       int               `json:"loser,omitempty"`
	LastDrawn   *cards.Card       `json:"last_drawn,omitempty"`
	LastAction  *Action           `json:"last_action,omitempty"`
	TotalCards  int               `json:"total_cards"`
}

// Clone returns a deep copy of the state.
func (st State) Clone() State {
	out := st
	out.Deck = cloneCards(st.Deck)
	out.Discard = cloneCards(st.Discard)
	if st.Table != nil {
		out.Table = append([]TableCard(nil), st.Table...)
	}
	if st.FinishOrder != nil {
		out.FinishOrder = append([]int(nil), st.FinishOrder...)
	}
	out.Seats = make([]Seat, len(st.Seats))
	for i, seat := range st.Seats {
		seat.Hand = cloneCards(seat.Hand)
		seat.Stubs = cloneCards(seat.Stubs)
		out.Seats[i] = seat
	}
	if st.Challenges != nil {
		out.Challenges = make([]ChallengeRecord, len(st.Challenges))
		for i, rec := range st.Challenges {
			rec.Entries = append([]PenaltyEntry(nil), rec.Entries...)
			rec.Skipped = append([]int(nil), rec.Skipped...)
			out.Challenges[i] = rec
		}
	}
	if st.LastDrawn != nil {
		c := *st.LastDrawn
		out.LastDrawn = &c
	}
	if st.LastAction != nil {
		a := st.LastAction.clone()
		out.LastAction = &a
	}
	return out
}

// Seat returns the seat at position.
func (st State) Seat(position int) (Seat, bool) {
	for _, s := range st.Seats {
		if s.Position == position {
			return s, true
		}
	}
	return Seat{}, false
}

// PositionOf returns the position of occupant.
func (st State) PositionOf(occupant models.OccupantID) (int, bool) {
	for _, s := range st.Seats {
		if s.Occupant == occupant {
			return s.Position, true
		}
	}
	return 0, false
}

// Over reports whether the session has ended.
func (st State) Over() bool {
	return st.Phase == PhaseOver
}

func cloneCards(in []cards.Card) []cards.Card {
	if in == nil {
		return nil
	}
	return append([]cards.Card(nil), in...)
}
