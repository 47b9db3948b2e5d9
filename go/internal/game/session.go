package game

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/pidr/go/internal/cards"
	"github.com/mcdev12/pidr/go/internal/models"
)

// Rules holds the rule variants a room can toggle.
type Rules struct {
	// AllowPass lets a seat pass instead of taking the stack once at least
	// one beat is on the table.
	AllowPass bool `yaml:"allow_pass" json:"allow_pass"`
}

// SeatAssignment is a seat taking part in a new session.
type SeatAssignment struct {
	Position int
	Occupant models.OccupantID
}

// Session is the rule engine for one room. It is not safe for concurrent use;
// callers serialize access per room.
type Session struct {
	st    State
	rules Rules
	clock clockwork.Clock
}

// NewSession deals deck to the seats and opens stage 1.
func NewSession(roomID uuid.UUID, seats []SeatAssignment, deck []cards.Card, rules Rules, clock clockwork.Clock) (*Session, error) {
	if len(seats) < models.MinRoomPlayers || len(seats) > models.MaxRoomPlayers {
		return nil, fmt.Errorf("session needs %d to %d seats, got %d", models.MinRoomPlayers, models.MaxRoomPlayers, len(seats))
	}
	ordered := append([]SeatAssignment(nil), seats...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Position < ordered[j].Position })

	deals, rest, err := cards.DealSeats(deck, len(ordered))
	if err != nil {
		return nil, fmt.Errorf("failed to deal: %w", err)
	}

	st := State{
		RoomID:     roomID,
		Phase:      PhaseStage1,
		Deck:       rest,
		Seats:      make([]Seat, len(ordered)),
		TotalCards: len(deck),
	}
	for i, a := range ordered {
		st.Seats[i] = Seat{
			Position: a.Position,
			Occupant: a.Occupant,
			Hand:     []cards.Card{deals[i].FaceUp},
			Stubs:    []cards.Card{deals[i].Stubs[0], deals[i].Stubs[1]},
			Status:   SeatActive,
		}
	}
	st.Turn = openingSeat(st.Seats)

	s := &Session{st: st, rules: rules, clock: clock}
	if err := s.Verify(); err != nil {
		return nil, err
	}
	return s, nil
}

// Restore rebuilds a session from a previously captured state.
func Restore(st State, rules Rules, clock clockwork.Clock) (*Session, error) {
	s := &Session{st: st.Clone(), rules: rules, clock: clock}
	if err := s.Verify(); err != nil {
		return nil, err
	}
	return s, nil
}

// openingSeat picks the lowest face-up card under the stage-1 ordering,
// breaking ties by position.
func openingSeat(seats []Seat) int {
	best := -1
	var bestCard cards.Card
	for i, seat := range seats {
		top, ok := seat.Top()
		if !ok {
			continue
		}
		if best < 0 || cards.LowerStage1(top, bestCard) {
			best, bestCard = i, top
		}
	}
	if best < 0 {
		return seats[0].Position
	}
	return seats[best].Position
}

// State returns a deep copy of the current state.
func (s *Session) State() State {
	return s.st.Clone()
}

func (s *Session) Phase() Phase { return s.st.Phase }

func (s *Session) Turn() int { return s.st.Turn }

func (s *Session) Trump() cards.Suit { return s.st.Trump }

func (s *Session) Rules() Rules { return s.rules }

// Apply validates a and, if legal, mutates the session. A rejected action
// leaves the session untouched.
func (s *Session) Apply(a Action) error {
	if s.st.Phase == PhaseOver {
		return fmt.Errorf("%w: game is over", models.ErrIllegalMove)
	}
	actor := s.seat(a.Actor)
	if actor == nil {
		return fmt.Errorf("%w: no seat at position %d", models.ErrNotSeated, a.Actor)
	}
	if a.Kind.TakesTurn() {
		if actor.Status != SeatActive || s.st.Turn != actor.Position {
			return models.ErrNotYourTurn
		}
	}

	var err error
	switch a.Kind {
	case ActionDeclare:
		err = s.declare(actor)
	case ActionChallenge:
		err = s.challenge(actor, a.Target)
	case ActionForfeit:
		s.forfeit(actor)
	case ActionPlay:
		if s.st.Phase == PhaseStage1 {
			err = s.attack(actor, a)
		} else {
			err = s.playTrick(actor, a)
		}
	case ActionDraw:
		if s.st.Phase != PhaseStage1 {
			return fmt.Errorf("%w: drawing is only possible in stage 1", models.ErrIllegalMove)
		}
		err = s.draw(actor)
	case ActionTake:
		if s.st.Phase == PhaseStage1 {
			return fmt.Errorf("%w: there is no table stack in stage 1", models.ErrIllegalMove)
		}
		err = s.take(actor)
	case ActionPass:
		if s.st.Phase == PhaseStage1 {
			return fmt.Errorf("%w: passing is not possible in stage 1", models.ErrIllegalMove)
		}
		err = s.pass(actor)
	default:
		return fmt.Errorf("%w: unknown action %q", models.ErrIllegalMove, a.Kind)
	}
	if err != nil {
		return err
	}

	s.settle()
	applied := a.clone()
	s.st.LastAction = &applied
	return nil
}

// settle runs the per-seat and session-wide transitions that follow any
// accepted action.
func (s *Session) settle() {
	if s.st.Phase == PhaseOver || s.st.Phase == PhaseStage1 {
		return
	}

	for i := range s.st.Seats {
		seat := &s.st.Seats[i]
		if seat.Status != SeatActive || len(seat.Hand) > 0 {
			continue
		}
		if !seat.StubsRevealed {
			s.revealStubs(seat)
			continue
		}
		seat.Status = SeatFinished
		seat.Declared = false
		s.st.FinishOrder = append(s.st.FinishOrder, seat.Position)
	}

	for i := range s.st.Seats {
		if len(s.st.Seats[i].Hand) != 1 {
			s.st.Seats[i].Declared = false
		}
	}

	active := s.activePositions()
	switch len(active) {
	case 0:
		s.st.Phase = PhaseOver
		return
	case 1:
		loser := s.seat(active[0])
		loser.Status = SeatLoser
		s.st.Loser = loser.Position
		s.st.Phase = PhaseOver
		return
	}

	if s.st.Phase == PhaseStage2 && s.allRevealed() {
		s.st.Phase = PhaseStage3
	}
	if turn := s.seat(s.st.Turn); turn == nil || turn.Status != SeatActive {
		s.st.Turn = s.nextActive(s.st.Turn)
	}
}

func (s *Session) revealStubs(seat *Seat) {
	seat.Hand = append(seat.Hand, seat.Stubs...)
	cards.SortHand(seat.Hand)
	seat.Stubs = nil
	seat.StubsRevealed = true
}

func (s *Session) forfeit(seat *Seat) {
	seat.Status = SeatLoser
	seat.Declared = false
	s.st.Loser = seat.Position
	s.st.Phase = PhaseOver
}

func (s *Session) allRevealed() bool {
	for _, seat := range s.st.Seats {
		if seat.Status == SeatActive && !seat.StubsRevealed {
			return false
		}
	}
	return true
}

func (s *Session) seat(position int) *Seat {
	for i := range s.st.Seats {
		if s.st.Seats[i].Position == position {
			return &s.st.Seats[i]
		}
	}
	return nil
}

func (s *Session) activePositions() []int {
	var out []int
	for _, seat := range s.st.Seats {
		if seat.Status == SeatActive {
			out = append(out, seat.Position)
		}
	}
	return out
}

// nextActive returns the next active position after from, ascending and
// wrapping. It returns from when no other seat is active.
func (s *Session) nextActive(from int) int {
	n := len(s.st.Seats)
	start := 0
	for i, seat := range s.st.Seats {
		if seat.Position >= from {
			start = i
			break
		}
		start = i + 1
	}
	for k := 0; k < n; k++ {
		seat := s.st.Seats[(start+k)%n]
		if seat.Position != from && seat.Status == SeatActive {
			return seat.Position
		}
	}
	return from
}

// Verify checks the structural invariants of the session.
func (s *Session) Verify() error {
	st := &s.st
	seen := make(map[cards.Card]string, st.TotalCards)
	count := 0
	note := func(where string, cs ...cards.Card) error {
		for _, c := range cs {
			if prev, dup := seen[c]; dup {
				return fmt.Errorf("%w: card %s in both %s and %s", models.ErrInvariantViolation, c, prev, where)
			}
			seen[c] = where
			count++
		}
		return nil
	}

	if err := note("deck", st.Deck...); err != nil {
		return err
	}
	if err := note("discard", st.Discard...); err != nil {
		return err
	}
	for _, tc := range st.Table {
		if err := note("table", tc.Card); err != nil {
			return err
		}
	}

	positions := make(map[int]bool, len(st.Seats))
	for i, seat := range st.Seats {
		if positions[seat.Position] {
			return fmt.Errorf("%w: position %d assigned twice", models.ErrInvariantViolation, seat.Position)
		}
		positions[seat.Position] = true
		if i > 0 && st.Seats[i-1].Position > seat.Position {
			return fmt.Errorf("%w: seats out of position order", models.ErrInvariantViolation)
		}
		where := fmt.Sprintf("seat %d", seat.Position)
		if err := note(where, seat.Hand...); err != nil {
			return err
		}
		if err := note(where+" stubs", seat.Stubs...); err != nil {
			return err
		}
		if !seat.StubsRevealed && len(seat.Stubs) != 2 {
			return fmt.Errorf("%w: seat %d holds %d hidden stubs", models.ErrInvariantViolation, seat.Position, len(seat.Stubs))
		}
	}

	if count != st.TotalCards {
		return fmt.Errorf("%w: %d cards in play, expected %d", models.ErrInvariantViolation, count, st.TotalCards)
	}
	if st.Phase != PhaseOver {
		turn := s.seat(st.Turn)
		if turn == nil || turn.Status != SeatActive {
			return fmt.Errorf("%w: turn position %d is not an active seat", models.ErrInvariantViolation, st.Turn)
		}
	}
	if st.Loser != 0 {
		loser := s.seat(st.Loser)
		if loser == nil || loser.Status != SeatLoser {
			return fmt.Errorf("%w: loser %d is not marked", models.ErrInvariantViolation, st.Loser)
		}
	}
	return nil
}
