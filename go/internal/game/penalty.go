package game

import (
	"fmt"
	"time"

	"github.com/mcdev12/pidr/go/internal/cards"
	"github.com/mcdev12/pidr/go/internal/models"
)

// ChallengeOutcome records how a last-card challenge resolved.
type ChallengeOutcome string

const (
	OutcomePenalized       ChallengeOutcome = "PENALIZED"
	OutcomeAlreadyDeclared ChallengeOutcome = "ALREADY_DECLARED"
)

// PenaltyEntry is one card moved into the offending seat's hand.
type PenaltyEntry struct {
	Contributor int        `json:"contributor"`
	Target      int        `json:"target"`
	Card        cards.Card `json:"card"`
	At          time.Time  `json:"at"`
}

// ChallengeRecord is the ledger line for one challenge.
type ChallengeRecord struct {
	Seq        int              `json:"seq"`
	Challenger int              `json:"challenger"`
	Target     int              `json:"target"`
	Outcome    ChallengeOutcome `json:"outcome"`
	Entries    []PenaltyEntry   `json:"entries,omitempty"`
	Skipped    []int            `json:"skipped,omitempty"` // contributors with nothing to give
	At         time.Time        `json:"at"`
}

func (s *Session) declare(actor *Seat) error {
	if s.st.Phase == PhaseStage1 {
		return fmt.Errorf("%w: last-card declarations start in stage 2", models.ErrIllegalMove)
	}
	if actor.Status != SeatActive || len(actor.Hand) != 1 {
		return fmt.Errorf("%w: hand does not hold a single card", models.ErrIllegalMove)
	}
	actor.Declared = true
	return nil
}

// challenge penalizes a seat that sits on one undeclared card: every other
// seat holding cards gives it one. A declared target makes this an audit-only
// record.
func (s *Session) challenge(challenger *Seat, targetPos int) error {
	if s.st.Phase == PhaseStage1 {
		return fmt.Errorf("%w: last-card challenges start in stage 2", models.ErrIllegalMove)
	}
	if targetPos == challenger.Position {
		return fmt.Errorf("%w: cannot challenge yourself", models.ErrIllegalMove)
	}
	target := s.seat(targetPos)
	if target == nil || target.Status != SeatActive || len(target.Hand) != 1 {
		return fmt.Errorf("%w: seat %d does not hold a single card", models.ErrIllegalMove, targetPos)
	}

	now := s.clock.Now()
	rec := ChallengeRecord{
		Seq:        len(s.st.Challenges) + 1,
		Challenger: challenger.Position,
		Target:     target.Position,
		At:         now,
	}
	if target.Declared {
		rec.Outcome = OutcomeAlreadyDeclared
		s.st.Challenges = append(s.st.Challenges, rec)
		return nil
	}

	var plan []PenaltyEntry
	for _, seat := range s.st.Seats {
		if seat.Position == target.Position {
			continue
		}
		if seat.Status != SeatActive || len(seat.Hand) == 0 {
			rec.Skipped = append(rec.Skipped, seat.Position)
			continue
		}
		card, _ := cards.Lowest(seat.Hand, s.st.Trump)
		plan = append(plan, PenaltyEntry{
			Contributor: seat.Position,
			Target:      target.Position,
			Card:        card,
			At:          now,
		})
	}

	if err := s.flushPenalty(plan); err != nil {
		return err
	}
	rec.Outcome = OutcomePenalized
	rec.Entries = plan
	s.st.Challenges = append(s.st.Challenges, rec)
	return nil
}

// flushPenalty moves every planned card at once. If any transfer cannot be
// applied, the ones already applied are reversed.
func (s *Session) flushPenalty(plan []PenaltyEntry) error {
	for i, e := range plan {
		if err := s.transfer(e.Contributor, e.Target, e.Card); err != nil {
			for j := i - 1; j >= 0; j-- {
				back := plan[j]
				if rbErr := s.transfer(back.Target, back.Contributor, back.Card); rbErr != nil {
					return fmt.Errorf("%w: penalty rollback failed: %v", models.ErrInvariantViolation, rbErr)
				}
			}
			return fmt.Errorf("%w: penalty transfer failed: %v", models.ErrInvariantViolation, err)
		}
	}
	if len(plan) > 0 {
		target := s.seat(plan[0].Target)
		cards.SortHand(target.Hand)
	}
	return nil
}

func (s *Session) transfer(from, to int, card cards.Card) error {
	src, dst := s.seat(from), s.seat(to)
	if src == nil || dst == nil {
		return fmt.Errorf("transfer between unknown seats %d and %d", from, to)
	}
	hand, ok := cards.Remove(src.Hand, card)
	if !ok {
		return fmt.Errorf("seat %d does not hold %s", from, card)
	}
	src.Hand = hand
	dst.Hand = append(dst.Hand, card)
	return nil
}
