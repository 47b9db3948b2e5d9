package game

import (
	"fmt"

	"github.com/mcdev12/pidr/go/internal/cards"
)

// ActionKind names a command a seat can submit.
type ActionKind string

const (
	ActionPlay      ActionKind = "PLAY"
	ActionDraw      ActionKind = "DRAW"
	ActionTake      ActionKind = "TAKE"
	ActionPass      ActionKind = "PASS"
	ActionDeclare   ActionKind = "DECLARE"
	ActionChallenge ActionKind = "CHALLENGE"
	ActionForfeit   ActionKind = "FORFEIT"
)

// Action is a single command against a session. Target is a seat position
// for stage-1 plays and challenges. Card is required for stage-2/3 plays.
type Action struct {
	Kind   ActionKind  `json:"kind"`
	Actor  int         `json:"actor"`
	Target int         `json:"target,omitempty"`
	Card   *cards.Card `json:"card,omitempty"`
	Forced bool        `json:"forced,omitempty"` // applied by the turn timer
}

func (a Action) clone() Action {
	if a.Card != nil {
		c := *a.Card
		a.Card = &c
	}
	return a
}

func (a Action) String() string {
	s := fmt.Sprintf("%s by %d", a.Kind, a.Actor)
	if a.Card != nil {
		s += " card " + a.Card.String()
	}
	if a.Target != 0 {
		s += fmt.Sprintf(" target %d", a.Target)
	}
	return s
}

// TakesTurn reports whether the action is only valid for the seat on turn.
func (k ActionKind) TakesTurn() bool {
	switch k {
	case ActionPlay, ActionDraw, ActionTake, ActionPass:
		return true
	}
	return false
}
