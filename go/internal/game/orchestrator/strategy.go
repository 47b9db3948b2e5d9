package orchestrator

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/mcdev12/pidr/go/internal/cards"
	"github.com/mcdev12/pidr/go/internal/game"
	"github.com/mcdev12/pidr/go/internal/models"
)

// Situation is what a strategy sees when it has to move for a seat.
type Situation struct {
	State  game.State
	Rules  game.Rules
	Seat   game.Seat
	Streak int // consecutive stage-1 attacks on this table
}

// TurnStrategy picks the action for the seat on turn.
type TurnStrategy interface {
	Choose(s Situation) (game.Action, error)
}

// ForcedMove is the action applied when a turn runs out: draw in stage 1;
// afterwards lead the cheapest card onto an empty table or take the stack.
func ForcedMove(s Situation) (game.Action, error) {
	a := game.Action{Actor: s.Seat.Position, Forced: true}
	if s.State.Phase == game.PhaseStage1 {
		a.Kind = game.ActionDraw
		return a, nil
	}
	if len(s.State.Table) > 0 {
		a.Kind = game.ActionTake
		return a, nil
	}
	low, ok := cards.Lowest(s.Seat.Hand, s.State.Trump)
	if !ok {
		return game.Action{}, fmt.Errorf("%w: seat %d on turn with an empty hand", models.ErrInvariantViolation, s.Seat.Position)
	}
	a.Kind = game.ActionPlay
	a.Card = &low
	return a, nil
}

// TimeoutStrategy applies ForcedMove.
type TimeoutStrategy struct{}

func (TimeoutStrategy) Choose(s Situation) (game.Action, error) {
	return ForcedMove(s)
}

// BotStrategy plays cheaply: attack a random weaker seat in stage 1 until
// the streak limit, beat with the lowest card that does, pass when allowed
// and otherwise fall back to the forced move.
type BotStrategy struct {
	mu          sync.Mutex
	rng         *rand.Rand
	streakLimit int
}

// NewBotStrategy constructs a BotStrategy with its own seed.
func NewBotStrategy(seed int64, streakLimit int) *BotStrategy {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if streakLimit <= 0 {
		streakLimit = 3
	}
	return &BotStrategy{rng: rand.New(rand.NewSource(seed)), streakLimit: streakLimit}
}

func (b *BotStrategy) Choose(s Situation) (game.Action, error) {
	if s.State.Phase == game.PhaseStage1 {
		return b.stage1(s)
	}
	n := len(s.State.Table)
	if n == 0 {
		return ForcedMove(s)
	}
	top := s.State.Table[n-1]
	if c, ok := cards.LowestBeating(s.Seat.Hand, top.Card, s.State.Trump); ok {
		return game.Action{Kind: game.ActionPlay, Actor: s.Seat.Position, Card: &c}, nil
	}
	if s.Rules.AllowPass && n >= 2 && top.Position != s.Seat.Position {
		return game.Action{Kind: game.ActionPass, Actor: s.Seat.Position}, nil
	}
	return game.Action{Kind: game.ActionTake, Actor: s.Seat.Position}, nil
}

func (b *BotStrategy) stage1(s Situation) (game.Action, error) {
	draw := game.Action{Kind: game.ActionDraw, Actor: s.Seat.Position}
	if s.Streak >= b.streakLimit {
		return draw, nil
	}
	top, ok := s.Seat.Top()
	if !ok {
		return draw, nil
	}
	var targets []int
	for _, other := range s.State.Seats {
		if other.Position == s.Seat.Position || other.Status != game.SeatActive {
			continue
		}
		// never bounce a card straight back at the seat that sent it
		if last := s.State.LastAction; last != nil && last.Kind == game.ActionPlay &&
			last.Target == s.Seat.Position && last.Actor == other.Position {
			continue
		}
		if t, ok := other.Top(); ok && cards.BeatsStage1(top, t) {
			targets = append(targets, other.Position)
		}
	}
	if len(targets) == 0 {
		return draw, nil
	}
	b.mu.Lock()
	target := targets[b.rng.Intn(len(targets))]
	b.mu.Unlock()
	return game.Action{Kind: game.ActionPlay, Actor: s.Seat.Position, Target: target}, nil
}

// pendingDeclaration returns a bot seat holding one undeclared card.
func pendingDeclaration(st game.State) (game.Seat, bool) {
	if st.Phase.Stage() < 2 {
		return game.Seat{}, false
	}
	for _, seat := range st.Seats {
		if seat.Occupant.IsBot() && seat.Status == game.SeatActive && len(seat.Hand) == 1 && !seat.Declared {
			return seat, true
		}
	}
	return game.Seat{}, false
}
