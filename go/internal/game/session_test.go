package game

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/pidr/go/internal/cards"
	"github.com/mcdev12/pidr/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

func card(r cards.Rank, s cards.Suit) cards.Card {
	return cards.Card{Rank: r, Suit: s}
}

func cardPtr(r cards.Rank, s cards.Suit) *cards.Card {
	c := card(r, s)
	return &c
}

func assignments(n int) []SeatAssignment {
	out := make([]SeatAssignment, n)
	for i := range out {
		out[i] = SeatAssignment{Position: i + 1, Occupant: models.OccupantID(100 + i)}
	}
	return out
}

func newSession(t *testing.T, n int, deck []cards.Card, rules Rules) *Session {
	t.Helper()
	s, err := NewSession(uuid.New(), assignments(n), deck, rules, clockwork.NewFakeClockAt(epoch))
	require.NoError(t, err)
	return s
}

func TestNewSessionDealsAndPicksOpeningSeat(t *testing.T) {
	deck := []cards.Card{
		card(3, cards.Clubs), card(3, cards.Diamonds), card(9, cards.Hearts),
		card(4, cards.Clubs), card(4, cards.Diamonds), card(6, cards.Hearts),
		card(5, cards.Clubs), card(5, cards.Diamonds), card(6, cards.Spades),
		card(cards.King, cards.Clubs),
	}
	s := newSession(t, 3, deck, Rules{})
	st := s.State()

	assert.Equal(t, PhaseStage1, st.Phase)
	assert.Len(t, st.Deck, 1)
	require.Len(t, st.Seats, 3)
	assert.Equal(t, []cards.Card{card(3, cards.Clubs), card(3, cards.Diamonds)}, st.Seats[0].Stubs)
	assert.Equal(t, []cards.Card{card(9, cards.Hearts)}, st.Seats[0].Hand)
	// both sixes tie, the lower position opens
	assert.Equal(t, 2, st.Turn)
}

func TestOpeningSeatRanksTwoAboveAce(t *testing.T) {
	deck := []cards.Card{
		card(3, cards.Clubs), card(3, cards.Diamonds), card(2, cards.Hearts),
		card(4, cards.Clubs), card(4, cards.Diamonds), card(cards.Ace, cards.Diamonds),
		card(9, cards.Diamonds), card(cards.King, cards.Spades),
	}
	s := newSession(t, 2, deck, Rules{})
	// the face-up 2 is the highest stage-1 rank, so the Ace opens
	assert.Equal(t, 2, s.Turn())
}

// Seat A shows 5 and seat B shows 2. Under stage-1 ordering 2 ranks above
// Ace, so A has nothing to attack.
func TestStage1RejectsAttackOntoTwo(t *testing.T) {
	deck := []cards.Card{
		card(3, cards.Clubs), card(3, cards.Diamonds), card(5, cards.Hearts),
		card(4, cards.Clubs), card(4, cards.Diamonds), card(2, cards.Clubs),
		card(9, cards.Diamonds), card(cards.King, cards.Spades),
	}
	s := newSession(t, 2, deck, Rules{})
	require.Equal(t, 1, s.Turn())
	before := s.State()

	err := s.Apply(Action{Kind: ActionPlay, Actor: 1, Target: 2})
	assert.ErrorIs(t, err, models.ErrIllegalMove)
	assert.Empty(t, s.LegalTargets(1))
	assert.Equal(t, before, s.State())
}

func TestStage1DrawAttackAndTransition(t *testing.T) {
	deck := []cards.Card{
		card(3, cards.Clubs), card(3, cards.Diamonds), card(4, cards.Hearts),
		card(5, cards.Clubs), card(5, cards.Diamonds), card(9, cards.Clubs),
		card(cards.Jack, cards.Spades), card(6, cards.Diamonds), card(8, cards.Clubs), card(cards.Queen, cards.Hearts),
	}
	s := newSession(t, 2, deck, Rules{})
	require.Equal(t, 1, s.Turn())

	// jack beats the own four: replaces it and keeps the turn
	require.NoError(t, s.Apply(Action{Kind: ActionDraw, Actor: 1}))
	assert.Equal(t, 1, s.Turn())
	assert.Equal(t, []int{2}, s.LegalTargets(1))

	err := s.Apply(Action{Kind: ActionDraw, Actor: 2})
	assert.ErrorIs(t, err, models.ErrNotYourTurn)

	require.NoError(t, s.Apply(Action{Kind: ActionPlay, Actor: 1, Target: 2}))
	st := s.State()
	assert.Equal(t, 2, st.Turn)
	assert.Equal(t, []cards.Card{card(4, cards.Hearts)}, st.Seats[0].Hand)
	assert.Equal(t, []cards.Card{card(9, cards.Clubs), card(cards.Jack, cards.Spades)}, st.Seats[1].Hand)

	// six does not beat the jack: tucked under, turn moves on
	require.NoError(t, s.Apply(Action{Kind: ActionDraw, Actor: 2}))
	st = s.State()
	assert.Equal(t, 1, st.Turn)
	top, _ := st.Seats[1].Top()
	assert.Equal(t, card(cards.Jack, cards.Spades), top)

	require.NoError(t, s.Apply(Action{Kind: ActionDraw, Actor: 1}))
	assert.Equal(t, 1, s.Turn())

	// last card is a heart: stage 2 opens with hearts as trump, drawer leads
	require.NoError(t, s.Apply(Action{Kind: ActionDraw, Actor: 1}))
	st = s.State()
	assert.Equal(t, PhaseStage2, st.Phase)
	assert.Equal(t, cards.Hearts, st.Trump)
	assert.Equal(t, 1, st.Turn)
	assert.Equal(t, []cards.Card{card(4, cards.Hearts), card(8, cards.Clubs), card(cards.Queen, cards.Hearts)}, st.Seats[0].Hand)
	assert.Equal(t, []cards.Card{card(6, cards.Diamonds), card(9, cards.Clubs), card(cards.Jack, cards.Spades)}, st.Seats[1].Hand)

	err = s.Apply(Action{Kind: ActionDraw, Actor: 1})
	assert.ErrorIs(t, err, models.ErrIllegalMove)

	// full two-card trick is discarded and the beater leads
	require.NoError(t, s.Apply(Action{Kind: ActionPlay, Actor: 1, Card: cardPtr(8, cards.Clubs)}))
	require.NoError(t, s.Apply(Action{Kind: ActionPlay, Actor: 2, Card: cardPtr(9, cards.Clubs)}))
	st = s.State()
	assert.Empty(t, st.Table)
	assert.Len(t, st.Discard, 2)
	assert.Equal(t, 2, st.Turn)
	require.NoError(t, s.Verify())
}

func TestStage1ReservedLastCardLeavesNoTrump(t *testing.T) {
	deck := []cards.Card{
		card(3, cards.Clubs), card(3, cards.Diamonds), card(4, cards.Hearts),
		card(5, cards.Clubs), card(5, cards.Diamonds), card(9, cards.Clubs),
		card(2, cards.Spades),
	}
	s := newSession(t, 2, deck, Rules{})

	require.NoError(t, s.Apply(Action{Kind: ActionDraw, Actor: 1}))
	assert.Equal(t, PhaseStage2, s.Phase())
	assert.Equal(t, cards.NoSuit, s.Trump())
}

// Plays a shuffled full deck through stage 1, then rebuilds the game from the
// actions carried by each snapshot and expects the same stage-2 entry.
func TestStage1ReplayFromSnapshots(t *testing.T) {
	deck := cards.Shuffle(cards.NewDeck(), rand.New(rand.NewSource(42)))
	roomID := uuid.New()
	clock := clockwork.NewFakeClockAt(epoch)

	s, err := NewSession(roomID, assignments(4), deck, Rules{}, clock)
	require.NoError(t, err)

	var snaps []*Snapshot
	var version uint64
	streak := 0
	for i := 0; s.Phase() == PhaseStage1; i++ {
		require.Less(t, i, 1000, "stage 1 did not terminate")
		turn := s.Turn()
		a := Action{Kind: ActionDraw, Actor: turn}
		if targets := s.LegalTargets(turn); len(targets) > 0 && streak < 3 {
			a = Action{Kind: ActionPlay, Actor: turn, Target: targets[0]}
			streak++
		} else {
			streak = 0
		}
		require.NoError(t, s.Apply(a))
		require.NoError(t, s.Verify())
		version++
		snaps = append(snaps, NewSnapshot(version, s.State(), clock.Now()))
	}

	assert.Equal(t, PhaseStage2, s.Phase())
	assert.Equal(t, cards.TrumpFor(deck[len(deck)-1]), s.Trump())

	replay, err := NewSession(roomID, assignments(4), deck, Rules{}, clock)
	require.NoError(t, err)
	for i, snap := range snaps {
		require.Equal(t, uint64(i+1), snap.Version)
		require.NotNil(t, snap.State.LastAction)
		require.NoError(t, replay.Apply(*snap.State.LastAction))
	}

	assert.Equal(t, s.State(), replay.State())
	assert.Equal(t, snaps[len(snaps)-1].State, replay.State())
}
