package game

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/pidr/go/internal/cards"
	"github.com/mcdev12/pidr/go/internal/models"
)

// Snapshot is an immutable committed state with its version. It carries
// every hidden card and never leaves the server as is; clients get a View.
type Snapshot struct {
	RoomID    uuid.UUID `json:"room_id"`
	Version   uint64    `json:"version"`
	State     State     `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// NewSnapshot captures st at version.
func NewSnapshot(version uint64, st State, at time.Time) *Snapshot {
	return &Snapshot{
		RoomID:    st.RoomID,
		Version:   version,
		State:     st.Clone(),
		CreatedAt: at,
	}
}

// SeatView is what a viewer may see of one seat.
type SeatView struct {
	Position      int               `json:"position"`
	Occupant      models.OccupantID `json:"occupant_id"`
	Status        SeatStatus        `json:"status"`
	HandCount     int               `json:"hand_count"`
	StubCount     int               `json:"stub_count"`
	StubsRevealed bool              `json:"stubs_revealed"`
	Declared      bool              `json:"declared"`
	FaceUp        *cards.Card       `json:"face_up,omitempty"` // stage 1 only
	Hand          []cards.Card      `json:"hand,omitempty"`    // only for the viewer's own seat
}

// PenaltyView is a penalty ledger entry as a viewer sees it. The card came
// out of a private hand, so only the two seats it moved between see it.
type PenaltyView struct {
	Contributor int         `json:"contributor"`
	Target      int         `json:"target"`
	Card        *cards.Card `json:"card,omitempty"`
	At          time.Time   `json:"at"`
}

type ChallengeView struct {
	Seq        int              `json:"seq"`
	Challenger int              `json:"challenger"`
	Target     int              `json:"target"`
	Outcome    ChallengeOutcome `json:"outcome"`
	Entries    []PenaltyView    `json:"entries,omitempty"`
	Skipped    []int            `json:"skipped,omitempty"`
	At         time.Time        `json:"at"`
}

func challengeViews(records []ChallengeRecord, viewer int) []ChallengeView {
	if len(records) == 0 {
		return nil
	}
	out := make([]ChallengeView, len(records))
	for i, rec := range records {
		cv := ChallengeView{
			Seq:        rec.Seq,
			Challenger: rec.Challenger,
			Target:     rec.Target,
			Outcome:    rec.Outcome,
			Skipped:    rec.Skipped,
			At:         rec.At,
		}
		for _, e := range rec.Entries {
			pv := PenaltyView{Contributor: e.Contributor, Target: e.Target, At: e.At}
			if viewer != 0 && (viewer == e.Contributor || viewer == e.Target) {
				c := e.Card
				pv.Card = &c
			}
			cv.Entries = append(cv.Entries, pv)
		}
		out[i] = cv
	}
	return out
}

// View is a redacted snapshot for one viewer.
type View struct {
	RoomID       uuid.UUID         `json:"room_id"`
	Version      uint64            `json:"version"`
	Viewer       int               `json:"viewer,omitempty"` // 0 for spectators
	Phase        Phase             `json:"phase"`
	Stage        int               `json:"stage"`
	Trump        cards.Suit        `json:"trump,omitempty"`
	DeckCount    int               `json:"deck_count"`
	Table        []TableCard       `json:"table"`
	DiscardCount int               `json:"discard_count"`
	Turn         int               `json:"turn"`
	Seats        []SeatView        `json:"seats"`
	FinishOrder  []int             `json:"finish_order,omitempty"`
	Loser        int               `json:"loser,omitempty"`
	LastAction   *Action           `json:"last_action,omitempty"`
	Challenges   []ChallengeView   `json:"challenges,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// ViewFor renders the snapshot for the seat at viewer. Pass 0 for a spectator.
func (s *Snapshot) ViewFor(viewer int) *View {
	st := s.State.Clone()
	v := &View{
		RoomID:       s.RoomID,
		Version:      s.Version,
		Viewer:       viewer,
		Phase:        st.Phase,
		Stage:        st.Phase.Stage(),
		Trump:        st.Trump,
		DeckCount:    len(st.Deck),
		Table:        st.Table,
		DiscardCount: len(st.Discard),
		Turn:         st.Turn,
		Seats:        make([]SeatView, len(st.Seats)),
		FinishOrder:  st.FinishOrder,
		Loser:        st.Loser,
		LastAction:   st.LastAction,
		Challenges:   challengeViews(st.Challenges, viewer),
		CreatedAt:    s.CreatedAt,
	}
	for i, seat := range st.Seats {
		sv := SeatView{
			Position:      seat.Position,
			Occupant:      seat.Occupant,
			Status:        seat.Status,
			HandCount:     len(seat.Hand),
			StubCount:     len(seat.Stubs),
			StubsRevealed: seat.StubsRevealed,
			Declared:      seat.Declared,
		}
		if st.Phase == PhaseStage1 {
			if top, ok := seat.Top(); ok {
				sv.FaceUp = &top
			}
		}
		if viewer != 0 && seat.Position == viewer {
			sv.Hand = seat.Hand
		}
		v.Seats[i] = sv
	}
	return v
}

// ViewForOccupant renders the snapshot for whoever occupant is, falling back
// to the spectator view.
func (s *Snapshot) ViewForOccupant(occupant models.OccupantID) *View {
	pos, _ := s.State.PositionOf(occupant)
	return s.ViewFor(pos)
}
