package orchestrator

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/pidr/go/internal/game"
	"github.com/mcdev12/pidr/go/internal/models"
)

// DefaultIdempotencyWindow is how many command keys a table remembers.
const DefaultIdempotencyWindow = 256

// errStale is returned when a timer or bot task no longer matches the
// table version it was scheduled for.
var errStale = errors.New("stale turn task")

// Client keys are scoped to the occupant that sent them. Moves the
// orchestrator makes on its own use the internal prefix, which a scoped
// client key can never start with.
const (
	clientKeyPrefix   = "client:"
	internalKeyPrefix = "internal:"
)

func clientKey(occupant models.OccupantID, key string) string {
	if key == "" {
		return ""
	}
	return clientKeyPrefix + occupant.String() + ":" + key
}

func internalKey(parts ...string) string {
	return internalKeyPrefix + strings.Join(parts, ":")
}

// Table is the single writer of one room's session. The mutex only covers
// validate-and-apply; readers use the published snapshot.
type Table struct {
	roomID uuid.UUID
	clock  clockwork.Clock

	mu      sync.Mutex
	session *game.Session
	version uint64
	streak  int // consecutive stage-1 attacks since the last draw
	keys    map[string]*game.Snapshot
	order   []string
	window  int

	snap atomic.Pointer[game.Snapshot]
}

func newTable(roomID uuid.UUID, session *game.Session, version uint64, window int, clock clockwork.Clock) *Table {
	if window <= 0 {
		window = DefaultIdempotencyWindow
	}
	t := &Table{
		roomID:  roomID,
		clock:   clock,
		session: session,
		version: version,
		keys:    make(map[string]*game.Snapshot, window),
		window:  window,
	}
	t.snap.Store(game.NewSnapshot(version, session.State(), clock.Now().UTC()))
	return t
}

// RoomID returns the room the table belongs to.
func (t *Table) RoomID() uuid.UUID { return t.roomID }

// Snapshot returns the latest committed snapshot without locking.
func (t *Table) Snapshot() *game.Snapshot {
	return t.snap.Load()
}

// Version returns the latest committed version.
func (t *Table) Version() uint64 {
	return t.snap.Load().Version
}

// Apply runs a for the given idempotency key. A key seen before returns the
// snapshot it committed and replayed is true. On rejection the current
// snapshot is returned together with the error.
func (t *Table) Apply(key string, a game.Action) (snap *game.Snapshot, replayed bool, err error) {
	return t.apply(key, 0, func(game.State, int) (game.Action, error) { return a, nil })
}

// apply is Apply with an optional version guard and an action decided from
// the state under the lock.
func (t *Table) apply(key string, expected uint64, decide func(st game.State, streak int) (game.Action, error)) (*game.Snapshot, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if key != "" {
		if snap, ok := t.keys[key]; ok {
			return snap, true, nil
		}
	}
	current := t.snap.Load()
	if expected != 0 && t.version != expected {
		return current, false, errStale
	}

	a, err := decide(current.State, t.streak)
	if err != nil {
		return current, false, err
	}
	if err := t.session.Apply(a); err != nil {
		return current, false, err
	}
	if err := t.session.Verify(); err != nil {
		return current, false, err
	}

	if current.State.Phase == game.PhaseStage1 && a.Kind == game.ActionPlay {
		t.streak++
	} else if a.Kind.TakesTurn() {
		t.streak = 0
	}

	t.version++
	snap := game.NewSnapshot(t.version, t.session.State(), t.clock.Now().UTC())
	t.snap.Store(snap)
	t.remember(key, snap)
	return snap, false, nil
}

func (t *Table) remember(key string, snap *game.Snapshot) {
	if key == "" {
		return
	}
	if len(t.order) >= t.window {
		delete(t.keys, t.order[0])
		t.order = t.order[1:]
	}
	t.keys[key] = snap
	t.order = append(t.order, key)
}

// position resolves the seat of an occupant from the latest snapshot.
func (t *Table) position(occupant models.OccupantID) (int, bool) {
	return t.snap.Load().State.PositionOf(occupant)
}
