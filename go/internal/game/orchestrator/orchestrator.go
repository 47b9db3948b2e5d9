package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/pidr/go/internal/cards"
	"github.com/mcdev12/pidr/go/internal/game"
	"github.com/mcdev12/pidr/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Broadcaster receives every committed snapshot. Implementations must be
// idempotent by version and may see versions out of order.
type Broadcaster interface {
	OnSnapshot(ctx context.Context, roomID uuid.UUID, version uint64, snap *game.Snapshot) error
}

// SessionStore persists snapshots so sessions survive a restart.
type SessionStore interface {
	SaveSnapshot(ctx context.Context, snap *game.Snapshot) error
	DeleteSession(ctx context.Context, roomID uuid.UUID) error
	ListActiveSnapshots(ctx context.Context) ([]*game.Snapshot, error)
}

// SnapshotReader serves snapshots of rooms this instance does not run.
type SnapshotReader interface {
	Latest(ctx context.Context, roomID uuid.UUID) (*game.Snapshot, error)
}

// RoomLifecycle defines what the orchestrator needs from the room app
type RoomLifecycle interface {
	FinishGame(ctx context.Context, roomID uuid.UUID) error
	ForceClose(ctx context.Context, roomID uuid.UUID, reason error) error
}

// Config holds the turn timing and rule settings.
type Config struct {
	TurnTimeout       time.Duration `yaml:"turn_timeout"`
	BotDelay          time.Duration `yaml:"bot_delay"`
	Workers           int           `yaml:"workers"`
	IdempotencyWindow int           `yaml:"idempotency_window"`
	BotStreakLimit    int           `yaml:"bot_streak_limit"`
	Seed              int64         `yaml:"seed"`
	Rules             game.Rules    `yaml:"rules"`
}

// Command is a game action submitted on behalf of an occupant.
type Command struct {
	RoomID         uuid.UUID
	Occupant       models.OccupantID
	Kind           game.ActionKind
	Target         int
	Card           *cards.Card
	IdempotencyKey string
}

// Result is the outcome of a submitted command.
type Result struct {
	Snapshot *game.Snapshot
	Replayed bool
}

type Orchestrator struct {
	cfg          Config
	clock        clockwork.Clock
	store        SessionStore
	reader       SnapshotReader
	rooms        RoomLifecycle
	broadcasters []Broadcaster
	bots         TurnStrategy
	timeouts     TurnStrategy
	deck         func() []cards.Card
	instanceID   string

	// lifetime of timer goroutines, cancelled when the scheduler stops
	ctx  context.Context
	stop context.CancelFunc

	tables   map[uuid.UUID]*Table
	ended    map[uuid.UUID]uint64 // last version of finished sessions
	tablesMu sync.RWMutex

	// Worker pool configuration
	numWorkers int
	workCh     chan turnTask

	// Track in-flight work to prevent duplicate processing
	inFlight   map[turnTask]bool
	inFlightMu sync.Mutex

	activeTimers   map[uuid.UUID]*turnTimer
	activeTimersMu sync.Mutex

	lastScheduled   map[uuid.UUID]uint64
	lastScheduledMu sync.Mutex
}

// NewOrchestrator creates a new game orchestrator with worker pool
func NewOrchestrator(cfg Config, clock clockwork.Clock, store SessionStore, broadcasters ...Broadcaster) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.IdempotencyWindow <= 0 {
		cfg.IdempotencyWindow = DefaultIdempotencyWindow
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	var rngMu sync.Mutex

	ctx, stop := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:          cfg,
		clock:        clock,
		store:        store,
		broadcasters: broadcasters,
		bots:         NewBotStrategy(seed+1, cfg.BotStreakLimit),
		timeouts:     TimeoutStrategy{},
		deck: func() []cards.Card {
			rngMu.Lock()
			defer rngMu.Unlock()
			return cards.Shuffle(cards.NewDeck(), rng)
		},
		instanceID: uuid.New().String()[:8],
		ctx:        ctx,
		stop:       stop,

		tables:        make(map[uuid.UUID]*Table),
		ended:         make(map[uuid.UUID]uint64),
		numWorkers:    cfg.Workers,
		workCh:        make(chan turnTask, cfg.Workers*2),
		inFlight:      make(map[turnTask]bool),
		activeTimers:  make(map[uuid.UUID]*turnTimer),
		lastScheduled: make(map[uuid.UUID]uint64),
	}
}

// AttachRooms wires the room lifecycle once both apps exist.
func (o *Orchestrator) AttachRooms(rooms RoomLifecycle) {
	o.rooms = rooms
}

// AttachBroadcasters adds sinks that need the orchestrator to exist first.
// It must be called before any session starts.
func (o *Orchestrator) AttachBroadcasters(broadcasters ...Broadcaster) {
	o.broadcasters = append(o.broadcasters, broadcasters...)
}

// AttachReader sets the fallback used by Snapshot for rooms not run here.
func (o *Orchestrator) AttachReader(reader SnapshotReader) {
	o.reader = reader
}

// InstanceID identifies this process as the origin of its snapshots.
func (o *Orchestrator) InstanceID() string {
	return o.instanceID
}

// Rules returns the rule variants new sessions are created with.
func (o *Orchestrator) Rules() game.Rules {
	return o.cfg.Rules
}

// StartSession deals a new game for the seats of a room and publishes the
// first snapshot. Versions continue from the last game played in the room.
func (o *Orchestrator) StartSession(ctx context.Context, roomID uuid.UUID, seats []models.Seat) error {
	assignments := make([]game.SeatAssignment, len(seats))
	for i, s := range seats {
		assignments[i] = game.SeatAssignment{Position: s.Position, Occupant: s.OccupantID}
	}
	session, err := game.NewSession(roomID, assignments, o.deck(), o.cfg.Rules, o.clock)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	t := newTable(roomID, session, o.nextVersion(ctx, roomID), o.cfg.IdempotencyWindow, o.clock)
	o.tablesMu.Lock()
	if _, exists := o.tables[roomID]; exists {
		o.tablesMu.Unlock()
		return fmt.Errorf("session already running for room %s", roomID)
	}
	o.tables[roomID] = t
	o.tablesMu.Unlock()

	snap := t.Snapshot()
	log.Info().
		Str("room_id", roomID.String()).
		Int("seats", len(seats)).
		Int("turn", snap.State.Turn).
		Msg("game session started")

	o.afterCommit(ctx, t, snap)
	return nil
}

// Recover reloads the sessions the store still holds as running and
// restarts their timers.
func (o *Orchestrator) Recover(ctx context.Context) (int, error) {
	if o.store == nil {
		return 0, nil
	}
	snaps, err := o.store.ListActiveSnapshots(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list active sessions: %w", err)
	}
	recovered := 0
	for _, snap := range snaps {
		session, err := game.Restore(snap.State, o.cfg.Rules, o.clock)
		if err != nil {
			log.Error().Err(err).Str("room_id", snap.RoomID.String()).Msg("failed to restore session")
			if o.rooms != nil {
				if cerr := o.rooms.ForceClose(ctx, snap.RoomID, err); cerr != nil {
					log.Error().Err(cerr).Str("room_id", snap.RoomID.String()).Msg("failed to close unrecoverable room")
				}
			}
			continue
		}
		t := newTable(snap.RoomID, session, snap.Version, o.cfg.IdempotencyWindow, o.clock)
		o.tablesMu.Lock()
		o.tables[snap.RoomID] = t
		o.tablesMu.Unlock()
		o.schedule(t, t.Snapshot())
		recovered++
	}
	log.Info().Int("sessions", recovered).Str("instance", o.instanceID).Msg("recovered game sessions")
	return recovered, nil
}

// Submit applies a command for an occupant. Rejections come back with the
// snapshot they were checked against. The idempotency key only replays
// commands of the same occupant.
func (o *Orchestrator) Submit(ctx context.Context, cmd Command) (*Result, error) {
	return o.submit(ctx, cmd, clientKey(cmd.Occupant, cmd.IdempotencyKey))
}

func (o *Orchestrator) submit(ctx context.Context, cmd Command, key string) (*Result, error) {
	t := o.table(cmd.RoomID)
	if t == nil {
		return nil, models.ErrGameNotRunning
	}
	pos, ok := t.position(cmd.Occupant)
	if !ok {
		return &Result{Snapshot: t.Snapshot()}, models.ErrNotSeated
	}

	action := game.Action{Kind: cmd.Kind, Actor: pos, Target: cmd.Target, Card: cmd.Card}
	snap, replayed, err := t.Apply(key, action)
	if err != nil {
		if errors.Is(err, models.ErrInvariantViolation) {
			o.fail(ctx, t, err)
		}
		return &Result{Snapshot: snap}, err
	}
	if replayed {
		log.Debug().
			Str("room_id", cmd.RoomID.String()).
			Str("key", key).
			Uint64("version", snap.Version).
			Msg("replayed idempotent command")
		return &Result{Snapshot: snap, Replayed: true}, nil
	}

	log.Debug().
		Str("room_id", cmd.RoomID.String()).
		Str("action", action.String()).
		Uint64("version", snap.Version).
		Msg("command applied")
	o.afterCommit(ctx, t, snap)
	return &Result{Snapshot: snap}, nil
}

// Forfeit ends the room's game with the occupant as loser.
func (o *Orchestrator) Forfeit(ctx context.Context, roomID uuid.UUID, occupant models.OccupantID) error {
	_, err := o.submit(ctx, Command{
		RoomID:   roomID,
		Occupant: occupant,
		Kind:     game.ActionForfeit,
	}, internalKey("forfeit", occupant.String()))
	return err
}

// StopSession drops a room's session without finishing the game.
func (o *Orchestrator) StopSession(ctx context.Context, roomID uuid.UUID) {
	if !o.drop(roomID) {
		return
	}
	if o.store != nil {
		if err := o.store.DeleteSession(context.WithoutCancel(ctx), roomID); err != nil {
			log.Error().Err(err).Str("room_id", roomID.String()).Msg("failed to delete session")
		}
	}
	log.Info().Str("room_id", roomID.String()).Msg("game session stopped")
}

// Snapshot returns the latest snapshot of a room. Rooms not run by this
// instance fall back to the attached reader.
func (o *Orchestrator) Snapshot(ctx context.Context, roomID uuid.UUID) (*game.Snapshot, error) {
	if t := o.table(roomID); t != nil {
		return t.Snapshot(), nil
	}
	if o.reader != nil {
		snap, err := o.reader.Latest(ctx, roomID)
		if err != nil {
			return nil, fmt.Errorf("failed to read snapshot: %w", err)
		}
		if snap != nil {
			return snap, nil
		}
	}
	return nil, models.ErrGameNotRunning
}

// ActiveSessions returns the number of sessions run by this instance.
func (o *Orchestrator) ActiveSessions() int {
	o.tablesMu.RLock()
	defer o.tablesMu.RUnlock()
	return len(o.tables)
}

func (o *Orchestrator) table(roomID uuid.UUID) *Table {
	o.tablesMu.RLock()
	defer o.tablesMu.RUnlock()
	return o.tables[roomID]
}

// drop removes the table and its timer. It reports whether a table existed.
func (o *Orchestrator) drop(roomID uuid.UUID) bool {
	o.cancelTimer(roomID)
	o.tablesMu.Lock()
	defer o.tablesMu.Unlock()
	t, ok := o.tables[roomID]
	if !ok {
		return false
	}
	o.ended[roomID] = t.Version()
	delete(o.tables, roomID)
	return true
}

// nextVersion continues the numbering of the previous game in the room so
// that a new session never reuses a version that consumers have seen.
func (o *Orchestrator) nextVersion(ctx context.Context, roomID uuid.UUID) uint64 {
	o.tablesMu.RLock()
	last := o.ended[roomID]
	o.tablesMu.RUnlock()

	if o.reader != nil {
		snap, err := o.reader.Latest(ctx, roomID)
		if err != nil {
			log.Warn().Err(err).Str("room_id", roomID.String()).Msg("failed to read previous snapshot")
		} else if snap != nil && snap.Version > last {
			last = snap.Version
		}
	}
	return last + 1
}

// afterCommit runs outside the table lock: broadcast, persist, then settle
// what the new snapshot asks for next.
func (o *Orchestrator) afterCommit(ctx context.Context, t *Table, snap *game.Snapshot) {
	ctx = context.WithoutCancel(ctx)
	o.publish(ctx, snap)
	o.persist(ctx, snap)

	if snap.State.Over() {
		o.finish(ctx, t, snap)
		return
	}
	if o.declareForBot(ctx, t, snap) {
		return
	}
	o.schedule(t, snap)
}

func (o *Orchestrator) publish(ctx context.Context, snap *game.Snapshot) {
	for _, b := range o.broadcasters {
		if err := b.OnSnapshot(ctx, snap.RoomID, snap.Version, snap); err != nil {
			log.Error().
				Err(err).
				Str("room_id", snap.RoomID.String()).
				Uint64("version", snap.Version).
				Msg("broadcaster failed")
		}
	}
}

func (o *Orchestrator) persist(ctx context.Context, snap *game.Snapshot) {
	if o.store == nil {
		return
	}
	if err := o.store.SaveSnapshot(ctx, snap); err != nil {
		log.Error().
			Err(err).
			Str("room_id", snap.RoomID.String()).
			Uint64("version", snap.Version).
			Msg("failed to persist snapshot")
	}
}

// declareForBot announces the last card of a bot seat. It reports whether
// a declaration was committed, in which case the nested commit has already
// scheduled the next turn.
func (o *Orchestrator) declareForBot(ctx context.Context, t *Table, snap *game.Snapshot) bool {
	seat, ok := pendingDeclaration(snap.State)
	if !ok {
		return false
	}
	key := internalKey("declare", strconv.FormatUint(snap.Version, 10), strconv.Itoa(seat.Position))
	next, replayed, err := t.apply(key, snap.Version, func(game.State, int) (game.Action, error) {
		return game.Action{Kind: game.ActionDeclare, Actor: seat.Position}, nil
	})
	switch {
	case errors.Is(err, errStale):
		// a newer commit owns scheduling
		return true
	case err != nil:
		log.Warn().Err(err).Str("room_id", t.roomID.String()).Int("position", seat.Position).Msg("bot declaration rejected")
		return false
	case replayed:
		return true
	}
	o.afterCommit(ctx, t, next)
	return true
}

func (o *Orchestrator) finish(ctx context.Context, t *Table, snap *game.Snapshot) {
	o.drop(t.roomID)

	log.Info().
		Str("room_id", t.roomID.String()).
		Int("loser", snap.State.Loser).
		Ints("finish_order", snap.State.FinishOrder).
		Uint64("version", snap.Version).
		Msg("game over")

	if o.rooms != nil {
		if err := o.rooms.FinishGame(ctx, t.roomID); err != nil {
			log.Error().Err(err).Str("room_id", t.roomID.String()).Msg("failed to finish room game")
		}
	}
}

// fail tears down a room whose session broke an invariant.
func (o *Orchestrator) fail(ctx context.Context, t *Table, cause error) {
	ctx = context.WithoutCancel(ctx)
	log.Error().Err(cause).Str("room_id", t.roomID.String()).Uint64("version", t.Version()).Msg("session invariant violated")
	o.StopSession(ctx, t.roomID)
	if o.rooms != nil {
		if err := o.rooms.ForceClose(ctx, t.roomID, cause); err != nil {
			log.Error().Err(err).Str("room_id", t.roomID.String()).Msg("failed to force close room")
		}
	}
}
