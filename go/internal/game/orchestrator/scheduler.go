package orchestrator

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/pidr/go/internal/game"
	"github.com/rs/zerolog/log"
)

type taskKind string

const (
	taskTimeout taskKind = "timeout"
	taskBot     taskKind = "bot"
)

// turnTask is the unit of work a fired timer hands to the worker pool.
type turnTask struct {
	roomID  uuid.UUID
	version uint64
	kind    taskKind
}

// key is the idempotency key of the task, e.g. "internal:timeout:12".
func (t turnTask) key() string {
	return internalKey(string(t.kind), strconv.FormatUint(t.version, 10))
}

type turnTimer struct {
	timer clockwork.Timer
	done  chan struct{}
}

// schedule arms the room's turn timer for snap. Versions at or below the
// last scheduled one are ignored, so out-of-order commits cannot rewind it.
func (o *Orchestrator) schedule(t *Table, snap *game.Snapshot) {
	st := snap.State
	seat, ok := st.Seat(st.Turn)
	if !ok {
		return
	}
	kind, delay := taskTimeout, o.cfg.TurnTimeout
	if seat.Occupant.IsBot() {
		kind, delay = taskBot, o.cfg.BotDelay
	} else if delay <= 0 {
		// human turns are untimed
		o.cancelTimer(t.roomID)
		return
	}

	// Version idempotency guard - prevent rescheduling an older or equal snapshot
	o.lastScheduledMu.Lock()
	if last, exists := o.lastScheduled[t.roomID]; exists && last >= snap.Version {
		o.lastScheduledMu.Unlock()
		log.Debug().
			Str("room_id", t.roomID.String()).
			Uint64("version", snap.Version).
			Uint64("scheduled", last).
			Msg("skipping stale schedule")
		return
	}
	o.lastScheduled[t.roomID] = snap.Version
	o.lastScheduledMu.Unlock()

	task := turnTask{roomID: t.roomID, version: snap.Version, kind: kind}
	tt := &turnTimer{timer: o.clock.NewTimer(delay), done: make(chan struct{})}

	// Atomically replace any existing timer for this room
	o.replaceTimer(t.roomID, tt)

	go func() {
		select {
		case <-tt.timer.Chan():
			o.removeTimer(task.roomID, tt)
			select {
			case o.workCh <- task:
				log.Debug().Str("room_id", task.roomID.String()).Str("task", task.key()).Msg("timer fired - enqueued for processing")
			case <-tt.done:
			case <-o.ctx.Done():
			}
		case <-tt.done:
		case <-o.ctx.Done():
			stopAndDrainTimer(tt.timer)
		}
	}()

	log.Debug().
		Str("room_id", t.roomID.String()).
		Str("task", task.key()).
		Int("turn", st.Turn).
		Dur("delay", delay).
		Msg("scheduled turn timer")
}

// replaceTimer swaps the room's timer, cancelling the previous one first.
func (o *Orchestrator) replaceTimer(roomID uuid.UUID, next *turnTimer) {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()

	if existing, ok := o.activeTimers[roomID]; ok {
		existing.cancel()
		log.Debug().Str("room_id", roomID.String()).Msg("replaced existing timer")
	}
	o.activeTimers[roomID] = next
}

func (tt *turnTimer) cancel() {
	stopAndDrainTimer(tt.timer)
	select {
	case <-tt.done:
	default:
		close(tt.done)
	}
}

// stopAndDrainTimer stops a timer and drains a value it may already hold.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

// cancelTimer cancels and forgets the room's timer and schedule guard.
func (o *Orchestrator) cancelTimer(roomID uuid.UUID) {
	o.activeTimersMu.Lock()
	if tt, ok := o.activeTimers[roomID]; ok {
		tt.cancel()
		delete(o.activeTimers, roomID)
		log.Debug().Str("room_id", roomID.String()).Msg("cancelled turn timer")
	}
	o.activeTimersMu.Unlock()

	o.lastScheduledMu.Lock()
	delete(o.lastScheduled, roomID)
	o.lastScheduledMu.Unlock()
}

// removeTimer forgets a fired timer unless it was already replaced.
func (o *Orchestrator) removeTimer(roomID uuid.UUID, tt *turnTimer) {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()
	if o.activeTimers[roomID] == tt {
		delete(o.activeTimers, roomID)
	}
}

// cancelAllTimers stops every armed timer, used on shutdown.
func (o *Orchestrator) cancelAllTimers() {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()
	for roomID, tt := range o.activeTimers {
		tt.cancel()
		log.Debug().Str("room_id", roomID.String()).Msg("cancelled timer on shutdown")
	}
	o.activeTimers = make(map[uuid.UUID]*turnTimer)
}
