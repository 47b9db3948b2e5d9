package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mcdev12/pidr/go/internal/game"
	"github.com/mcdev12/pidr/go/internal/models"
	"github.com/rs/zerolog/log"
)

// RunScheduler runs the turn worker pool until ctx is done. Timers armed by
// commits feed the pool; on shutdown every armed timer is cancelled.
func (o *Orchestrator) RunScheduler(ctx context.Context) error {
	log.Info().
		Str("instance", o.instanceID).
		Int("workers", o.numWorkers).
		Msg("turn scheduler started")

	// Start worker pool
	var wg sync.WaitGroup
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	for i := 0; i < o.numWorkers; i++ {
		wg.Add(1)
		go o.worker(workerCtx, &wg, i)
	}

	<-ctx.Done()
	log.Info().Str("instance", o.instanceID).Msg("turn scheduler shutdown requested")

	o.stop()
	o.cancelAllTimers()
	cancelWorkers()
	wg.Wait()
	log.Info().Str("instance", o.instanceID).Msg("all workers shut down")
	return nil
}

// worker processes fired turn timers from the work channel
func (o *Orchestrator) worker(ctx context.Context, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			log.Debug().
				Str("instance", o.instanceID).
				Int("worker_id", workerID).
				Msg("worker shutting down")
			return
		case task := <-o.workCh:
			if !o.claim(task) {
				log.Debug().Str("room_id", task.roomID.String()).Str("task", task.key()).Msg("task already in flight")
				continue
			}
			if err := o.handleTurn(ctx, task); err != nil {
				log.Error().
					Err(err).
					Str("room_id", task.roomID.String()).
					Str("task", task.key()).
					Int("worker_id", workerID).
					Msg("turn task failed")
			}
			o.release(task)
		}
	}
}

func (o *Orchestrator) claim(task turnTask) bool {
	o.inFlightMu.Lock()
	defer o.inFlightMu.Unlock()
	if o.inFlight[task] {
		return false
	}
	o.inFlight[task] = true
	return true
}

func (o *Orchestrator) release(task turnTask) {
	o.inFlightMu.Lock()
	defer o.inFlightMu.Unlock()
	delete(o.inFlight, task)
}

// handleTurn moves for the seat on turn if the table is still at the
// version the task was scheduled for. Anything newer makes it a no-op.
func (o *Orchestrator) handleTurn(ctx context.Context, task turnTask) error {
	t := o.table(task.roomID)
	if t == nil {
		return nil
	}

	strategy := o.timeouts
	if task.kind == taskBot {
		strategy = o.bots
	}
	snap, replayed, err := t.apply(task.key(), task.version, o.decide(strategy))
	if task.kind == taskBot && errors.Is(err, models.ErrIllegalMove) {
		log.Warn().Err(err).Str("room_id", task.roomID.String()).Msg("bot move rejected, forcing")
		forced := turnTask{roomID: task.roomID, version: task.version, kind: taskTimeout}
		snap, replayed, err = t.apply(forced.key(), task.version, o.decide(o.timeouts))
	}

	switch {
	case errors.Is(err, errStale):
		log.Debug().
			Str("room_id", task.roomID.String()).
			Str("task", task.key()).
			Uint64("current", snap.Version).
			Msg("stale turn task")
		return nil
	case errors.Is(err, models.ErrInvariantViolation):
		o.fail(ctx, t, err)
		return err
	case err != nil:
		return fmt.Errorf("failed to apply %s move: %w", task.kind, err)
	case replayed:
		return nil
	}

	log.Info().
		Str("room_id", task.roomID.String()).
		Str("task", task.key()).
		Uint64("version", snap.Version).
		Msg("applied scheduled move")
	o.afterCommit(ctx, t, snap)
	return nil
}

func (o *Orchestrator) decide(strategy TurnStrategy) func(game.State, int) (game.Action, error) {
	return func(st game.State, streak int) (game.Action, error) {
		seat, ok := st.Seat(st.Turn)
		if !ok || seat.Status != game.SeatActive {
			return game.Action{}, fmt.Errorf("%w: turn seat %d is not active", models.ErrInvariantViolation, st.Turn)
		}
		return strategy.Choose(Situation{State: st, Rules: o.cfg.Rules, Seat: seat, Streak: streak})
	}
}
