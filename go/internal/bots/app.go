package bots

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/pidr/go/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	// freeScanLimit bounds how many free identities one Acquire looks at
	// before falling back to minting.
	freeScanLimit = 16
	mintAttempts  = 8
)

// App allocates bot identities to rooms. The only cross-room exclusion is
// the compare-and-swap on each identity's home room.
type App struct {
	repo  Repository
	names *NamePool
	clock clockwork.Clock
}

func NewApp(repo Repository, names *NamePool, clock clockwork.Clock) *App {
	return &App{
		repo:  repo,
		names: names,
		clock: clock,
	}
}

// Acquire claims a free identity for roomID, minting a new one when every
// scanned identity is taken. The returned identity is owned by roomID until
// Release or ReleaseRoom.
func (a *App) Acquire(ctx context.Context, roomID uuid.UUID) (*models.BotIdentity, error) {
	free, err := a.repo.ListFree(ctx, freeScanLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to scan free bots: %w", err)
	}
	for _, candidate := range free {
		ok, err := a.repo.Claim(ctx, candidate.ID, roomID)
		if err != nil {
			return nil, fmt.Errorf("failed to claim bot: %w", err)
		}
		if !ok {
			// lost the race to another room
			continue
		}
		home := roomID
		candidate.HomeRoomID = &home
		log.Debug().
			Str("room_id", roomID.String()).
			Int64("bot_id", int64(candidate.ID)).
			Msg("reused free bot")
		return &candidate, nil
	}
	return a.mint(ctx, roomID)
}

// SyncNames skips the names of identities already in the repository.
// Names are handed out in sequence, so every stored identity used one.
func (a *App) SyncNames(ctx context.Context) error {
	n, err := a.repo.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to sync bot names: %w", err)
	}
	a.names.Resume(n)
	return nil
}

func (a *App) mint(ctx context.Context, roomID uuid.UUID) (*models.BotIdentity, error) {
	home := roomID
	synced := false
	for i := 0; i < mintAttempts; i++ {
		name, avatar := a.names.Next()
		bot, err := a.repo.Create(ctx, models.BotIdentity{
			DisplayName: name,
			Avatar:      avatar,
			HomeRoomID:  &home,
			CreatedAt:   a.clock.Now().UTC(),
		})
		if errors.Is(err, ErrDuplicateName) {
			if !synced {
				if err := a.SyncNames(ctx); err != nil {
					return nil, err
				}
				synced = true
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to mint bot: %w", err)
		}
		log.Info().
			Str("room_id", roomID.String()).
			Int64("bot_id", int64(bot.ID)).
			Str("name", bot.DisplayName).
			Msg("minted bot identity")
		return bot, nil
	}
	return nil, fmt.Errorf("failed to mint bot: no unused display name after %d attempts", mintAttempts)
}

// Release frees botID if roomID still owns it.
func (a *App) Release(ctx context.Context, botID models.OccupantID, roomID uuid.UUID) error {
	ok, err := a.repo.Release(ctx, botID, roomID)
	if err != nil {
		return fmt.Errorf("failed to release bot: %w", err)
	}
	if !ok {
		log.Warn().
			Str("room_id", roomID.String()).
			Int64("bot_id", int64(botID)).
			Msg("bot was not owned by room on release")
	}
	return nil
}

// ReleaseRoom frees every identity owned by roomID.
func (a *App) ReleaseRoom(ctx context.Context, roomID uuid.UUID) (int, error) {
	n, err := a.repo.ReleaseRoom(ctx, roomID)
	if err != nil {
		return 0, fmt.Errorf("failed to release room bots: %w", err)
	}
	if n > 0 {
		log.Info().Str("room_id", roomID.String()).Int("released", n).Msg("released room bots")
	}
	return n, nil
}

// Get returns a bot identity by id.
func (a *App) Get(ctx context.Context, botID models.OccupantID) (*models.BotIdentity, error) {
	bot, err := a.repo.Get(ctx, botID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bot: %w", err)
	}
	return bot, nil
}
