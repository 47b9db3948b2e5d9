package bots

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/pidr/go/internal/models"
)

var (
	ErrBotNotFound   = errors.New("bot identity not found")
	ErrDuplicateName = errors.New("bot display name already taken")
)

// Repository persists bot identities. Claim and Release are compare-and-swap
// operations on the home room field; they report whether the swap happened.
type Repository interface {
	ListFree(ctx context.Context, limit int) ([]models.BotIdentity, error)
	Claim(ctx context.Context, botID models.OccupantID, roomID uuid.UUID) (bool, error)
	Release(ctx context.Context, botID models.OccupantID, roomID uuid.UUID) (bool, error)
	ReleaseRoom(ctx context.Context, roomID uuid.UUID) (int, error)
	Create(ctx context.Context, bot models.BotIdentity) (*models.BotIdentity, error)
	Get(ctx context.Context, botID models.OccupantID) (*models.BotIdentity, error)
	Count(ctx context.Context) (int, error)
}

// MemoryRepository keeps bot identities in process.
type MemoryRepository struct {
	mu     sync.Mutex
	bots   map[models.OccupantID]models.BotIdentity
	names  map[string]bool
	nextID models.OccupantID
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		bots:   make(map[models.OccupantID]models.BotIdentity),
		names:  make(map[string]bool),
		nextID: -1,
	}
}

func (r *MemoryRepository) ListFree(_ context.Context, limit int) ([]models.BotIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.BotIdentity
	for _, b := range r.bots {
		if b.HomeRoomID == nil {
			out = append(out, copyBot(b))
		}
	}
	// oldest identities first
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) Claim(_ context.Context, botID models.OccupantID, roomID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bots[botID]
	if !ok {
		return false, ErrBotNotFound
	}
	if b.HomeRoomID != nil {
		return false, nil
	}
	home := roomID
	b.HomeRoomID = &home
	r.bots[botID] = b
	return true, nil
}

func (r *MemoryRepository) Release(_ context.Context, botID models.OccupantID, roomID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bots[botID]
	if !ok {
		return false, ErrBotNotFound
	}
	if b.HomeRoomID == nil || *b.HomeRoomID != roomID {
		return false, nil
	}
	b.HomeRoomID = nil
	r.bots[botID] = b
	return true, nil
}

func (r *MemoryRepository) ReleaseRoom(_ context.Context, roomID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, b := range r.bots {
		if b.HomeRoomID != nil && *b.HomeRoomID == roomID {
			b.HomeRoomID = nil
			r.bots[id] = b
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) Create(_ context.Context, bot models.BotIdentity) (*models.BotIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.names[bot.DisplayName] {
		return nil, ErrDuplicateName
	}
	bot.ID = r.nextID
	r.nextID--
	r.names[bot.DisplayName] = true
	r.bots[bot.ID] = copyBot(bot)

	out := copyBot(bot)
	return &out, nil
}

func (r *MemoryRepository) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bots), nil
}

func (r *MemoryRepository) Get(_ context.Context, botID models.OccupantID) (*models.BotIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bots[botID]
	if !ok {
		return nil, ErrBotNotFound
	}
	out := copyBot(b)
	return &out, nil
}

func copyBot(b models.BotIdentity) models.BotIdentity {
	if b.HomeRoomID != nil {
		home := *b.HomeRoomID
		b.HomeRoomID = &home
	}
	if b.Profile != nil {
		b.Profile = append([]byte(nil), b.Profile...)
	}
	return b
}
