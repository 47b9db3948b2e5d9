package room

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/pidr/go/internal/models"
)

// ErrCodeTaken is returned by CreateRoom when the join code collides with
// an existing room.
var ErrCodeTaken = errors.New("room code already in use")

// Repository stores rooms and their seats. Every write after creation is a
// compare-and-swap on the room version: CommitRoom succeeds only when the
// stored version equals expectedVersion, and it replaces the seat set in
// the same step.
type Repository interface {
	CreateRoom(ctx context.Context, details RoomDetails) error
	GetRoom(ctx context.Context, id uuid.UUID) (*RoomDetails, error)
	GetRoomByCode(ctx context.Context, code string) (*RoomDetails, error)
	ListOpenRooms(ctx context.Context, limit int) ([]models.Room, error)
	CommitRoom(ctx context.Context, details RoomDetails, expectedVersion int64) error
	DeleteRoom(ctx context.Context, id uuid.UUID) error
}

// MemoryRepository is a process-local Repository. A single mutex guards the
// whole store, and it is only held for the map operations themselves.
type MemoryRepository struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]RoomDetails
	codes map[string]uuid.UUID
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		rooms: make(map[uuid.UUID]RoomDetails),
		codes: make(map[string]uuid.UUID),
	}
}

func (r *MemoryRepository) CreateRoom(_ context.Context, details RoomDetails) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.codes[details.Room.Code]; ok {
		return ErrCodeTaken
	}
	if r.hostsActiveRoomLocked(details.Room.HostID, details.Room.ID) {
		return models.ErrAlreadyHasActiveRoom
	}
	if err := checkSeats(details.Seats); err != nil {
		return err
	}
	r.rooms[details.Room.ID] = details.clone()
	r.codes[details.Room.Code] = details.Room.ID
	return nil
}

func (r *MemoryRepository) GetRoom(_ context.Context, id uuid.UUID) (*RoomDetails, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.rooms[id]
	if !ok {
		return nil, models.ErrRoomNotFound
	}
	out := d.clone()
	return &out, nil
}

func (r *MemoryRepository) GetRoomByCode(ctx context.Context, code string) (*RoomDetails, error) {
	r.mu.Lock()
	id, ok := r.codes[code]
	r.mu.Unlock()
	if !ok {
		return nil, models.ErrRoomNotFound
	}
	return r.GetRoom(ctx, id)
}

func (r *MemoryRepository) ListOpenRooms(_ context.Context, limit int) ([]models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Room
	for _, d := range r.rooms {
		if d.Room.Status == models.RoomStatusOpen && d.Room.Visibility == models.RoomVisibilityPublic {
			out = append(out, d.Room)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivityAt.After(out[j].LastActivityAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) CommitRoom(_ context.Context, details RoomDetails, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.rooms[details.Room.ID]
	if !ok || cur.Room.Version != expectedVersion {
		return models.ErrVersionConflict
	}
	if details.Room.IsActive() && r.hostsActiveRoomLocked(details.Room.HostID, details.Room.ID) {
		return models.ErrAlreadyHasActiveRoom
	}
	if err := checkSeats(details.Seats); err != nil {
		return err
	}
	r.rooms[details.Room.ID] = details.clone()
	return nil
}

func (r *MemoryRepository) DeleteRoom(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.rooms[id]
	if !ok {
		return models.ErrRoomNotFound
	}
	delete(r.codes, d.Room.Code)
	delete(r.rooms, id)
	return nil
}

func (r *MemoryRepository) hostsActiveRoomLocked(host models.OccupantID, except uuid.UUID) bool {
	for id, d := range r.rooms {
		if id != except && d.Room.HostID == host && d.Room.IsActive() {
			return true
		}
	}
	return false
}

// checkSeats mirrors the unique constraints of the seats table.
func checkSeats(seats []models.Seat) error {
	positions := make(map[int]bool, len(seats))
	occupants := make(map[models.OccupantID]bool, len(seats))
	for _, s := range seats {
		if positions[s.Position] || occupants[s.OccupantID] {
			return fmt.Errorf("%w: duplicate seat %d/%d", models.ErrInvariantViolation, s.Position, s.OccupantID)
		}
		positions[s.Position] = true
		occupants[s.OccupantID] = true
	}
	return nil
}
