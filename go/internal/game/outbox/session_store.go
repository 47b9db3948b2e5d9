package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/pidr/go/internal/game"
)

// SessionStore persists the latest snapshot of every running game in the
// game_sessions table. Writes never move a row back to an older version.
type SessionStore struct {
	pool *pgxpool.Pool
}

func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

// SaveSnapshot upserts snap if it is newer than the stored row.
func (s *SessionStore) SaveSnapshot(ctx context.Context, snap *game.Snapshot) error {
	state, err := json.Marshal(snap.State)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO game_sessions (room_id, version, phase, state, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (room_id) DO UPDATE
		SET version = EXCLUDED.version, phase = EXCLUDED.phase, state = EXCLUDED.state, updated_at = EXCLUDED.updated_at
		WHERE game_sessions.version < EXCLUDED.version`,
		snap.RoomID, int64(snap.Version), string(snap.State.Phase), state, snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save session %s v%d: %w", snap.RoomID, snap.Version, err)
	}
	return nil
}

func (s *SessionStore) DeleteSession(ctx context.Context, roomID uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM game_sessions WHERE room_id = $1`, roomID); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", roomID, err)
	}
	return nil
}

// ListActiveSnapshots returns every stored session that has not ended.
func (s *SessionStore) ListActiveSnapshots(ctx context.Context) ([]*game.Snapshot, error) {
	rows, err := s.pool.Query(ctx, `SELECT room_id, version, state, updated_at
		FROM game_sessions WHERE phase <> $1 ORDER BY updated_at`, string(game.PhaseOver))
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	snaps, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*game.Snapshot, error) {
		var (
			snap    game.Snapshot
			version int64
			raw     []byte
		)
		if err := row.Scan(&snap.RoomID, &version, &raw, &snap.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &snap.State); err != nil {
			return nil, fmt.Errorf("unmarshal state of %s: %w", snap.RoomID, err)
		}
		snap.Version = uint64(version)
		return &snap, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return snaps, nil
}
