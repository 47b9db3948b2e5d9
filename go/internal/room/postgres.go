package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/pidr/go/internal/models"
)

const (
	pgUniqueViolation = "23505"

	constraintRoomCode   = "rooms_code_key"
	constraintActiveHost = "rooms_one_active_per_host"
)

const roomColumns = `id, code, host_id, max_players, visibility, password_hash, status,
	current_players, version, created_at, last_activity_at`

const seatColumns = `id, room_id, position, occupant_id, occupant_kind, display_name,
	is_host, is_ready, joined_at`

// PostgresRepository stores rooms in Postgres through a pgx pool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) CreateRoom(ctx context.Context, details RoomDetails) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		room := details.Room
		_, err := tx.Exec(ctx, `INSERT INTO rooms (`+roomColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			room.ID, room.Code, int64(room.HostID), room.MaxPlayers, string(room.Visibility),
			room.PasswordHash, string(room.Status), room.CurrentPlayers, room.Version,
			room.CreatedAt, room.LastActivityAt)
		if err != nil {
			return err
		}
		return insertSeats(ctx, tx, details.Seats)
	})
	if err != nil {
		return fmt.Errorf("failed to create room: %w", mapPgError(err))
	}
	return nil
}

func (r *PostgresRepository) GetRoom(ctx context.Context, id uuid.UUID) (*RoomDetails, error) {
	return r.loadRoom(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id)
}

func (r *PostgresRepository) GetRoomByCode(ctx context.Context, code string) (*RoomDetails, error) {
	return r.loadRoom(ctx, `SELECT `+roomColumns+` FROM rooms WHERE code = $1`, code)
}

func (r *PostgresRepository) loadRoom(ctx context.Context, query string, arg any) (*RoomDetails, error) {
	var details RoomDetails
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{AccessMode: pgx.ReadOnly, IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		room, err := scanRoom(tx.QueryRow(ctx, query, arg))
		if err != nil {
			return err
		}
		details.Room = room

		rows, err := tx.Query(ctx, `SELECT `+seatColumns+` FROM seats WHERE room_id = $1 ORDER BY position`, room.ID)
		if err != nil {
			return err
		}
		details.Seats, err = pgx.CollectRows(rows, scanSeat)
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to load room: %w", err)
	}
	return &details, nil
}

func (r *PostgresRepository) ListOpenRooms(ctx context.Context, limit int) ([]models.Room, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roomColumns+` FROM rooms
		WHERE status = $1 AND visibility = $2
		ORDER BY last_activity_at DESC
		LIMIT $3`, string(models.RoomStatusOpen), string(models.RoomVisibilityPublic), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	rooms, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Room, error) {
		return scanRoom(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, nil
}

// CommitRoom updates the room row guarded by its version and rewrites the
// seat set in the same transaction.
func (r *PostgresRepository) CommitRoom(ctx context.Context, details RoomDetails, expectedVersion int64) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		room := details.Room
		tag, err := tx.Exec(ctx, `UPDATE rooms
			SET host_id = $2, status = $3, current_players = $4, version = $5, last_activity_at = $6
			WHERE id = $1 AND version = $7`,
			room.ID, int64(room.HostID), string(room.Status), room.CurrentPlayers, room.Version,
			room.LastActivityAt, expectedVersion)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return models.ErrVersionConflict
		}
		if _, err := tx.Exec(ctx, `DELETE FROM seats WHERE room_id = $1`, room.ID); err != nil {
			return err
		}
		return insertSeats(ctx, tx, details.Seats)
	})
	if err != nil {
		if errors.Is(err, models.ErrVersionConflict) {
			return err
		}
		return fmt.Errorf("failed to commit room: %w", mapPgError(err))
	}
	return nil
}

func (r *PostgresRepository) DeleteRoom(ctx context.Context, id uuid.UUID) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM seats WHERE room_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return models.ErrRoomNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrRoomNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete room: %w", err)
	}
	return nil
}

func insertSeats(ctx context.Context, tx pgx.Tx, seats []models.Seat) error {
	if len(seats) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, s := range seats {
		batch.Queue(`INSERT INTO seats (`+seatColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			s.ID, s.RoomID, s.Position, int64(s.OccupantID), string(s.OccupantKind), s.DisplayName,
			s.IsHost, s.IsReady, s.JoinedAt)
	}
	return tx.SendBatch(ctx, batch).Close()
}

func scanRoom(row pgx.Row) (models.Room, error) {
	var (
		room       models.Room
		host       int64
		visibility string
		status     string
	)
	err := row.Scan(&room.ID, &room.Code, &host, &room.MaxPlayers, &visibility, &room.PasswordHash,
		&status, &room.CurrentPlayers, &room.Version, &room.CreatedAt, &room.LastActivityAt)
	room.HostID = models.OccupantID(host)
	room.Visibility = models.RoomVisibility(visibility)
	room.Status = models.RoomStatus(status)
	return room, err
}

func scanSeat(row pgx.CollectableRow) (models.Seat, error) {
	var (
		seat     models.Seat
		occupant int64
		kind     string
	)
	err := row.Scan(&seat.ID, &seat.RoomID, &seat.Position, &occupant, &kind, &seat.DisplayName,
		&seat.IsHost, &seat.IsReady, &seat.JoinedAt)
	seat.OccupantID = models.OccupantID(occupant)
	seat.OccupantKind = models.OccupantKind(kind)
	return seat, err
}

// mapPgError turns constraint violations into domain errors.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case constraintRoomCode:
		return ErrCodeTaken
	case constraintActiveHost:
		return models.ErrAlreadyHasActiveRoom
	default:
		return fmt.Errorf("%w: %s", models.ErrInvariantViolation, pgErr.ConstraintName)
	}
}
