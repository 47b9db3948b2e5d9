package bots

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mcdev12/pidr/go/internal/models"
	"github.com/mcdev12/pidr/go/internal/sqlutil"
	"github.com/sqlc-dev/pqtype"
)

// botRow mirrors a bot_identities row.
type botRow struct {
	ID          int64
	DisplayName string
	Avatar      string
	HomeRoomID  uuid.NullUUID
	Profile     pqtype.NullRawMessage
	CreatedAt   time.Time
}

const displayNameKey = "bot_identities_display_name_key"

const botColumns = `id, display_name, avatar, home_room_id, profile, created_at`

// botQueries is the query set for bot identities, usable on a db or a tx.
type botQueries struct {
	db sqlutil.Querier
}

func newBotQueries(tx *sql.Tx) *botQueries {
	return &botQueries{db: tx}
}

func (q *botQueries) listFree(ctx context.Context, limit int) ([]botRow, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+botColumns+` FROM bot_identities
		 WHERE home_room_id IS NULL
		 ORDER BY id DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []botRow
	for rows.Next() {
		var r botRow
		if err := rows.Scan(&r.ID, &r.DisplayName, &r.Avatar, &r.HomeRoomID, &r.Profile, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *botQueries) get(ctx context.Context, id int64) (botRow, error) {
	var r botRow
	err := q.db.QueryRowContext(ctx,
		`SELECT `+botColumns+` FROM bot_identities WHERE id = $1`, id).
		Scan(&r.ID, &r.DisplayName, &r.Avatar, &r.HomeRoomID, &r.Profile, &r.CreatedAt)
	return r, err
}

func (q *botQueries) setHome(ctx context.Context, id int64, from, to uuid.NullUUID) (int64, error) {
	var res sql.Result
	var err error
	if from.Valid {
		res, err = q.db.ExecContext(ctx,
			`UPDATE bot_identities SET home_room_id = $2 WHERE id = $1 AND home_room_id = $3`, id, to, from)
	} else {
		res, err = q.db.ExecContext(ctx,
			`UPDATE bot_identities SET home_room_id = $2 WHERE id = $1 AND home_room_id IS NULL`, id, to)
	}
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *botQueries) nextID(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `SELECT nextval('bot_identity_seq')`).Scan(&n)
	return -n, err
}

func (q *botQueries) insert(ctx context.Context, r botRow) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO bot_identities (`+botColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.DisplayName, r.Avatar, r.HomeRoomID, r.Profile, r.CreatedAt)
	return err
}

func (q *botQueries) count(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT count(*) FROM bot_identities`).Scan(&n)
	return n, err
}

// PostgresRepository stores bot identities in Postgres through database/sql.
type PostgresRepository struct {
	db      *sql.DB
	queries *botQueries
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db:      db,
		queries: &botQueries{db: db},
	}
}

func (r *PostgresRepository) ListFree(ctx context.Context, limit int) ([]models.BotIdentity, error) {
	rows, err := r.queries.listFree(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list free bots: %w", err)
	}
	out := make([]models.BotIdentity, len(rows))
	for i, row := range rows {
		out[i] = rowToModel(row)
	}
	return out, nil
}

func (r *PostgresRepository) Claim(ctx context.Context, botID models.OccupantID, roomID uuid.UUID) (bool, error) {
	n, err := r.queries.setHome(ctx, int64(botID), uuid.NullUUID{}, uuid.NullUUID{UUID: roomID, Valid: true})
	if err != nil {
		return false, fmt.Errorf("failed to claim bot %d: %w", botID, err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) Release(ctx context.Context, botID models.OccupantID, roomID uuid.UUID) (bool, error) {
	n, err := r.queries.setHome(ctx, int64(botID), uuid.NullUUID{UUID: roomID, Valid: true}, uuid.NullUUID{})
	if err != nil {
		return false, fmt.Errorf("failed to release bot %d: %w", botID, err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) ReleaseRoom(ctx context.Context, roomID uuid.UUID) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bot_identities SET home_room_id = NULL WHERE home_room_id = $1`, roomID)
	if err != nil {
		return 0, fmt.Errorf("failed to release bots of room %s: %w", roomID, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Create mints a sentinel id from the sequence and inserts the identity in
// one transaction.
func (r *PostgresRepository) Create(ctx context.Context, bot models.BotIdentity) (*models.BotIdentity, error) {
	var created botRow
	err := sqlutil.Run(ctx, r.db, newBotQueries, func(q *botQueries) error {
		id, err := q.nextID(ctx)
		if err != nil {
			return fmt.Errorf("failed to mint bot id: %w", err)
		}
		created = botRow{
			ID:          id,
			DisplayName: bot.DisplayName,
			Avatar:      bot.Avatar,
			HomeRoomID:  sqlutil.ToNullUUID(bot.HomeRoomID),
			Profile:     sqlutil.ToNullRawMessage(bot.Profile),
			CreatedAt:   bot.CreatedAt,
		}
		return q.insert(ctx, created)
	})
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" && pqErr.Constraint == displayNameKey {
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	out := rowToModel(created)
	return &out, nil
}

func (r *PostgresRepository) Get(ctx context.Context, botID models.OccupantID) (*models.BotIdentity, error) {
	row, err := r.queries.get(ctx, int64(botID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBotNotFound
		}
		return nil, fmt.Errorf("failed to get bot %d: %w", botID, err)
	}
	out := rowToModel(row)
	return &out, nil
}

func (r *PostgresRepository) Count(ctx context.Context) (int, error) {
	n, err := r.queries.count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count bots: %w", err)
	}
	return n, nil
}

func rowToModel(row botRow) models.BotIdentity {
	return models.BotIdentity{
		ID:          models.OccupantID(row.ID),
		DisplayName: row.DisplayName,
		Avatar:      row.Avatar,
		HomeRoomID:  sqlutil.FromNullUUID(row.HomeRoomID),
		Profile:     sqlutil.FromNullRawMessage(row.Profile),
		CreatedAt:   row.CreatedAt,
	}
}
