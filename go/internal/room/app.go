package room

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/pidr/go/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultCommitAttempts = 32
	defaultCodeAttempts   = 10
	defaultListLimit      = 50
)

// BotAllocator hands out bot identities. Only the owning room may release one.
type BotAllocator interface {
	Acquire(ctx context.Context, roomID uuid.UUID) (*models.BotIdentity, error)
	Release(ctx context.Context, botID models.OccupantID, roomID uuid.UUID) error
	ReleaseRoom(ctx context.Context, roomID uuid.UUID) (int, error)
}

// GameController runs the game sessions of playing rooms.
type GameController interface {
	StartSession(ctx context.Context, roomID uuid.UUID, seats []models.Seat) error
	Forfeit(ctx context.Context, roomID uuid.UUID, occupant models.OccupantID) error
	StopSession(ctx context.Context, roomID uuid.UUID)
}

// Options tunes the room App
type Options struct {
	CommitAttempts int `yaml:"commit_attempts"`
	CodeAttempts   int `yaml:"code_attempts"`
	BcryptCost     int `yaml:"bcrypt_cost"`
}

// App handles room lifecycle and seating. Every mutation is a
// load-validate-commit step retried on version conflicts; no lock is held
// while talking to the repository.
type App struct {
	repo  Repository
	bots  BotAllocator
	games GameController
	clock clockwork.Clock
	opts  Options
}

// NewApp creates a new room App
func NewApp(repo Repository, bots BotAllocator, clock clockwork.Clock, opts Options) *App {
	if opts.CommitAttempts <= 0 {
		opts.CommitAttempts = defaultCommitAttempts
	}
	if opts.CodeAttempts <= 0 {
		opts.CodeAttempts = defaultCodeAttempts
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &App{
		repo:  repo,
		bots:  bots,
		clock: clock,
		opts:  opts,
	}
}

// AttachGames wires the game controller. It is set after construction since
// the controller reports finished games back to the App.
func (a *App) AttachGames(games GameController) {
	a.games = games
}

// CreateRoom opens a room with the host seated at position 1
func (a *App) CreateRoom(ctx context.Context, req CreateRoomRequest) (*RoomDetails, error) {
	if err := a.validateCreateRoomRequest(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var hash string
	if req.Visibility == models.RoomVisibilityPrivate {
		h, err := bcrypt.GenerateFromPassword([]byte(req.Password), a.opts.BcryptCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash room password: %w", err)
		}
		hash = string(h)
	}

	now := a.clock.Now().UTC()
	roomID := uuid.New()
	details := RoomDetails{
		Room: models.Room{
			ID:             roomID,
			HostID:         req.Host,
			MaxPlayers:     req.MaxPlayers,
			Visibility:     req.Visibility,
			PasswordHash:   hash,
			Status:         models.RoomStatusOpen,
			CurrentPlayers: 1,
			Version:        1,
			CreatedAt:      now,
			LastActivityAt: now,
		},
		Seats: []models.Seat{{
			ID:           uuid.New(),
			RoomID:       roomID,
			Position:     1,
			OccupantID:   req.Host,
			OccupantKind: models.OccupantKindHuman,
			DisplayName:  displayName(req.DisplayName, req.Host),
			IsHost:       true,
			IsReady:      true,
			JoinedAt:     now,
		}},
	}

	for i := 0; i < a.opts.CodeAttempts; i++ {
		code, err := newJoinCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate room code: %w", err)
		}
		details.Room.Code = code

		err = a.repo.CreateRoom(ctx, details)
		if errors.Is(err, ErrCodeTaken) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create room: %w", err)
		}
		log.Info().
			Str("room_id", roomID.String()).
			Str("code", code).
			Int64("host", int64(req.Host)).
			Int("max_players", req.MaxPlayers).
			Msg("room created")
		return &details, nil
	}
	return nil, fmt.Errorf("failed to create room: no free code after %d attempts", a.opts.CodeAttempts)
}

// JoinRoom seats the occupant. Concurrent joins never share a position and
// never overfill the room; a repeated join returns the existing seat.
func (a *App) JoinRoom(ctx context.Context, req JoinRoomRequest) (*JoinResult, error) {
	if req.Occupant == 0 {
		return nil, fmt.Errorf("validation failed: %w: occupant is required", models.ErrInvalidArgument)
	}
	load, err := a.loaderFor(req)
	if err != nil {
		return nil, err
	}

	var (
		result        JoinResult
		passwordKnown bool
	)
	details, err := a.update(ctx, load, func(d *RoomDetails) (bool, error) {
		if seat, ok := d.SeatOf(req.Occupant); ok {
			result = JoinResult{Seat: seat, AlreadySeated: true}
			return false, nil
		}
		if d.Room.Status != models.RoomStatusOpen {
			return false, models.ErrRoomNotOpen
		}
		if d.Room.Visibility == models.RoomVisibilityPrivate && !passwordKnown {
			if err := bcrypt.CompareHashAndPassword([]byte(d.Room.PasswordHash), []byte(req.Password)); err != nil {
				return false, models.ErrWrongPassword
			}
			passwordKnown = true
		}
		if len(d.Seats) >= d.Room.MaxPlayers {
			return false, models.ErrRoomFull
		}

		seat := models.Seat{
			ID:           uuid.New(),
			RoomID:       d.Room.ID,
			Position:     nextPosition(d.Seats, d.Room.MaxPlayers),
			OccupantID:   req.Occupant,
			OccupantKind: models.KindOf(req.Occupant),
			DisplayName:  displayName(req.DisplayName, req.Occupant),
			JoinedAt:     a.clock.Now().UTC(),
		}
		d.Seats = append(d.Seats, seat)
		result = JoinResult{Seat: seat}
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to join room: %w", err)
	}
	result.Details = *details

	if !result.AlreadySeated {
		log.Info().
			Str("room_id", details.Room.ID.String()).
			Int64("occupant", int64(req.Occupant)).
			Int("position", result.Seat.Position).
			Int("players", details.Room.CurrentPlayers).
			Msg("occupant joined room")
	}
	return &result, nil
}

// LeaveRoom removes the occupant's seat. A leaving host hands over to the
// lowest-position human; a room left with only bots, or nobody, is closed.
// Leaving a playing room forfeits the running game.
func (a *App) LeaveRoom(ctx context.Context, occupant models.OccupantID, roomID uuid.UUID) (*LeaveResult, error) {
	current, err := a.repo.GetRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to leave room: %w", err)
	}
	if _, ok := current.SeatOf(occupant); !ok {
		return nil, fmt.Errorf("failed to leave room: %w", models.ErrNotSeated)
	}
	if current.Room.Status == models.RoomStatusPlaying && a.games != nil {
		if err := a.games.Forfeit(ctx, roomID, occupant); err != nil && !errors.Is(err, models.ErrGameNotRunning) {
			return nil, fmt.Errorf("failed to forfeit game: %w", err)
		}
	}

	// humans that already host another active room cannot take over
	skip := make(map[models.OccupantID]bool)
	var result LeaveResult
	for {
		_, err := a.update(ctx, a.byID(roomID), func(d *RoomDetails) (bool, error) {
			result = LeaveResult{}
			i := d.indexOf(occupant)
			if i < 0 {
				return false, models.ErrNotSeated
			}
			result.Seat = d.Seats[i]
			d.Seats = append(d.Seats[:i], d.Seats[i+1:]...)

			if !result.Seat.IsHost {
				return true, nil
			}
			next := lowestHuman(d.Seats, skip)
			if next < 0 {
				// only bots are left, or nobody
				d.Room.Status = models.RoomStatusClosing
				result.RoomClosed = true
				return true, nil
			}
			d.Seats[next].IsHost = true
			d.Seats[next].IsReady = true
			d.Room.HostID = d.Seats[next].OccupantID
			result.NewHost = d.Room.HostID
			return true, nil
		})
		if errors.Is(err, models.ErrAlreadyHasActiveRoom) && result.NewHost != 0 {
			skip[result.NewHost] = true
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to leave room: %w", err)
		}
		break
	}

	log.Info().
		Str("room_id", roomID.String()).
		Int64("occupant", int64(occupant)).
		Int64("new_host", int64(result.NewHost)).
		Bool("closed", result.RoomClosed).
		Msg("occupant left room")

	if result.RoomClosed {
		if err := a.teardown(ctx, roomID); err != nil {
			return nil, err
		}
	}
	return &result, nil
}

// CloseRoom removes the room and all its seats. Only the host may close.
func (a *App) CloseRoom(ctx context.Context, caller models.OccupantID, roomID uuid.UUID) error {
	_, err := a.update(ctx, a.byID(roomID), func(d *RoomDetails) (bool, error) {
		if d.Room.HostID != caller {
			return false, models.ErrNotHost
		}
		if d.Room.Status == models.RoomStatusClosing {
			return false, models.ErrRoomNotOpen
		}
		d.Room.Status = models.RoomStatusClosing
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("failed to close room: %w", err)
	}
	log.Info().Str("room_id", roomID.String()).Int64("host", int64(caller)).Msg("room closing")
	return a.teardown(ctx, roomID)
}

// ForceClose tears a room down without a host check. It is used when the
// room's game state turned out to be inconsistent.
func (a *App) ForceClose(ctx context.Context, roomID uuid.UUID, reason error) error {
	log.Error().Err(reason).Str("room_id", roomID.String()).Msg("force closing room")

	_, err := a.update(ctx, a.byID(roomID), func(d *RoomDetails) (bool, error) {
		if d.Room.Status == models.RoomStatusClosing {
			return false, nil
		}
		d.Room.Status = models.RoomStatusClosing
		return true, nil
	})
	if errors.Is(err, models.ErrRoomNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to force close room: %w", err)
	}
	return a.teardown(ctx, roomID)
}

// teardown deletes a room already marked closing and frees what it held.
func (a *App) teardown(ctx context.Context, roomID uuid.UUID) error {
	if a.games != nil {
		a.games.StopSession(ctx, roomID)
	}
	if err := a.repo.DeleteRoom(ctx, roomID); err != nil && !errors.Is(err, models.ErrRoomNotFound) {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	if _, err := a.bots.ReleaseRoom(ctx, roomID); err != nil {
		return fmt.Errorf("failed to release room bots: %w", err)
	}
	log.Info().Str("room_id", roomID.String()).Msg("room deleted")
	return nil
}

// AddBot seats a bot identity. The identity is claimed before seating and
// handed back if the seat cannot be committed.
func (a *App) AddBot(ctx context.Context, caller models.OccupantID, roomID uuid.UUID) (*models.Seat, *models.BotIdentity, error) {
	current, err := a.repo.GetRoom(ctx, roomID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to add bot: %w", err)
	}
	if err := canAddBot(current, caller); err != nil {
		return nil, nil, fmt.Errorf("failed to add bot: %w", err)
	}

	bot, err := a.bots.Acquire(ctx, roomID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to add bot: %w", err)
	}

	var seat models.Seat
	_, err = a.update(ctx, a.byID(roomID), func(d *RoomDetails) (bool, error) {
		if err := canAddBot(d, caller); err != nil {
			return false, err
		}
		seat = models.Seat{
			ID:           uuid.New(),
			RoomID:       roomID,
			Position:     nextPosition(d.Seats, d.Room.MaxPlayers),
			OccupantID:   bot.ID,
			OccupantKind: models.OccupantKindBot,
			DisplayName:  bot.DisplayName,
			IsReady:      true,
			JoinedAt:     a.clock.Now().UTC(),
		}
		d.Seats = append(d.Seats, seat)
		return true, nil
	})
	if err != nil {
		if relErr := a.bots.Release(ctx, bot.ID, roomID); relErr != nil {
			log.Error().Err(relErr).Int64("bot_id", int64(bot.ID)).Msg("failed to hand back bot")
		}
		return nil, nil, fmt.Errorf("failed to add bot: %w", err)
	}

	log.Info().
		Str("room_id", roomID.String()).
		Int64("bot_id", int64(bot.ID)).
		Int("position", seat.Position).
		Msg("bot seated")
	return &seat, bot, nil
}

func canAddBot(d *RoomDetails, caller models.OccupantID) error {
	if d.Room.HostID != caller {
		return models.ErrNotHost
	}
	if d.Room.Status != models.RoomStatusOpen {
		return models.ErrRoomNotOpen
	}
	if len(d.Seats) >= d.Room.MaxPlayers {
		return models.ErrRoomFull
	}
	return nil
}

// RemoveBot unseats the most recently seated bot, the one at the highest
// position, and frees its identity.
func (a *App) RemoveBot(ctx context.Context, caller models.OccupantID, roomID uuid.UUID) (*models.Seat, error) {
	var removed models.Seat
	_, err := a.update(ctx, a.byID(roomID), func(d *RoomDetails) (bool, error) {
		if d.Room.HostID != caller {
			return false, models.ErrNotHost
		}
		if d.Room.Status != models.RoomStatusOpen {
			return false, models.ErrRoomNotOpen
		}
		idx := -1
		for i, s := range d.Seats {
			if s.OccupantKind == models.OccupantKindBot && (idx < 0 || s.Position > d.Seats[idx].Position) {
				idx = i
			}
		}
		if idx < 0 {
			return false, models.ErrNoBotsPresent
		}
		removed = d.Seats[idx]
		d.Seats = append(d.Seats[:idx], d.Seats[idx+1:]...)
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to remove bot: %w", err)
	}
	if err := a.bots.Release(ctx, removed.OccupantID, roomID); err != nil {
		return nil, err
	}

	log.Info().
		Str("room_id", roomID.String()).
		Int64("bot_id", int64(removed.OccupantID)).
		Int("position", removed.Position).
		Msg("bot removed")
	return &removed, nil
}

// SetReady toggles the caller's ready flag while the room is open
func (a *App) SetReady(ctx context.Context, occupant models.OccupantID, roomID uuid.UUID, ready bool) (*models.Seat, error) {
	var seat models.Seat
	_, err := a.update(ctx, a.byID(roomID), func(d *RoomDetails) (bool, error) {
		i := d.indexOf(occupant)
		if i < 0 {
			return false, models.ErrNotSeated
		}
		if d.Room.Status != models.RoomStatusOpen {
			return false, models.ErrRoomNotOpen
		}
		seat = d.Seats[i]
		if seat.IsReady == ready {
			return false, nil
		}
		d.Seats[i].IsReady = ready
		seat = d.Seats[i]
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set ready: %w", err)
	}
	return &seat, nil
}

// StartGame moves an open room to playing and starts its game session
func (a *App) StartGame(ctx context.Context, caller models.OccupantID, roomID uuid.UUID) (*RoomDetails, error) {
	if a.games == nil {
		return nil, fmt.Errorf("failed to start game: %w", models.ErrGameNotRunning)
	}
	details, err := a.update(ctx, a.byID(roomID), func(d *RoomDetails) (bool, error) {
		if d.Room.HostID != caller {
			return false, models.ErrNotHost
		}
		if d.Room.Status != models.RoomStatusOpen {
			return false, models.ErrRoomNotOpen
		}
		if len(d.Seats) < models.MinRoomPlayers {
			return false, fmt.Errorf("%w: need at least %d players", models.ErrPlayersNotReady, models.MinRoomPlayers)
		}
		var waiting []string
		for _, s := range d.Seats {
			if !s.IsHost && !s.IsReady {
				waiting = append(waiting, s.DisplayName)
			}
		}
		if len(waiting) > 0 {
			return false, fmt.Errorf("%w: waiting for %s", models.ErrPlayersNotReady, strings.Join(waiting, ", "))
		}
		d.Room.Status = models.RoomStatusPlaying
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start game: %w", err)
	}

	if err := a.games.StartSession(ctx, roomID, details.Seats); err != nil {
		if ferr := a.FinishGame(ctx, roomID); ferr != nil {
			log.Error().Err(ferr).Str("room_id", roomID.String()).Msg("failed to reopen room after start failure")
		}
		return nil, fmt.Errorf("failed to start game: %w", err)
	}

	log.Info().
		Str("room_id", roomID.String()).
		Int("players", len(details.Seats)).
		Msg("game started")
	return details, nil
}

// FinishGame returns a playing room to the lobby. Human non-hosts must
// ready up again before the next game.
func (a *App) FinishGame(ctx context.Context, roomID uuid.UUID) error {
	_, err := a.update(ctx, a.byID(roomID), func(d *RoomDetails) (bool, error) {
		if d.Room.Status != models.RoomStatusPlaying {
			return false, nil
		}
		d.Room.Status = models.RoomStatusOpen
		for i := range d.Seats {
			if !d.Seats[i].IsHost && d.Seats[i].OccupantKind == models.OccupantKindHuman {
				d.Seats[i].IsReady = false
			}
		}
		return true, nil
	})
	if errors.Is(err, models.ErrRoomNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to finish game: %w", err)
	}
	return nil
}

// GetRoom returns a room with its seats
func (a *App) GetRoom(ctx context.Context, roomID uuid.UUID) (*RoomDetails, error) {
	details, err := a.repo.GetRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return details, nil
}

// ListRooms returns public rooms that are open for joining
func (a *App) ListRooms(ctx context.Context, limit int) ([]models.Room, error) {
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	rooms, err := a.repo.ListOpenRooms(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, nil
}

type loader func(ctx context.Context) (*RoomDetails, error)

func (a *App) byID(roomID uuid.UUID) loader {
	return func(ctx context.Context) (*RoomDetails, error) {
		return a.repo.GetRoom(ctx, roomID)
	}
}

func (a *App) loaderFor(req JoinRoomRequest) (loader, error) {
	if req.RoomID != uuid.Nil {
		return a.byID(req.RoomID), nil
	}
	code := normalizeCode(req.Code)
	if !validCode(code) {
		return nil, fmt.Errorf("validation failed: %w: room id or a %d character code is required", models.ErrInvalidArgument, codeLength)
	}
	return func(ctx context.Context) (*RoomDetails, error) {
		return a.repo.GetRoomByCode(ctx, code)
	}, nil
}

// update runs one optimistic mutation: load, let fn edit a copy, commit it
// against the loaded version. A version conflict reruns the whole step. fn
// returns false to finish without writing.
func (a *App) update(ctx context.Context, load loader, fn func(d *RoomDetails) (bool, error)) (*RoomDetails, error) {
	for attempt := 0; attempt < a.opts.CommitAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		current, err := load(ctx)
		if err != nil {
			return nil, err
		}
		next := current.clone()
		changed, err := fn(&next)
		if err != nil {
			return nil, err
		}
		if !changed {
			return current, nil
		}

		sort.Slice(next.Seats, func(i, j int) bool { return next.Seats[i].Position < next.Seats[j].Position })
		next.Room.CurrentPlayers = len(next.Seats)
		next.Room.Version = current.Room.Version + 1
		next.Room.LastActivityAt = a.clock.Now().UTC()

		err = a.repo.CommitRoom(ctx, next, current.Room.Version)
		if errors.Is(err, models.ErrVersionConflict) {
			log.Debug().
				Str("room_id", current.Room.ID.String()).
				Int64("version", current.Room.Version).
				Int("attempt", attempt+1).
				Msg("room version conflict, retrying")
			continue
		}
		if errors.Is(err, models.ErrInvariantViolation) && next.Room.Status != models.RoomStatusClosing {
			if closeErr := a.ForceClose(context.WithoutCancel(ctx), current.Room.ID, err); closeErr != nil {
				log.Error().Err(closeErr).Str("room_id", current.Room.ID.String()).Msg("failed to force close broken room")
			}
			return nil, err
		}
		if err != nil {
			return nil, err
		}
		return &next, nil
	}
	return nil, fmt.Errorf("%w: gave up after %d attempts", models.ErrVersionConflict, a.opts.CommitAttempts)
}

// nextPosition appends above the highest occupied position while that fits,
// otherwise it reuses the lowest vacated one.
func nextPosition(seats []models.Seat, maxPlayers int) int {
	taken := make(map[int]bool, len(seats))
	highest := 0
	for _, s := range seats {
		taken[s.Position] = true
		if s.Position > highest {
			highest = s.Position
		}
	}
	if highest+1 <= maxPlayers {
		return highest + 1
	}
	for p := 1; p <= maxPlayers; p++ {
		if !taken[p] {
			return p
		}
	}
	return highest + 1
}

func lowestHuman(seats []models.Seat, skip map[models.OccupantID]bool) int {
	idx := -1
	for i, s := range seats {
		if s.OccupantKind != models.OccupantKindHuman || skip[s.OccupantID] {
			continue
		}
		if idx < 0 || s.Position < seats[idx].Position {
			idx = i
		}
	}
	return idx
}

func displayName(name string, occupant models.OccupantID) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Sprintf("Player %d", occupant)
	}
	return name
}

func (a *App) validateCreateRoomRequest(req CreateRoomRequest) error {
	if req.Host <= 0 {
		return fmt.Errorf("%w: host must be a human occupant", models.ErrInvalidArgument)
	}
	if req.MaxPlayers < models.MinRoomPlayers || req.MaxPlayers > models.MaxRoomPlayers {
		return fmt.Errorf("%w: max players must be between %d and %d", models.ErrInvalidArgument, models.MinRoomPlayers, models.MaxRoomPlayers)
	}
	switch req.Visibility {
	case models.RoomVisibilityPublic:
	case models.RoomVisibilityPrivate:
		if req.Password == "" {
			return fmt.Errorf("%w: private rooms need a password", models.ErrInvalidArgument)
		}
	default:
		return fmt.Errorf("%w: unknown visibility %q", models.ErrInvalidArgument, req.Visibility)
	}
	return nil
}
