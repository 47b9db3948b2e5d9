package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/pidr/go/internal/bots"
	"github.com/mcdev12/pidr/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type mockGames struct {
	mock.Mock
}

func (m *mockGames) StartSession(ctx context.Context, roomID uuid.UUID, seats []models.Seat) error {
	return m.Called(roomID, len(seats)).Error(0)
}

func (m *mockGames) Forfeit(ctx context.Context, roomID uuid.UUID, occupant models.OccupantID) error {
	return m.Called(roomID, occupant).Error(0)
}

func (m *mockGames) StopSession(ctx context.Context, roomID uuid.UUID) {
	m.Called(roomID)
}

// flakyRepo fails the next commits with the queued errors.
type flakyRepo struct {
	*MemoryRepository
	mu       sync.Mutex
	failures []error
	commits  int
}

func (f *flakyRepo) CommitRoom(ctx context.Context, details RoomDetails, expected int64) error {
	f.mu.Lock()
	f.commits++
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		f.mu.Unlock()
		return err
	}
	f.mu.Unlock()
	return f.MemoryRepository.CommitRoom(ctx, details, expected)
}

type fixture struct {
	app      *App
	repo     *MemoryRepository
	botRepo  *bots.MemoryRepository
	botApp   *bots.App
	games    *mockGames
	clock    *clockwork.FakeClock
	ctx      context.Context
	nextUser models.OccupantID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	botRepo := bots.NewMemoryRepository()
	botApp := bots.NewApp(botRepo, bots.NewNamePool(1), clock)
	repo := NewMemoryRepository()
	games := &mockGames{}
	app := NewApp(repo, botApp, clock, Options{BcryptCost: bcrypt.MinCost})
	app.AttachGames(games)
	return &fixture{
		app:      app,
		repo:     repo,
		botRepo:  botRepo,
		botApp:   botApp,
		games:    games,
		clock:    clock,
		ctx:      context.Background(),
		nextUser: 1,
	}
}

func (f *fixture) user() models.OccupantID {
	id := f.nextUser
	f.nextUser++
	return id
}

func (f *fixture) createRoom(t *testing.T, maxPlayers int) (*RoomDetails, models.OccupantID) {
	t.Helper()
	host := f.user()
	details, err := f.app.CreateRoom(f.ctx, CreateRoomRequest{
		Host:       host,
		MaxPlayers: maxPlayers,
		Visibility: models.RoomVisibilityPublic,
	})
	require.NoError(t, err)
	return details, host
}

func (f *fixture) join(t *testing.T, roomID uuid.UUID) models.OccupantID {
	t.Helper()
	occ := f.user()
	_, err := f.app.JoinRoom(f.ctx, JoinRoomRequest{Occupant: occ, RoomID: roomID})
	require.NoError(t, err)
	return occ
}

func positions(seats []models.Seat) []int {
	out := make([]int, len(seats))
	for i, s := range seats {
		out[i] = s.Position
	}
	return out
}

func TestCreateRoom(t *testing.T) {
	f := newFixture(t)
	details, host := f.createRoom(t, 4)

	assert.Len(t, details.Room.Code, codeLength)
	assert.True(t, validCode(details.Room.Code))
	assert.Equal(t, models.RoomStatusOpen, details.Room.Status)
	assert.Equal(t, 1, details.Room.CurrentPlayers)
	require.Len(t, details.Seats, 1)
	assert.Equal(t, host, details.Seats[0].OccupantID)
	assert.Equal(t, 1, details.Seats[0].Position)
	assert.True(t, details.Seats[0].IsHost)

	_, err := f.app.CreateRoom(f.ctx, CreateRoomRequest{Host: host, MaxPlayers: 3, Visibility: models.RoomVisibilityPublic})
	assert.ErrorIs(t, err, models.ErrAlreadyHasActiveRoom)
}

func TestCreateRoomValidation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		req  CreateRoomRequest
	}{
		{"bot host", CreateRoomRequest{Host: -3, MaxPlayers: 4, Visibility: models.RoomVisibilityPublic}},
		{"too few seats", CreateRoomRequest{Host: 1, MaxPlayers: 1, Visibility: models.RoomVisibilityPublic}},
		{"too many seats", CreateRoomRequest{Host: 1, MaxPlayers: 10, Visibility: models.RoomVisibilityPublic}},
		{"private without password", CreateRoomRequest{Host: 1, MaxPlayers: 4, Visibility: models.RoomVisibilityPrivate}},
		{"unknown visibility", CreateRoomRequest{Host: 1, MaxPlayers: 4, Visibility: "SECRET"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.app.CreateRoom(f.ctx, tt.req)
			assert.ErrorIs(t, err, models.ErrInvalidArgument)
		})
	}
}

func TestConcurrentJoinsNeverCollide(t *testing.T) {
	f := newFixture(t)
	const maxPlayers = 6
	const joiners = 24
	details, _ := f.createRoom(t, maxPlayers)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		seated   []models.Seat
		rejected int
	)
	for i := 0; i < joiners; i++ {
		occ := f.user()
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.app.JoinRoom(f.ctx, JoinRoomRequest{Occupant: occ, RoomID: details.Room.ID})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, models.ErrRoomFull)
				rejected++
				return
			}
			seated = append(seated, res.Seat)
		}()
	}
	wg.Wait()

	assert.Len(t, seated, maxPlayers-1)
	assert.Equal(t, joiners-(maxPlayers-1), rejected)

	final, err := f.app.GetRoom(f.ctx, details.Room.ID)
	require.NoError(t, err)
	assert.Equal(t, maxPlayers, final.Room.CurrentPlayers)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, positions(final.Seats))
}

func TestJoinIsIdempotent(t *testing.T) {
	f := newFixture(t)
	details, host := f.createRoom(t, 4)
	occ := f.user()

	first, err := f.app.JoinRoom(f.ctx, JoinRoomRequest{Occupant: occ, RoomID: details.Room.ID, DisplayName: "Ann"})
	require.NoError(t, err)
	assert.False(t, first.AlreadySeated)
	assert.Equal(t, 2, first.Seat.Position)
	assert.Equal(t, "Ann", first.Seat.DisplayName)

	again, err := f.app.JoinRoom(f.ctx, JoinRoomRequest{Occupant: occ, RoomID: details.Room.ID})
	require.NoError(t, err)
	assert.True(t, again.AlreadySeated)
	assert.Equal(t, first.Seat, again.Seat)
	assert.Equal(t, first.Details.Room.Version, again.Details.Room.Version)

	hostAgain, err := f.app.JoinRoom(f.ctx, JoinRoomRequest{Occupant: host, RoomID: details.Room.ID})
	require.NoError(t, err)
	assert.True(t, hostAgain.AlreadySeated)
	assert.Equal(t, 2, hostAgain.Details.Room.CurrentPlayers)
}

func TestJoinPrivateRoomByCode(t *testing.T) {
	f := newFixture(t)
	details, err := f.app.CreateRoom(f.ctx, CreateRoomRequest{
		Host:       f.user(),
		MaxPlayers: 3,
		Visibility: models.RoomVisibilityPrivate,
		Password:   "hunter2",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, details.Room.PasswordHash)

	rooms, err := f.app.ListRooms(f.ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, rooms, "private rooms are not listed")

	code := " " + string(details.Room.Code[0]|0x20) + details.Room.Code[1:] + " "
	_, err = f.app.JoinRoom(f.ctx, JoinRoomRequest{Occupant: f.user(), Code: code, Password: "nope"})
	assert.ErrorIs(t, err, models.ErrWrongPassword)

	res, err := f.app.JoinRoom(f.ctx, JoinRoomRequest{Occupant: f.user(), Code: code, Password: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, details.Room.ID, res.Details.Room.ID)

	_, err = f.app.JoinRoom(f.ctx, JoinRoomRequest{Occupant: f.user(), Code: "ZZZZZZ"})
	assert.ErrorIs(t, err, models.ErrRoomNotFound)

	_, err = f.app.JoinRoom(f.ctx, JoinRoomRequest{Occupant: f.user(), Code: "abc"})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestJoinReusesVacatedPositionWhenFull(t *testing.T) {
	f := newFixture(t)
	details, _ := f.createRoom(t, 3)
	a := f.join(t, details.Room.ID)
	f.join(t, details.Room.ID)

	_, err := f.app.LeaveRoom(f.ctx, a, details.Room.ID)
	require.NoError(t, err)

	c := f.user()
	res, err := f.app.JoinRoom(f.ctx, JoinRoomRequest{Occupant: c, RoomID: details.Room.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Seat.Position)
	assert.Equal(t, []int{1, 2, 3}, positions(res.Details.Seats))
}

func TestNextPosition(t *testing.T) {
	seat := func(p int) models.Seat { return models.Seat{Position: p} }
	tests := []struct {
		name  string
		seats []models.Seat
		max   int
		want  int
	}{
		{"empty room", nil, 4, 1},
		{"append above max", []models.Seat{seat(1), seat(2)}, 4, 3},
		{"append past a gap", []models.Seat{seat(1), seat(3)}, 4, 4},
		{"reuse lowest gap at the top", []models.Seat{seat(1), seat(4)}, 4, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextPosition(tt.seats, tt.max))
		})
	}
}

func TestHostLeavingTransfersToLowestHuman(t *testing.T) {
	f := newFixture(t)
	details, host := f.createRoom(t, 5)
	_, _, err := f.app.AddBot(f.ctx, host, details.Room.ID)
	require.NoError(t, err)
	third := f.join(t, details.Room.ID)
	f.join(t, details.Room.ID)

	res, err := f.app.LeaveRoom(f.ctx, host, details.Room.ID)
	require.NoError(t, err)
	assert.Equal(t, third, res.NewHost)
	assert.False(t, res.RoomClosed)

	after, err := f.app.GetRoom(f.ctx, details.Room.ID)
	require.NoError(t, err)
	assert.Equal(t, third, after.Room.HostID)
	hosts := 0
	for _, s := range after.Seats {
		if s.IsHost {
			hosts++
			assert.Equal(t, third, s.OccupantID)
		}
	}
	assert.Equal(t, 1, hosts)
	assert.Equal(t, 3, after.Room.CurrentPlayers)
}

func TestHostTransferSkipsHostsOfOtherRooms(t *testing.T) {
	f := newFixture(t)
	details, host := f.createRoom(t, 4)
	busy := f.join(t, details.Room.ID)
	free := f.join(t, details.Room.ID)

	_, err := f.app.CreateRoom(f.ctx, CreateRoomRequest{Host: busy, MaxPlayers: 2, Visibility: models.RoomVisibilityPublic})
	require.NoError(t, err)

	res, err := f.app.LeaveRoom(f.ctx, host, details.Room.ID)
	require.NoError(t, err)
	assert.Equal(t, free, res.NewHost)
}

func TestRoomWithOnlyBotsIsClosed(t *testing.T) {
	f := newFixture(t)
	details, host := f.createRoom(t, 4)
	for i := 0; i < 2; i++ {
		_, _, err := f.app.AddBot(f.ctx, host, details.Room.ID)
		require.NoError(t, err)
	}
	f.games.On("StopSession", details.Room.ID).Return()

	res, err := f.app.LeaveRoom(f.ctx, host, details.Room.ID)
	require.NoError(t, err)
	assert.True(t, res.RoomClosed)

	_, err = f.app.GetRoom(f.ctx, details.Room.ID)
	assert.ErrorIs(t, err, models.ErrRoomNotFound)

	free, err := f.botRepo.ListFree(f.ctx, 0)
	require.NoError(t, err)
	assert.Len(t, free, 2, "bots go back to the pool")
	f.games.AssertExpectations(t)
}

func TestLastLeaverDeletesRoom(t *testing.T) {
	f := newFixture(t)
	details, host := f.createRoom(t, 2)
	f.games.On("StopSession", details.Room.ID).Return()

	_, err := f.app.LeaveRoom(f.ctx, host, details.Room.ID)
	require.NoError(t, err)

	_, err = f.app.GetRoom(f.ctx, details.Room.ID)
	assert.ErrorIs(t, err, models.ErrRoomNotFound)

	_, err = f.app.CreateRoom(f.ctx, CreateRoomRequest{Host: host, MaxPlayers: 2, Visibility: models.RoomVisibilityPublic})
	assert.NoError(t, err, "host may open a new room once the old one is gone")
}

func TestLeaveRequiresSeat(t *testing.T) {
	f := newFixture(t)
	details, _ := f.createRoom(t, 2)

	_, err := f.app.LeaveRoom(f.ctx, f.user(), details.Room.ID)
	assert.ErrorIs(t, err, models.ErrNotSeated)
}

func TestCloseRoom(t *testing.T) {
	f := newFixture(t)
	details, host := f.createRoom(t, 4)
	guest := f.join(t, details.Room.ID)
	_, _, err := f.app.AddBot(f.ctx, host, details.Room.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, f.app.CloseRoom(f.ctx, guest, details.Room.ID), models.ErrNotHost)

	f.games.On("StopSession", details.Room.ID).Return().Once()
	require.NoError(t, f.app.CloseRoom(f.ctx, host, details.Room.ID))

	_, err = f.app.GetRoom(f.ctx, details.Room.ID)
	assert.ErrorIs(t, err, models.ErrRoomNotFound)
	_, err = f.app.JoinRoom(f.ctx, JoinRoomRequest{Occupant: f.user(), Code: details.Room.Code})
	assert.ErrorIs(t, err, models.ErrRoomNotFound)

	free, err := f.botRepo.ListFree(f.ctx, 0)
	require.NoError(t, err)
	assert.Len(t, free, 1)
	f.games.AssertExpectations(t)
}

func TestScenarioThreeBotsFillRoom(t *testing.T) {
	t.Run("free pool", func(t *testing.T) {
		f := newFixture(t)
		var pooled []models.OccupantID
		for _, name := range []string{"Ada", "Bo", "Cy"} {
			b, err := f.botRepo.Create(f.ctx, models.BotIdentity{DisplayName: name})
			require.NoError(t, err)
			pooled = append(pooled, b.ID)
		}

		details, host := f.createRoom(t, 4)
		var got []models.OccupantID
		for i := 0; i < 3; i++ {
			_, bot, err := f.app.AddBot(f.ctx, host, details.Room.ID)
			require.NoError(t, err)
			got = append(got, bot.ID)
		}
		assert.ElementsMatch(t, pooled, got)

		after, err := f.app.GetRoom(f.ctx, details.Room.ID)
		require.NoError(t, err)
		assert.Equal(t, 4, after.Room.CurrentPlayers)
		assert.Equal(t, []int{1, 2, 3, 4}, positions(after.Seats))

		_, _, err = f.app.AddBot(f.ctx, host, details.Room.ID)
		assert.ErrorIs(t, err, models.ErrRoomFull)
	})

	t.Run("empty pool", func(t *testing.T) {
		f := newFixture(t)
		details, host := f.createRoom(t, 4)
		for i := 0; i < 3; i++ {
			seat, bot, err := f.app.AddBot(f.ctx, host, details.Room.ID)
			require.NoError(t, err)
			assert.True(t, bot.ID.IsBot())
			assert.Equal(t, models.OccupantKindBot, seat.OccupantKind)
			assert.Equal(t, bot.DisplayName, seat.DisplayName)
		}
		after, err := f.app.GetRoom(f.ctx, details.Room.ID)
		require.NoError(t, err)
		assert.Equal(t, 4, after.Room.CurrentPlayers)
		assert.Equal(t, []int{1, 2, 3, 4}, positions(after.Seats))
	})
}

func TestConcurrentAddBotAcrossRooms(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 4; i++ {
		_, err := f.botRepo.Create(f.ctx, models.BotIdentity{DisplayName: uuid.NewString()})
		require.NoError(t, err)
	}

	type room struct {
		id   uuid.UUID
		host models.OccupantID
	}
	var rooms []room
	for i := 0; i < 6; i++ {
		d, host := f.createRoom(t, 4)
		rooms = append(rooms, room{d.Room.ID, host})
	}

	var wg sync.WaitGroup
	for _, r := range rooms {
		for j := 0; j < 3; j++ {
			wg.Add(1)
			go func(r room) {
				defer wg.Done()
				_, _, err := f.app.AddBot(f.ctx, r.host, r.id)
				assert.NoError(t, err)
			}(r)
		}
	}
	wg.Wait()

	seen := make(map[models.OccupantID]uuid.UUID)
	for _, r := range rooms {
		d, err := f.app.GetRoom(f.ctx, r.id)
		require.NoError(t, err)
		assert.Equal(t, 4, d.Room.CurrentPlayers)
		for _, s := range d.Seats {
			if !s.OccupantID.IsBot() {
				continue
			}
			prev, dup := seen[s.OccupantID]
			assert.False(t, dup, "bot %d seated in %s and %s", s.OccupantID, prev, r.id)
			seen[s.OccupantID] = r.id

			stored, err := f.botRepo.Get(f.ctx, s.OccupantID)
			require.NoError(t, err)
			require.NotNil(t, stored.HomeRoomID)
			assert.Equal(t, r.id, *stored.HomeRoomID)
		}
	}
	assert.Len(t, seen, 18)
}

func TestAddBotHandsBackClaimOnFailedSeat(t *testing.T) {
	f := newFixture(t)
	flaky := &flakyRepo{MemoryRepository: f.repo}
	f.app.repo = flaky

	details, host := f.createRoom(t, 3)
	flaky.failures = []error{errors.New("connection reset")}

	_, _, err := f.app.AddBot(f.ctx, host, details.Room.ID)
	require.Error(t, err)

	free, err := f.botRepo.ListFree(f.ctx, 0)
	require.NoError(t, err)
	require.Len(t, free, 1)
	assert.True(t, free[0].IsFree())
}

func TestRemoveBot(t *testing.T) {
	f := newFixture(t)
	details, host := f.createRoom(t, 5)

	_, err := f.app.RemoveBot(f.ctx, host, details.Room.ID)
	assert.ErrorIs(t, err, models.ErrNoBotsPresent)

	_, first, err := f.app.AddBot(f.ctx, host, details.Room.ID)
	require.NoError(t, err)
	f.join(t, details.Room.ID)
	_, second, err := f.app.AddBot(f.ctx, host, details.Room.ID)
	require.NoError(t, err)

	guest := f.join(t, details.Room.ID)
	_, err = f.app.RemoveBot(f.ctx, guest, details.Room.ID)
	assert.ErrorIs(t, err, models.ErrNotHost)

	removed, err := f.app.RemoveBot(f.ctx, host, details.Room.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, removed.OccupantID, "most recently added bot goes first")
	assert.Equal(t, 4, removed.Position)

	stored, err := f.botRepo.Get(f.ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsFree())

	after, err := f.app.GetRoom(f.ctx, details.Room.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, after.Room.CurrentPlayers)
	_, stillSeated := after.SeatOf(first.ID)
	assert.True(t, stillSeated)
}

func TestCommitRetriesOnVersionConflict(t *testing.T) {
	f := newFixture(t)
	flaky := &flakyRepo{MemoryRepository: f.repo}
	f.app.repo = flaky
	details, _ := f.createRoom(t, 4)

	flaky.failures = []error{models.ErrVersionConflict, models.ErrVersionConflict}
	res, err := f.app.JoinRoom(f.ctx, JoinRoomRequest{Occupant: f.user(), RoomID: details.Room.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Seat.Position)
	assert.Equal(t, 3, flaky.commits)
	assert.Equal(t, int64(2), res.Details.Room.Version)
}

func TestCommitGivesUpAfterBoundedAttempts(t *testing.T) {
	f := newFixture(t)
	flaky := &flakyRepo{MemoryRepository: f.repo}
	f.app.repo = flaky
	f.app.opts.CommitAttempts = 3
	details, _ := f.createRoom(t, 4)

	flaky.failures = []error{models.ErrVersionConflict, models.ErrVersionConflict, models.ErrVersionConflict}
	_, err := f.app.JoinRoom(f.ctx, JoinRoomRequest{Occupant: f.user(), RoomID: details.Room.ID})
	assert.ErrorIs(t, err, models.ErrVersionConflict)
}

func TestStartAndFinishGame(t *testing.T) {
	f := newFixture(t)
	details, host := f.createRoom(t, 4)
	guest := f.join(t, details.Room.ID)
	_, _, err := f.app.AddBot(f.ctx, host, details.Room.ID)
	require.NoError(t, err)

	_, err = f.app.StartGame(f.ctx, guest, details.Room.ID)
	assert.ErrorIs(t, err, models.ErrNotHost)

	_, err = f.app.StartGame(f.ctx, host, details.Room.ID)
	assert.ErrorIs(t, err, models.ErrPlayersNotReady)

	_, err = f.app.SetReady(f.ctx, guest, details.Room.ID, true)
	require.NoError(t, err)

	f.games.On("StartSession", details.Room.ID, 3).Return(nil).Once()
	started, err := f.app.StartGame(f.ctx, host, details.Room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusPlaying, started.Room.Status)

	_, err = f.app.JoinRoom(f.ctx, JoinRoomRequest{Occupant: f.user(), RoomID: details.Room.ID})
	assert.ErrorIs(t, err, models.ErrRoomNotOpen)
	_, _, err = f.app.AddBot(f.ctx, host, details.Room.ID)
	assert.ErrorIs(t, err, models.ErrRoomNotOpen)

	require.NoError(t, f.app.FinishGame(f.ctx, details.Room.ID))
	after, err := f.app.GetRoom(f.ctx, details.Room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusOpen, after.Room.Status)
	for _, s := range after.Seats {
		want := s.IsHost || s.OccupantKind == models.OccupantKindBot
		assert.Equal(t, want, s.IsReady, "seat %d", s.Position)
	}
	f.games.AssertExpectations(t)
}

func TestStartGameNeedsTwoPlayers(t *testing.T) {
	f := newFixture(t)
	details, host := f.createRoom(t, 4)

	_, err := f.app.StartGame(f.ctx, host, details.Room.ID)
	assert.ErrorIs(t, err, models.ErrPlayersNotReady)
}

func TestStartGameReopensRoomWhenSessionFails(t *testing.T) {
	f := newFixture(t)
	details, host := f.createRoom(t, 2)
	_, _, err := f.app.AddBot(f.ctx, host, details.Room.ID)
	require.NoError(t, err)

	f.games.On("StartSession", details.Room.ID, 2).Return(models.ErrInvariantViolation).Once()
	_, err = f.app.StartGame(f.ctx, host, details.Room.ID)
	assert.ErrorIs(t, err, models.ErrInvariantViolation)

	after, err := f.app.GetRoom(f.ctx, details.Room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusOpen, after.Room.Status)
}

func TestLeavingPlayingRoomForfeits(t *testing.T) {
	f := newFixture(t)
	details, host := f.createRoom(t, 3)
	guest := f.join(t, details.Room.ID)
	_, err := f.app.SetReady(f.ctx, guest, details.Room.ID, true)
	require.NoError(t, err)

	f.games.On("StartSession", details.Room.ID, 2).Return(nil).Once()
	_, err = f.app.StartGame(f.ctx, host, details.Room.ID)
	require.NoError(t, err)

	f.games.On("Forfeit", details.Room.ID, guest).Return(nil).Once()
	res, err := f.app.LeaveRoom(f.ctx, guest, details.Room.ID)
	require.NoError(t, err)
	assert.False(t, res.RoomClosed)
	f.games.AssertExpectations(t)
}

func TestForceCloseIgnoresMissingRoom(t *testing.T) {
	f := newFixture(t)
	details, _ := f.createRoom(t, 2)
	f.games.On("StopSession", details.Room.ID).Return().Once()

	require.NoError(t, f.app.ForceClose(f.ctx, details.Room.ID, models.ErrInvariantViolation))
	require.NoError(t, f.app.ForceClose(f.ctx, details.Room.ID, models.ErrInvariantViolation))

	_, err := f.app.GetRoom(f.ctx, details.Room.ID)
	assert.ErrorIs(t, err, models.ErrRoomNotFound)
	f.games.AssertExpectations(t)
}

func TestBrokenCommitForceClosesRoom(t *testing.T) {
	f := newFixture(t)
	flaky := &flakyRepo{MemoryRepository: f.repo}
	f.app.repo = flaky
	details, _ := f.createRoom(t, 4)
	f.games.On("StopSession", details.Room.ID).Return().Once()

	flaky.failures = []error{fmt.Errorf("%w: duplicate seat 2/7", models.ErrInvariantViolation)}
	_, err := f.app.JoinRoom(f.ctx, JoinRoomRequest{Occupant: f.user(), RoomID: details.Room.ID})
	assert.ErrorIs(t, err, models.ErrInvariantViolation)

	_, err = f.app.GetRoom(f.ctx, details.Room.ID)
	assert.ErrorIs(t, err, models.ErrRoomNotFound)
	f.games.AssertExpectations(t)
}
