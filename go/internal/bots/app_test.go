package bots

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/pidr/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp() (*App, *MemoryRepository) {
	repo := NewMemoryRepository()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	return NewApp(repo, NewNamePool(1), clock), repo
}

func TestAcquireReusesFreeBotsBeforeMinting(t *testing.T) {
	ctx := context.Background()
	app, repo := newTestApp()

	var seeded []models.OccupantID
	for _, name := range []string{"Alpha", "Bravo", "Charlie"} {
		b, err := repo.Create(ctx, models.BotIdentity{DisplayName: name})
		require.NoError(t, err)
		seeded = append(seeded, b.ID)
	}

	room := uuid.New()
	var got []models.OccupantID
	for i := 0; i < 3; i++ {
		b, err := app.Acquire(ctx, room)
		require.NoError(t, err)
		require.NotNil(t, b.HomeRoomID)
		assert.Equal(t, room, *b.HomeRoomID)
		got = append(got, b.ID)
	}
	assert.ElementsMatch(t, seeded, got)

	minted, err := app.Acquire(ctx, room)
	require.NoError(t, err)
	assert.NotContains(t, seeded, minted.ID)
	assert.True(t, minted.ID.IsBot())
}

func TestMintedBotsLiveInTheReservedRange(t *testing.T) {
	ctx := context.Background()
	app, _ := newTestApp()

	a, err := app.Acquire(ctx, uuid.New())
	require.NoError(t, err)
	b, err := app.Acquire(ctx, uuid.New())
	require.NoError(t, err)

	assert.True(t, a.ID.IsBot())
	assert.True(t, b.ID.IsBot())
	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, a.DisplayName, b.DisplayName)
}

func TestReleaseOnlyFreesOwnedBots(t *testing.T) {
	ctx := context.Background()
	app, repo := newTestApp()
	owner, other := uuid.New(), uuid.New()

	b, err := app.Acquire(ctx, owner)
	require.NoError(t, err)

	require.NoError(t, app.Release(ctx, b.ID, other))
	stored, err := repo.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsFree(), "a foreign room cannot release the bot")

	require.NoError(t, app.Release(ctx, b.ID, owner))
	stored, err = repo.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsFree())

	again, err := app.Acquire(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, b.ID, again.ID, "released identity is reused")
}

func TestReleaseRoom(t *testing.T) {
	ctx := context.Background()
	app, repo := newTestApp()
	room, keep := uuid.New(), uuid.New()

	for i := 0; i < 3; i++ {
		_, err := app.Acquire(ctx, room)
		require.NoError(t, err)
	}
	kept, err := app.Acquire(ctx, keep)
	require.NoError(t, err)

	n, err := app.ReleaseRoom(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	free, err := repo.ListFree(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, free, 3)
	for _, b := range free {
		assert.NotEqual(t, kept.ID, b.ID)
	}
}

func TestConcurrentAcquireNeverDoubleBooks(t *testing.T) {
	ctx := context.Background()
	app, repo := newTestApp()

	for i := 0; i < 10; i++ {
		_, err := repo.Create(ctx, models.BotIdentity{DisplayName: uuid.NewString()})
		require.NoError(t, err)
	}

	const rooms = 16
	const perRoom = 3
	ids := make([]uuid.UUID, rooms)
	for i := range ids {
		ids[i] = uuid.New()
	}

	var mu sync.Mutex
	owners := make(map[models.OccupantID]uuid.UUID)
	var wg sync.WaitGroup
	for _, room := range ids {
		for j := 0; j < perRoom; j++ {
			wg.Add(1)
			go func(room uuid.UUID) {
				defer wg.Done()
				b, err := app.Acquire(ctx, room)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				defer mu.Unlock()
				prev, dup := owners[b.ID]
				assert.False(t, dup, "bot %d handed to %s and %s", b.ID, prev, room)
				owners[b.ID] = room
			}(room)
		}
	}
	wg.Wait()

	assert.Len(t, owners, rooms*perRoom)
	for id, room := range owners {
		stored, err := repo.Get(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, stored.HomeRoomID)
		assert.Equal(t, room, *stored.HomeRoomID)
	}
}

func TestNamePoolSuffixesAfterExhaustion(t *testing.T) {
	pool := NewNamePool(7)
	seen := make(map[string]bool)
	for i := 0; i < len(firstNames)*len(lastNames)+5; i++ {
		name, avatar := pool.Next()
		assert.False(t, seen[name], "duplicate name %q", name)
		assert.NotEmpty(t, avatar)
		seen[name] = true
	}
}

func TestRestartedNamePoolSkipsStoredNames(t *testing.T) {
	ctx := context.Background()
	before, repo := newTestApp()

	names := make(map[string]bool)
	for i := 0; i < 2*mintAttempts; i++ {
		b, err := before.Acquire(ctx, uuid.New())
		require.NoError(t, err)
		names[b.DisplayName] = true
	}

	// a new process starts its pool from the first name again
	clock := clockwork.NewFakeClock()
	after := NewApp(repo, NewNamePool(1), clock)
	b, err := after.Acquire(ctx, uuid.New())
	require.NoError(t, err, "a duplicate name resyncs the pool instead of exhausting the retries")
	assert.False(t, names[b.DisplayName], "reused name %q", b.DisplayName)

	synced := NewApp(repo, NewNamePool(1), clock)
	require.NoError(t, synced.SyncNames(ctx))
	name, _ := synced.names.Next()
	assert.False(t, names[name])
	assert.NotEqual(t, b.DisplayName, name)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2*mintAttempts+1, n)
}
