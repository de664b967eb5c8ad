package auth_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-auth-bridge"
)

func exerciseBlacklist(t *testing.T, blacklist auth.Blacklist, now time.Time) {
	t.Helper()
	ctx := context.Background()

	entry := auth.BlacklistEntry{
		JTI:       ulid.Make().String(),
		UserID:    uuid.New(),
		ExpiresAt: now.Add(time.Hour),
		RevokedAt: now,
	}

	found, err := blacklist.Contains(ctx, entry.JTI)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, blacklist.Add(ctx, entry))

	err = blacklist.Add(ctx, entry)
	assert.ErrorIs(t, err, auth.ErrRevoked, "second writer loses")

	found, err = blacklist.Contains(ctx, entry.JTI)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestBlacklistRepository(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	blacklist := auth.NewBlacklistRepository(openTestDB(t))

	exerciseBlacklist(t, blacklist, now)

	stale := auth.BlacklistEntry{
		JTI:       ulid.Make().String(),
		UserID:    uuid.New(),
		ExpiresAt: now.Add(-time.Minute),
		RevokedAt: now.Add(-time.Hour),
	}
	require.NoError(t, blacklist.Add(ctx, stale))

	n, err := blacklist.Purge(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	found, err := blacklist.Contains(ctx, stale.JTI)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisBlacklist(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	prefix := "test:blacklist:" + uuid.NewString() + ":"
	blacklist := auth.NewRedisBlacklist(client, auth.WithRedisBlacklistPrefix(prefix))

	exerciseBlacklist(t, blacklist, time.Now())

	n, err := blacklist.Purge(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRepositoryManager(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	clock := newTestClock()

	repos := auth.NewRepositoryManager(db, auth.WithRepositoryUsersOptions(auth.WithUsersClock(clock.Now)))
	require.NoError(t, repos.Validate())
	assert.NotPanics(t, repos.MustValidate)
	assert.IsType(t, &auth.BlacklistRepository{}, repos.Blacklist())

	user := seedUser(t, repos.Users(), "grace@example.com", "Grace", "Hopper", "")
	assert.True(t, user.CreatedAt.Equal(clock.Now()))

	memory := newMemoryBlacklist()
	custom := auth.NewRepositoryManager(db, auth.WithRepositoryBlacklist(memory))
	assert.Same(t, memory, custom.Blacklist())

	err := repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := repos.Users().CreateTx(ctx, tx, &auth.User{Email: "ada@example.com", FirstName: "Ada", LastName: "L", PasswordHash: "x"})
		return err
	})
	require.NoError(t, err)

	_, err = repos.Users().GetByEmail(ctx, "ada@example.com")
	assert.NoError(t, err)

	empty := auth.NewRepositoryManager(nil)
	assert.Error(t, empty.Validate())
	assert.Panics(t, empty.MustValidate)
}
