package auth

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
)

// BlacklistRepository stores revoked refresh tokens in the token_blacklist
// table. The jti primary key arbitrates concurrent rotation.
type BlacklistRepository struct {
	db bun.IDB
}

var _ Blacklist = (*BlacklistRepository)(nil)

func NewBlacklistRepository(db bun.IDB) *BlacklistRepository {
	return &BlacklistRepository{db: db}
}

func (b *BlacklistRepository) Add(ctx context.Context, entry BlacklistEntry) error {
	entry.ExpiresAt = entry.ExpiresAt.UTC()
	entry.RevokedAt = entry.RevokedAt.UTC()

	if _, err := b.db.NewInsert().Model(&entry).Exec(ctx); err != nil {
		if IsUniqueViolation(err) {
			return deriveError(ErrRevoked, err, map[string]any{"jti": entry.JTI})
		}
		return err
	}
	return nil
}

func (b *BlacklistRepository) Contains(ctx context.Context, jti string) (bool, error) {
	return b.db.NewSelect().
		Model((*BlacklistEntry)(nil)).
		Where("jti = ?", jti).
		Exists(ctx)
}

func (b *BlacklistRepository) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := b.db.NewDelete().
		Model((*BlacklistEntry)(nil)).
		Where("expires_at < ?", before.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const redisBlacklistPrefix = "auth:blacklist:"

// RedisBlacklist keeps revoked jtis as keys that expire with the token.
type RedisBlacklist struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ Blacklist = (*RedisBlacklist)(nil)

type RedisBlacklistOption func(*RedisBlacklist)

func WithRedisBlacklistPrefix(prefix string) RedisBlacklistOption {
	return func(r *RedisBlacklist) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

func WithRedisBlacklistClock(clock func() time.Time) RedisBlacklistOption {
	return func(r *RedisBlacklist) {
		if clock != nil {
			r.now = clock
		}
	}
}

func NewRedisBlacklist(client redis.UniversalClient, opts ...RedisBlacklistOption) *RedisBlacklist {
	r := &RedisBlacklist{
		client: client,
		prefix: redisBlacklistPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *RedisBlacklist) key(jti string) string {
	return r.prefix + jti
}

// Add uses SETNX so only the first writer claims the jti.
func (r *RedisBlacklist) Add(ctx context.Context, entry BlacklistEntry) error {
	ttl := entry.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		ttl = time.Second
	}

	ok, err := r.client.SetNX(ctx, r.key(entry.JTI), entry.UserID.String(), ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return deriveError(ErrRevoked, nil, map[string]any{"jti": entry.JTI})
	}
	return nil
}

func (r *RedisBlacklist) Contains(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(jti)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}
	return n > 0, nil
}

// Purge is a no-op, keys carry their own TTL.
func (r *RedisBlacklist) Purge(context.Context, time.Time) (int64, error) {
	return 0, nil
}
