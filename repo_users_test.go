package auth_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	auth "github.com/goliatone/go-auth-bridge"
)

func seedUser(t *testing.T, repo *auth.UserRepository, email, first, last, phone string) *auth.User {
	t.Helper()
	user, err := repo.Create(context.Background(), &auth.User{
		Email:        email,
		FirstName:    first,
		LastName:     last,
		Phone:        phone,
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	return user
}

func TestUserRepositoryCreate(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	repo := auth.NewUsersRepository(openTestDB(t), auth.WithUsersClock(clock.Now))

	user := seedUser(t, repo, "  Grace@Example.com", "Grace", "Hopper", "")
	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.Equal(t, "grace@example.com", user.Email)
	assert.Equal(t, auth.UserStatusActive, user.Status)
	assert.True(t, user.CreatedAt.Equal(clock.Now()))

	_, err := repo.Create(ctx, &auth.User{Email: "GRACE@example.com", FirstName: "G", LastName: "H", PasswordHash: "x"})
	assert.ErrorIs(t, err, auth.ErrEmailTaken)
	assert.Equal(t, 409, auth.HTTPStatus(err))

	byID, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hopper", byID.LastName)
	assert.Empty(t, byID.Phone)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, auth.ErrNotFound)

	_, err = repo.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestUserRepositoryUpdates(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	repo := auth.NewUsersRepository(openTestDB(t), auth.WithUsersClock(clock.Now))
	user := seedUser(t, repo, "grace@example.com", "Grace", "Hopper", "")

	clock.Advance(time.Minute)
	require.NoError(t, repo.UpdatePassword(ctx, user.ID, "new-hash"))
	assert.ErrorIs(t, repo.UpdatePassword(ctx, uuid.New(), "x"), auth.ErrNotFound)

	user.FirstName = "Amazing"
	user.Phone = "+16502530000"
	_, err := repo.UpdateProfile(ctx, user)
	require.NoError(t, err)

	require.NoError(t, repo.TrackSuccessfulLogin(ctx, user))

	stored, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", stored.PasswordHash)
	assert.Equal(t, "Amazing", stored.FirstName)
	assert.Equal(t, "+16502530000", stored.Phone)
	require.NotNil(t, stored.LastLoginAt)
	assert.True(t, stored.UpdatedAt.Equal(clock.Now()))

	ghost := &auth.User{ID: uuid.New(), FirstName: "x", LastName: "y"}
	_, err = repo.UpdateProfile(ctx, ghost)
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestUserRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	sink := &capturingSink{}
	repo := auth.NewUsersRepository(openTestDB(t),
		auth.WithUsersClock(clock.Now),
		auth.WithUsersStateMachineOptions(auth.WithStateMachineActivitySink(sink)),
	)
	user := seedUser(t, repo, "grace@example.com", "Grace", "Hopper", "")
	actor := auth.ActorRef{ID: "admin", Type: "cli"}

	_, err := repo.Restore(ctx, actor, user)
	assert.ErrorIs(t, err, auth.ErrInvalidTransition, "only deleted users can be restored")
	_, err = repo.Enable(ctx, actor, user)
	assert.ErrorIs(t, err, auth.ErrInvalidTransition, "only disabled users can be enabled")

	clock.Advance(time.Hour)
	deleted, err := repo.SoftDelete(ctx, actor, user, auth.WithTransitionReason("offboarding"))
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted())

	stored, err := repo.GetByEmail(ctx, "grace@example.com")
	require.NoError(t, err, "lookups by email include deleted users")
	assert.Equal(t, auth.UserStatusDeleted, stored.Status)
	require.NotNil(t, stored.DeletedAt)
	assert.True(t, stored.DeletedAt.Equal(clock.Now()))

	_, err = repo.Disable(ctx, actor, stored)
	assert.ErrorIs(t, err, auth.ErrInvalidTransition)

	restored, err := repo.Restore(ctx, actor, stored)
	require.NoError(t, err)
	assert.True(t, restored.IsActive())

	stored, err = repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.DeletedAt)

	_, err = repo.Disable(ctx, actor, stored)
	require.NoError(t, err)
	_, err = repo.Enable(ctx, actor, stored)
	require.NoError(t, err)

	require.Len(t, sink.events, 4)
	assert.Equal(t, "offboarding", sink.events[0].Metadata["reason"])
	assert.Equal(t, auth.UserStatusDeleted, sink.events[0].ToStatus)
	assert.Equal(t, auth.UserStatusActive, sink.events[3].ToStatus)
}

func TestUserRepositoryList(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	repo := auth.NewUsersRepository(openTestDB(t), auth.WithUsersClock(clock.Now))

	seedUser(t, repo, "grace@example.com", "Grace", "Hopper", "+16502530000")
	clock.Advance(time.Second)
	seedUser(t, repo, "ada@example.com", "Ada", "Lovelace", "")
	clock.Advance(time.Second)
	alan := seedUser(t, repo, "alan@example.com", "Alan", "Turing", "")

	_, err := repo.SoftDelete(ctx, auth.ActorRef{}, alan)
	require.NoError(t, err)

	emails := func(users []*auth.User) []string {
		out := make([]string, 0, len(users))
		for _, u := range users {
			out = append(out, u.Email)
		}
		return out
	}

	cases := []struct {
		name   string
		filter auth.UserFilter
		want   []string
	}{
		{"default hides deleted", auth.UserFilter{}, []string{"grace@example.com", "ada@example.com"}},
		{"include deleted", auth.UserFilter{IncludeDeleted: true}, []string{"grace@example.com", "ada@example.com", "alan@example.com"}},
		{"only deleted", auth.UserFilter{OnlyDeleted: true}, []string{"alan@example.com"}},
		{"search last name", auth.UserFilter{Search: "LOVE"}, []string{"ada@example.com"}},
		{"search phone", auth.UserFilter{Search: "650253"}, []string{"grace@example.com"}},
		{"search skips deleted", auth.UserFilter{Search: "turing"}, []string{}},
		{"limit", auth.UserFilter{Limit: 1}, []string{"grace@example.com"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			users, err := repo.List(ctx, tc.filter)
			require.NoError(t, err)
			assert.Equal(t, tc.want, emails(users))
		})
	}
}

func TestUserRepositoryGenericOperations(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	repo := auth.NewUsersRepository(openTestDB(t), auth.WithUsersClock(clock.Now))

	const total = 30
	for i := range total {
		seedUser(t, repo, fmt.Sprintf("user%02d@example.com", i), "User", fmt.Sprintf("N%02d", i), "")
		clock.Advance(time.Second)
	}

	users, err := repo.List(ctx, auth.UserFilter{})
	require.NoError(t, err)
	assert.Len(t, users, total, "listing is not capped by a default page size")

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, total, n)

	byIdentifier, err := repo.GetByIdentifier(ctx, "user07@example.com")
	require.NoError(t, err)
	assert.Equal(t, "N07", byIdentifier.LastName)

	_, err = repo.GetByIdentifier(ctx, "nobody@example.com")
	assert.True(t, repository.IsRecordNotFound(err))
}

func TestUserRepositoryRunInTx(t *testing.T) {
	ctx := context.Background()
	repo := auth.NewUsersRepository(openTestDB(t))

	err := repo.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		_, err := repo.CreateTx(ctx, tx, &auth.User{Email: "rollback@example.com", FirstName: "R", LastName: "B", PasswordHash: "x"})
		require.NoError(t, err)
		return errors.New("abort")
	})
	assert.EqualError(t, err, "abort")

	_, err = repo.GetByEmail(ctx, "rollback@example.com")
	assert.ErrorIs(t, err, auth.ErrNotFound)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = repo.RunInTx(cancelled, func(context.Context, bun.Tx) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func newPostgresMock(t *testing.T) (*bun.DB, sqlmock.Sqlmock) {
	t.Helper()
	anyQuery := sqlmock.QueryMatcherFunc(func(string, string) error { return nil })
	sqldb, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(anyQuery))
	require.NoError(t, err)
	mock.MatchExpectationsInOrder(false)

	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestUserRepositoryPostgresUniqueViolation(t *testing.T) {
	db, mock := newPostgresMock(t)
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key", Message: "duplicate key value"}
	mock.ExpectExec("INSERT").WillReturnError(pgErr)
	mock.ExpectQuery("INSERT").WillReturnError(pgErr)

	repo := auth.NewUsersRepository(db)
	_, err := repo.Create(context.Background(), &auth.User{Email: "grace@example.com", FirstName: "G", LastName: "H", PasswordHash: "x"})

	assert.ErrorIs(t, err, auth.ErrEmailTaken)
	var got *pgconn.PgError
	assert.ErrorAs(t, err, &got)
}

func TestUserRepositoryPostgresNotFound(t *testing.T) {
	db, mock := newPostgresMock(t)
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id", "email"}))

	repo := auth.NewUsersRepository(db)
	_, err := repo.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, auth.ErrNotFound)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, auth.IsUniqueViolation(nil))
	assert.True(t, auth.IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, auth.IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.True(t, auth.IsUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: users.email (2067)")))
	assert.True(t, auth.IsUniqueViolation(goerrors.New("Duplicate key value violates unique constraint", repository.CategoryDatabaseDuplicate)))
	assert.True(t, auth.IsUniqueViolation(goerrors.Wrap(
		errors.New("constraint failed: UNIQUE constraint failed: users.email (2067)"),
		repository.CategoryDatabase, "Database operation failed",
	)), "the driver message is read from the root cause")
	assert.False(t, auth.IsUniqueViolation(errors.New("disk I/O error")))
}
