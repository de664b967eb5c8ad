package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
)

const pgUniqueViolation = "23505"

// UserRepository is the Users store. Plain CRUD goes through the generic
// bun repository, lifecycle changes through the user state machine.
type UserRepository struct {
	repository.Repository[*User]
	db                  *bun.DB
	now                 func() time.Time
	stateMachine        UserStateMachine
	stateMachineOptions []StateMachineOption
}

var _ Users = (*UserRepository)(nil)

type UsersOption func(*UserRepository)

// WithUsersClock injects the clock used for timestamps
func WithUsersClock(clock func() time.Time) UsersOption {
	return func(u *UserRepository) {
		if clock != nil {
			u.now = clock
		}
	}
}

func WithUsersStateMachineOptions(options ...StateMachineOption) UsersOption {
	return func(u *UserRepository) {
		if len(options) == 0 {
			return
		}
		u.stateMachineOptions = append(u.stateMachineOptions, options...)
		u.stateMachine = nil
	}
}

func WithUsersStateMachine(sm UserStateMachine) UsersOption {
	return func(u *UserRepository) {
		u.stateMachine = sm
	}
}

func NewUsersRepository(db *bun.DB, opts ...UsersOption) *UserRepository {
	base := repository.NewRepositoryWithConfig[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string { return "email" },
		GetIdentifierValue: func(u *User) string {
			if u == nil {
				return ""
			}
			return u.Email
		},
	}, nil)

	repo := &UserRepository{
		Repository: base,
		db:         db,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo
}

func (a *UserRepository) RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return a.db.RunInTx(ctx, nil, fn)
}

func (a *UserRepository) Create(ctx context.Context, user *User) (*User, error) {
	return a.CreateTx(ctx, a.db, user)
}

// CreateTx inserts user. The email is normalized and timestamps are set in
// UTC. A duplicate email yields ErrEmailTaken.
func (a *UserRepository) CreateTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	a.prepareUserDefaults(user)

	created, err := a.Repository.CreateTx(ctx, tx, user)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, deriveError(ErrEmailTaken, err, map[string]any{
				"email": user.Email,
			})
		}
		return nil, err
	}
	return created, nil
}

func (a *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.GetByIDTx(ctx, a.db, id)
}

func (a *UserRepository) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	record, err := a.Repository.GetByIDTx(ctx, tx, id.String())
	if err != nil {
		return nil, mapNotFound(err, "id", id.String())
	}
	return record, nil
}

// GetByEmail looks up by normalized email, soft deleted rows included.
func (a *UserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *UserRepository) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	email = NormalizeEmail(email)
	record, err := a.Repository.GetTx(ctx, tx, repository.SelectBy("email", "=", email))
	if err != nil {
		return nil, mapNotFound(err, "email", email)
	}
	return record, nil
}

// List returns users ordered by creation. Deleted users are excluded
// unless the filter asks for them.
func (a *UserRepository) List(ctx context.Context, filter UserFilter) ([]*User, error) {
	criteria := []repository.SelectCriteria{
		filterByStatus(filter),
		repository.SelectOrderAsc("created_at"),
	}
	if s := strings.ToLower(strings.TrimSpace(filter.Search)); s != "" {
		criteria = append(criteria, searchUsers(s))
	}
	if filter.Limit > 0 {
		criteria = append(criteria, repository.SelectPaginate(filter.Limit, 0))
	}

	records, _, err := a.Repository.List(ctx, criteria...)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func filterByStatus(filter UserFilter) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		switch {
		case filter.OnlyDeleted:
			return q.Where("?TableAlias.status = ?", UserStatusDeleted)
		case !filter.IncludeDeleted:
			return q.Where("?TableAlias.status <> ?", UserStatusDeleted)
		}
		return q
	}
}

func searchUsers(term string) repository.SelectCriteria {
	like := "%" + term + "%"
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("LOWER(?TableAlias.email) LIKE ?", like).
				WhereOr("LOWER(?TableAlias.first_name) LIKE ?", like).
				WhereOr("LOWER(?TableAlias.last_name) LIKE ?", like).
				WhereOr("?TableAlias.phone LIKE ?", like)
		})
	}
}

// UpdateProfile persists first name, last name and phone.
func (a *UserRepository) UpdateProfile(ctx context.Context, user *User) (*User, error) {
	user.UpdatedAt = a.now().UTC()
	updated, err := a.Repository.Update(ctx, user, repository.UpdateColumns("first_name", "last_name", "phone", "updated_at"))
	if err != nil {
		return nil, mapNotFound(err, "id", user.ID.String())
	}
	return updated, nil
}

func (a *UserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	res, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("updated_at = ?", a.now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err == nil {
		err = repository.SQLExpectedCount(res, 1)
	}
	return mapNotFound(err, "id", id.String())
}

// UpdateStatus writes status, deleted_at and updated_at in a single
// statement so the pair never diverges.
func (a *UserRepository) UpdateStatus(ctx context.Context, user *User) (*User, error) {
	return a.UpdateStatusTx(ctx, a.db, user)
}

func (a *UserRepository) UpdateStatusTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = a.now().UTC()
	}
	updated, err := a.Repository.UpdateTx(ctx, tx, user, repository.UpdateColumns("status", "deleted_at", "updated_at"))
	if err != nil {
		return nil, mapNotFound(err, "id", user.ID.String())
	}
	return updated, nil
}

func (a *UserRepository) TrackSuccessfulLogin(ctx context.Context, user *User) error {
	now := a.now().UTC()
	_, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("last_login_at = ?", now).
		Where("id = ?", user.ID).
		Exec(ctx)
	if err != nil {
		return err
	}
	user.LastLoginAt = &now
	return nil
}

func (a *UserRepository) SoftDelete(ctx context.Context, actor ActorRef, user *User, opts ...TransitionOption) (*User, error) {
	return a.lifecycleMachine().Transition(ctx, actor, user, UserStatusDeleted, opts...)
}

func (a *UserRepository) Restore(ctx context.Context, actor ActorRef, user *User, opts ...TransitionOption) (*User, error) {
	if !user.IsDeleted() {
		return nil, deriveError(ErrInvalidTransition, nil, map[string]any{
			"from": user.Status,
			"to":   UserStatusActive,
		})
	}
	return a.lifecycleMachine().Transition(ctx, actor, user, UserStatusActive, opts...)
}

func (a *UserRepository) Disable(ctx context.Context, actor ActorRef, user *User, opts ...TransitionOption) (*User, error) {
	return a.lifecycleMachine().Transition(ctx, actor, user, UserStatusDisabled, opts...)
}

func (a *UserRepository) Enable(ctx context.Context, actor ActorRef, user *User, opts ...TransitionOption) (*User, error) {
	if user.Status != UserStatusDisabled {
		return nil, deriveError(ErrInvalidTransition, nil, map[string]any{
			"from": user.Status,
			"to":   UserStatusActive,
		})
	}
	return a.lifecycleMachine().Transition(ctx, actor, user, UserStatusActive, opts...)
}

func (a *UserRepository) lifecycleMachine() UserStateMachine {
	if a.stateMachine == nil {
		opts := append([]StateMachineOption{WithStateMachineClock(a.now)}, a.stateMachineOptions...)
		a.stateMachine = NewUserStateMachine(a, opts...)
	}
	return a.stateMachine
}

func (a *UserRepository) prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	record.Email = NormalizeEmail(record.Email)
	record.EnsureStatus()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	now := a.now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}
}

// IsUniqueViolation reports whether err is a unique constraint failure
// from Postgres or SQLite.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.IsCategory(err, repository.CategoryDatabaseDuplicate) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(goerrors.RootCause(err).Error(), "UNIQUE constraint failed")
}

// mapNotFound turns missing rows and zero row updates into ErrNotFound.
func mapNotFound(err error, key, value string) error {
	if err == nil {
		return nil
	}
	if repository.IsRecordNotFound(err) || repository.IsSQLExpectedCountViolation(err) {
		return deriveError(ErrNotFound, err, map[string]any{key: value})
	}
	return err
}
