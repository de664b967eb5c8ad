package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	Validate() error
	MustValidate()
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
	Users() *UserRepository
	Blacklist() Blacklist
}

type RepositoryManagerOption func(*mngr)

// WithRepositoryBlacklist replaces the SQL blacklist, e.g. with a RedisBlacklist.
func WithRepositoryBlacklist(blacklist Blacklist) RepositoryManagerOption {
	return func(m *mngr) {
		if blacklist != nil {
			m.blacklist = blacklist
		}
	}
}

func WithRepositoryUsersOptions(opts ...UsersOption) RepositoryManagerOption {
	return func(m *mngr) {
		m.usersOpts = append(m.usersOpts, opts...)
	}
}

type mngr struct {
	db        *bun.DB
	users     *UserRepository
	usersOpts []UsersOption
	blacklist Blacklist
}

func NewRepositoryManager(db *bun.DB, opts ...RepositoryManagerOption) RepositoryManager {
	m := &mngr{db: db}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	if db != nil {
		m.users = NewUsersRepository(db, m.usersOpts...)
		if m.blacklist == nil {
			m.blacklist = NewBlacklistRepository(db)
		}
	}
	return m
}

func (m *mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository manager requires a database")
	}

	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if v, ok := m.users.Repository.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}

	if m.blacklist == nil {
		return errors.New("repository blacklist should be initialized")
	}

	return nil
}

func (m *mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m *mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m *mngr) Users() *UserRepository {
	return m.users
}

func (m *mngr) Blacklist() Blacklist {
	return m.blacklist
}
