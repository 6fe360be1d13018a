package repository

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

// Manager bundles the adapters sharing one *bun.DB so callers can wire the
// auth manager in a single step.
type Manager struct {
	db    *bun.DB
	users *Users
	rbac  *RBAC
	oauth *OAuth
}

func NewManager(db *bun.DB) *Manager {
	RegisterModels(db)
	users := NewUsers(db)
	return &Manager{
		db:    db,
		users: users,
		rbac:  NewRBAC(db),
		oauth: NewOAuth(db, users),
	}
}

func (m *Manager) Validate() error {
	if m.db == nil {
		return errors.New("repository manager requires a database")
	}
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}
	return nil
}

func (m *Manager) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m *Manager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m *Manager) Users() *Users { return m.users }
func (m *Manager) RBAC() *RBAC   { return m.rbac }
func (m *Manager) OAuth() *OAuth { return m.oauth }
