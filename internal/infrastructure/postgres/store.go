package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"famledger/internal/models"
)

//go:embed schema.sql
var schema string

// Migrate creates missing tables and indexes. It is idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Store implements models.Store on PostgreSQL. Repositories obtained from the
// Store itself run in autocommit mode; WithinTx binds them to one transaction.
type Store struct {
	repositories
	db *DB
}

var _ models.Store = (*Store)(nil)

func NewStore(db *DB) *Store {
	return &Store{repositories: repositories{q: db}, db: db}
}

// WithinTx runs fn in a READ COMMITTED transaction. Row locks taken with the
// ForUpdate getters are held until fn returns.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos models.Repositories) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			sqlTx.Rollback()
		}
	}()

	if err = fn(ctx, repositories{q: &Tx{sqlTx}}); err != nil {
		return err
	}

	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type repositories struct {
	q Querier
}

func (r repositories) Users() models.UserRepository {
	return NewUserRepository(r.q)
}

func (r repositories) Accounts() models.AccountRepository {
	return NewAccountRepository(r.q)
}

func (r repositories) Transactions() models.TransactionRepository {
	return NewTransactionRepository(r.q)
}

func (r repositories) Recurring() models.RecurringRepository {
	return NewRecurringRepository(r.q)
}

func (r repositories) PaymentPlans() models.PaymentPlanRepository {
	return NewPaymentPlanRepository(r.q)
}
