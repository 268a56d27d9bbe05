// Package memory is an in-process models.Store. A unit of work runs against
// a private copy of the data under the store lock and replaces the live
// data only when it succeeds, so a failed unit leaves nothing behind.
package memory

import (
	"context"
	"sync"
	"time"

	"famledger/internal/models"
)

type snapshot struct {
	nextUserID   int64
	users        map[int64]*models.User
	accounts     map[string]*models.Account
	transactions map[string]*models.Transaction
	recurring    map[string]*models.RecurringTransaction
	plans        map[string]*models.PaymentPlan
}

func newSnapshot() *snapshot {
	return &snapshot{
		nextUserID:   1,
		users:        map[int64]*models.User{},
		accounts:     map[string]*models.Account{},
		transactions: map[string]*models.Transaction{},
		recurring:    map[string]*models.RecurringTransaction{},
		plans:        map[string]*models.PaymentPlan{},
	}
}

func (s *snapshot) clone() *snapshot {
	c := newSnapshot()
	c.nextUserID = s.nextUserID
	for k, v := range s.users {
		u := *v
		c.users[k] = &u
	}
	for k, v := range s.accounts {
		c.accounts[k] = v.Clone()
	}
	for k, v := range s.transactions {
		c.transactions[k] = v.Clone()
	}
	for k, v := range s.recurring {
		c.recurring[k] = v.Clone()
	}
	for k, v := range s.plans {
		c.plans[k] = v.Clone()
	}
	return c
}

// Store is safe for concurrent use. Units of work are serialized, which
// also serializes every balance update.
type Store struct {
	mu   sync.Mutex
	data *snapshot
	now  func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		data: newSnapshot(),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// WithinTx implements models.UnitOfWork. fn must only use the repositories
// it is given; calling the store's own repositories from fn deadlocks.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos models.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(ctx, &repos{store: s, snap: work}); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (s *Store) Users() models.UserRepository               { return userRepo{s.autocommit()} }
func (s *Store) Accounts() models.AccountRepository         { return accountRepo{s.autocommit()} }
func (s *Store) Transactions() models.TransactionRepository { return transactionRepo{s.autocommit()} }
func (s *Store) Recurring() models.RecurringRepository      { return recurringRepo{s.autocommit()} }
func (s *Store) PaymentPlans() models.PaymentPlanRepository { return planRepo{s.autocommit()} }

func (s *Store) autocommit() *repos {
	return &repos{store: s}
}

// repos binds repositories either to a unit of work snapshot or, when snap
// is nil, to the live data under the store lock.
type repos struct {
	store *Store
	snap  *snapshot
}

func (r *repos) Users() models.UserRepository               { return userRepo{r} }
func (r *repos) Accounts() models.AccountRepository         { return accountRepo{r} }
func (r *repos) Transactions() models.TransactionRepository { return transactionRepo{r} }
func (r *repos) Recurring() models.RecurringRepository      { return recurringRepo{r} }
func (r *repos) PaymentPlans() models.PaymentPlanRepository { return planRepo{r} }

func (r *repos) with(ctx context.Context, fn func(*snapshot) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.snap != nil {
		return fn(r.snap)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return fn(r.store.data)
}

func (r *repos) now() time.Time {
	return r.store.now()
}
