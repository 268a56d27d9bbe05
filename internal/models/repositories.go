package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"famledger/internal/shared/apperror"
)

// ErrStaleWrite is returned by guarded updates when the stored status no
// longer matches the status the caller read.
var ErrStaleWrite = apperror.Conflict("record was modified concurrently")

// UserRepository defines data access for Users
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
}

// AccountRepository defines data access for Accounts
type AccountRepository interface {
	Create(ctx context.Context, params CreateAccountParams) (*Account, error)
	GetByID(ctx context.Context, id string) (*Account, error)
	// GetByIDForUpdate locks the account row until the unit of work ends.
	GetByIDForUpdate(ctx context.Context, id string) (*Account, error)
	UpdateBalance(ctx context.Context, id string, balance decimal.Decimal) error
	ListByUserID(ctx context.Context, userID int64) ([]*Account, error)
	// ListCreditCardsBillingOn returns active credit cards whose billing day
	// falls on date, including days past the month's end on its last day.
	ListCreditCardsBillingOn(ctx context.Context, date time.Time) ([]*Account, error)
}

// TransactionRepository defines data access for Transactions
type TransactionRepository interface {
	Create(ctx context.Context, txn *Transaction) error
	GetByID(ctx context.Context, id string) (*Transaction, error)
	GetByIDForUpdate(ctx context.Context, id string) (*Transaction, error)
	Update(ctx context.Context, txn *Transaction) error
	Delete(ctx context.Context, id string) error
	ListByRecurringID(ctx context.Context, recurringID string) ([]*Transaction, error)
}

// RecurringRepository defines data access for RecurringTransactions
type RecurringRepository interface {
	Create(ctx context.Context, r *RecurringTransaction) error
	GetByID(ctx context.Context, id string) (*RecurringTransaction, error)
	GetByIDForUpdate(ctx context.Context, id string) (*RecurringTransaction, error)
	// Update writes r only if the stored status still equals expected,
	// returning a conflict error otherwise.
	Update(ctx context.Context, r *RecurringTransaction, expected RecurringStatus) error
	ListDue(ctx context.Context, today time.Time) ([]*RecurringTransaction, error)
	ListByUserID(ctx context.Context, userID int64) ([]*RecurringTransaction, error)
}

// PaymentPlanRepository defines data access for PaymentPlans and their Payments
type PaymentPlanRepository interface {
	// Create inserts the plan together with its payments.
	Create(ctx context.Context, plan *PaymentPlan) error
	GetByID(ctx context.Context, id string) (*PaymentPlan, error)
	GetByIDForUpdate(ctx context.Context, id string) (*PaymentPlan, error)
	// Update writes the plan row only if the stored status still equals expected.
	Update(ctx context.Context, plan *PaymentPlan, expected PlanStatus) error
	UpdatePayment(ctx context.Context, payment *Payment) error
	ListByUserID(ctx context.Context, userID int64) ([]*PaymentPlan, error)
	// MarkOverdue flips PENDING payments due before today to OVERDUE.
	MarkOverdue(ctx context.Context, today time.Time) (int, error)
	// ListUpcoming returns PENDING payments of ACTIVE plans due in [from, to],
	// ordered by due date. A zero userID means all users.
	ListUpcoming(ctx context.Context, userID int64, from, to time.Time) ([]*UpcomingPayment, error)
}

// Repositories groups the repositories bound to one unit of work.
type Repositories interface {
	Users() UserRepository
	Accounts() AccountRepository
	Transactions() TransactionRepository
	Recurring() RecurringRepository
	PaymentPlans() PaymentPlanRepository
}

// UnitOfWork runs fn atomically. Repositories handed to fn see and write
// only through the unit of work; returning an error rolls everything back.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// Store is a persistence backend.
type Store interface {
	Repositories
	UnitOfWork
}
