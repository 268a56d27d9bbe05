package models

import (
	"time"

	"github.com/shopspring/decimal"

	"famledger/internal/shared/apperror"
)

type Frequency string

const (
	FrequencyDaily   Frequency = "DAILY"
	FrequencyWeekly  Frequency = "WEEKLY"
	FrequencyMonthly Frequency = "MONTHLY"
	FrequencyYearly  Frequency = "YEARLY"
)

// IsValid checks the frequency against the known set.
func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	}
	return false
}

type RecurringStatus string

const (
	RecurringStatusActive    RecurringStatus = "ACTIVE"
	RecurringStatusPaused    RecurringStatus = "PAUSED"
	RecurringStatusCancelled RecurringStatus = "CANCELLED"
	RecurringStatusCompleted RecurringStatus = "COMPLETED"
)

// IsTerminal reports whether no further transitions are allowed.
func (s RecurringStatus) IsTerminal() bool {
	return s == RecurringStatusCancelled || s == RecurringStatusCompleted
}

var ErrRecurringNotFound = apperror.NotFound("recurring transaction not found")

// RecurringTransaction is a rule that periodically materializes a ledger
// transaction. NextExecutionDate is the cursor the scheduler selects on.
type RecurringTransaction struct {
	ID                string              `json:"id"`
	UserID            int64               `json:"userId"`
	AccountID         string              `json:"accountId"`
	ToAccountID       *string             `json:"toAccountId,omitempty"`
	ExchangeRate      decimal.NullDecimal `json:"exchangeRate"`
	CategoryID        *string             `json:"categoryId,omitempty"`
	Type              TransactionType     `json:"type"`
	Amount            decimal.Decimal     `json:"amount"`
	Currency          string              `json:"currency"`
	Description       string              `json:"description"`
	Frequency         Frequency           `json:"frequency"`
	IntervalValue     int                 `json:"intervalValue"`
	DayOfWeek         *int                `json:"dayOfWeek,omitempty"`
	DayOfMonth        *int                `json:"dayOfMonth,omitempty"`
	StartDate         time.Time           `json:"startDate"`
	EndDate           *time.Time          `json:"endDate,omitempty"`
	NextExecutionDate time.Time           `json:"nextExecutionDate"`
	LastExecutionDate *time.Time          `json:"lastExecutionDate,omitempty"`
	Status            RecurringStatus     `json:"status"`
	ExecutionCount    int                 `json:"executionCount"`
	MaxExecutions     *int                `json:"maxExecutions,omitempty"`
	CreatedAt         time.Time           `json:"createdAt"`
	UpdatedAt         time.Time           `json:"updatedAt"`
}

// IsDue reports whether the rule should fire on today.
func (r *RecurringTransaction) IsDue(today time.Time) bool {
	if r.Status != RecurringStatusActive {
		return false
	}
	if r.NextExecutionDate.After(today) {
		return false
	}
	return r.EndDate == nil || !r.EndDate.Before(today)
}

// Clone returns a deep copy.
func (r *RecurringTransaction) Clone() *RecurringTransaction {
	c := *r
	c.ToAccountID = clonePtr(r.ToAccountID)
	c.CategoryID = clonePtr(r.CategoryID)
	c.DayOfWeek = clonePtr(r.DayOfWeek)
	c.DayOfMonth = clonePtr(r.DayOfMonth)
	c.EndDate = clonePtr(r.EndDate)
	c.LastExecutionDate = clonePtr(r.LastExecutionDate)
	c.MaxExecutions = clonePtr(r.MaxExecutions)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
