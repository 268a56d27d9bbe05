package recurring

import (
	"time"

	"github.com/shopspring/decimal"

	"famledger/internal/models"
	"famledger/internal/shared/apperror"
	"famledger/internal/shared/dateutil"
)

var (
	ErrNotDue      = apperror.Conflict("recurring transaction is not due")
	ErrNotActive   = apperror.Conflict("recurring transaction is not active")
	ErrNotPaused   = apperror.Conflict("recurring transaction is not paused")
	ErrIsTerminal  = apperror.Conflict("recurring transaction is already cancelled or completed")
	ErrInvalidUser = apperror.Validation("valid user ID is required")
)

// CreateParams contains parameters for creating a recurring transaction
type CreateParams struct {
	UserID        int64
	AccountID     string
	ToAccountID   *string
	ExchangeRate  decimal.NullDecimal
	CategoryID    *string
	Type          models.TransactionType
	Amount        decimal.Decimal
	Currency      string
	Description   string
	Frequency     models.Frequency
	IntervalValue int
	DayOfWeek     *int
	DayOfMonth    *int
	StartDate     time.Time
	EndDate       *time.Time
	MaxExecutions *int
}

// Validate validates the create parameters
func (p CreateParams) Validate() error {
	if p.UserID <= 0 {
		return ErrInvalidUser
	}
	if p.AccountID == "" {
		return apperror.Validation("account ID is required")
	}
	if !p.Type.IsValid() {
		return apperror.Validationf("invalid transaction type %q", p.Type)
	}
	if !p.Amount.IsPositive() {
		return apperror.Validation("amount must be positive")
	}
	if !p.Frequency.IsValid() {
		return apperror.Validationf("invalid frequency %q", p.Frequency)
	}
	if p.IntervalValue < 1 {
		return apperror.Validation("interval must be at least 1")
	}
	if p.DayOfWeek != nil && (*p.DayOfWeek < 1 || *p.DayOfWeek > 7) {
		return apperror.Validation("day of week must be between 1 and 7")
	}
	if p.DayOfMonth != nil && (*p.DayOfMonth < 1 || *p.DayOfMonth > 31) {
		return apperror.Validation("day of month must be between 1 and 31")
	}
	if p.StartDate.IsZero() {
		return apperror.Validation("start date is required")
	}
	if p.EndDate != nil && p.EndDate.Before(p.StartDate) {
		return apperror.Validation("end date must not be before the start date")
	}
	if p.MaxExecutions != nil && *p.MaxExecutions < 1 {
		return apperror.Validation("max executions must be at least 1")
	}
	if p.Type == models.TransactionTypeTransfer {
		if p.ToAccountID == nil || *p.ToAccountID == "" {
			return apperror.Validation("transfer requires a destination account")
		}
		if *p.ToAccountID == p.AccountID {
			return apperror.Validation("transfer destination must differ from the source account")
		}
	}
	if p.ExchangeRate.Valid && !p.ExchangeRate.Decimal.IsPositive() {
		return apperror.Validation("exchange rate must be positive")
	}
	return nil
}

// UpdateParams contains the fields of a rule that may change after creation.
// Schedule fields are fixed; cancel and recreate the rule to change them.
type UpdateParams struct {
	Amount        *decimal.Decimal
	Description   *string
	CategoryID    *string
	EndDate       *time.Time
	MaxExecutions *int
}

func (p UpdateParams) apply(rt *models.RecurringTransaction) error {
	if p.Amount != nil {
		if !p.Amount.IsPositive() {
			return apperror.Validation("amount must be positive")
		}
		rt.Amount = *p.Amount
	}
	if p.Description != nil {
		rt.Description = *p.Description
	}
	if p.CategoryID != nil {
		rt.CategoryID = p.CategoryID
	}
	if p.EndDate != nil {
		end := dateutil.Truncate(*p.EndDate)
		if end.Before(rt.StartDate) {
			return apperror.Validation("end date must not be before the start date")
		}
		rt.EndDate = &end
	}
	if p.MaxExecutions != nil {
		if *p.MaxExecutions < 1 {
			return apperror.Validation("max executions must be at least 1")
		}
		rt.MaxExecutions = p.MaxExecutions
	}
	return nil
}

// NextDate advances from by one period. MONTHLY clamps to the month length
// and, when dayOfMonth is set, re-anchors on min(dayOfMonth, month length)
// so a rule anchored on the 31st returns to it after a short month.
func NextDate(from time.Time, freq models.Frequency, interval int, dayOfMonth *int) time.Time {
	if interval < 1 {
		interval = 1
	}
	switch freq {
	case models.FrequencyDaily:
		return dateutil.AddDays(from, interval)
	case models.FrequencyWeekly:
		return dateutil.AddDays(from, 7*interval)
	case models.FrequencyYearly:
		return dateutil.AddYears(from, interval)
	default:
		next := dateutil.AddMonths(from, interval)
		if dayOfMonth != nil {
			next = dateutil.ClampDay(next.Year(), next.Month(), *dayOfMonth)
		}
		return next
	}
}

// Advance records one execution on rt: it moves the cursor and completes
// the rule when its limit or end date is reached.
func Advance(rt *models.RecurringTransaction) {
	executed := rt.NextExecutionDate
	rt.LastExecutionDate = &executed
	rt.ExecutionCount++
	rt.NextExecutionDate = NextDate(executed, rt.Frequency, rt.IntervalValue, rt.DayOfMonth)
	settle(rt)
}

// settle completes a non-terminal rule that can never fire again: its
// execution limit is reached or its cursor lies past the end date.
func settle(rt *models.RecurringTransaction) {
	if rt.Status.IsTerminal() {
		return
	}
	if rt.MaxExecutions != nil && rt.ExecutionCount >= *rt.MaxExecutions {
		rt.Status = models.RecurringStatusCompleted
		return
	}
	if rt.EndDate != nil && rt.NextExecutionDate.After(*rt.EndDate) {
		rt.Status = models.RecurringStatusCompleted
	}
}
