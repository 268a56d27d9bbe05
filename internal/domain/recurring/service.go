package recurring

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"famledger/internal/domain/ledger"
	"famledger/internal/models"
	"famledger/internal/shared/apperror"
	"famledger/internal/shared/batch"
	"famledger/internal/shared/dateutil"
)

// Notifier receives execution events.
type Notifier interface {
	Notify(ctx context.Context, userID int64, kind string, payload map[string]string) error
}

// Notification kinds emitted by the engine.
const (
	KindExecuted  = "recurring.executed"
	KindCompleted = "recurring.completed"
)

// Service owns the lifecycle of recurring transactions
type Service struct {
	store    models.Store
	ledger   *ledger.Service
	clock    dateutil.Clock
	notifier Notifier
	log      logrus.FieldLogger
}

// NewService creates a new recurring transaction service. notifier may be nil.
func NewService(store models.Store, ledgerService *ledger.Service, clock dateutil.Clock, notifier Notifier, log logrus.FieldLogger) *Service {
	return &Service{store: store, ledger: ledgerService, clock: clock, notifier: notifier, log: log}
}

// Create validates and stores a new ACTIVE rule whose first execution is
// its start date.
func (s *Service) Create(ctx context.Context, params CreateParams) (*models.RecurringTransaction, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	account, err := s.store.Accounts().GetByID(ctx, params.AccountID)
	if err != nil {
		return nil, err
	}
	if params.ToAccountID != nil {
		if _, err := s.store.Accounts().GetByID(ctx, *params.ToAccountID); err != nil {
			return nil, err
		}
	}
	if params.Currency == "" {
		params.Currency = account.Currency
	}

	start := dateutil.Truncate(params.StartDate)
	rt := &models.RecurringTransaction{
		ID:                uuid.NewString(),
		UserID:            params.UserID,
		AccountID:         params.AccountID,
		CategoryID:        params.CategoryID,
		Type:              params.Type,
		Amount:            params.Amount,
		Currency:          params.Currency,
		Description:       params.Description,
		Frequency:         params.Frequency,
		IntervalValue:     params.IntervalValue,
		DayOfWeek:         params.DayOfWeek,
		DayOfMonth:        params.DayOfMonth,
		StartDate:         start,
		NextExecutionDate: start,
		Status:            models.RecurringStatusActive,
		MaxExecutions:     params.MaxExecutions,
	}
	if params.Type == models.TransactionTypeTransfer {
		rt.ToAccountID = params.ToAccountID
		rt.ExchangeRate = params.ExchangeRate
	}
	if params.EndDate != nil {
		end := dateutil.Truncate(*params.EndDate)
		rt.EndDate = &end
	}

	if err := s.store.Recurring().Create(ctx, rt); err != nil {
		return nil, fmt.Errorf("failed to create recurring transaction: %w", err)
	}
	return rt, nil
}

// Get retrieves a recurring transaction by ID
func (s *Service) Get(ctx context.Context, id string) (*models.RecurringTransaction, error) {
	return s.store.Recurring().GetByID(ctx, id)
}

// ListByUser lists a user's recurring transactions ordered by next execution.
func (s *Service) ListByUser(ctx context.Context, userID int64) ([]*models.RecurringTransaction, error) {
	if userID <= 0 {
		return nil, ErrInvalidUser
	}
	return s.store.Recurring().ListByUserID(ctx, userID)
}

// Update changes the mutable fields of a non-terminal rule.
func (s *Service) Update(ctx context.Context, id string, params UpdateParams) (*models.RecurringTransaction, error) {
	return s.transition(ctx, id, func(rt *models.RecurringTransaction, _ time.Time) error {
		if rt.Status.IsTerminal() {
			return ErrIsTerminal
		}
		if err := params.apply(rt); err != nil {
			return err
		}
		settle(rt)
		return nil
	})
}

// Pause suspends an ACTIVE rule.
func (s *Service) Pause(ctx context.Context, id string) (*models.RecurringTransaction, error) {
	return s.transition(ctx, id, func(rt *models.RecurringTransaction, _ time.Time) error {
		if rt.Status != models.RecurringStatusActive {
			return ErrNotActive
		}
		rt.Status = models.RecurringStatusPaused
		return nil
	})
}

// Resume reactivates a PAUSED rule. Executions missed while paused are not
// replayed: a past cursor moves to today. A rule whose end date has passed
// completes instead.
func (s *Service) Resume(ctx context.Context, id string) (*models.RecurringTransaction, error) {
	return s.transition(ctx, id, func(rt *models.RecurringTransaction, today time.Time) error {
		if rt.Status != models.RecurringStatusPaused {
			return ErrNotPaused
		}
		if rt.NextExecutionDate.Before(today) {
			rt.NextExecutionDate = today
		}
		rt.Status = models.RecurringStatusActive
		settle(rt)
		return nil
	})
}

// Cancel terminates a rule that is not already terminal.
func (s *Service) Cancel(ctx context.Context, id string) (*models.RecurringTransaction, error) {
	return s.transition(ctx, id, func(rt *models.RecurringTransaction, _ time.Time) error {
		if rt.Status.IsTerminal() {
			return ErrIsTerminal
		}
		rt.Status = models.RecurringStatusCancelled
		return nil
	})
}

func (s *Service) transition(ctx context.Context, id string, mutate func(*models.RecurringTransaction, time.Time) error) (*models.RecurringTransaction, error) {
	today := s.clock.Today()
	var out *models.RecurringTransaction
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos models.Repositories) error {
		rt, err := repos.Recurring().GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		expected := rt.Status
		if err := mutate(rt, today); err != nil {
			return err
		}
		if err := repos.Recurring().Update(ctx, rt, expected); err != nil {
			return err
		}
		out = rt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FindDue returns the rules due on today.
func (s *Service) FindDue(ctx context.Context, today time.Time) ([]*models.RecurringTransaction, error) {
	due, err := s.store.Recurring().ListDue(ctx, dateutil.Truncate(today))
	if err != nil {
		return nil, fmt.Errorf("failed to list due recurring transactions: %w", err)
	}
	return due, nil
}

// Execute runs one due rule as of the clock's today.
func (s *Service) Execute(ctx context.Context, id string) (*models.Transaction, error) {
	return s.execute(ctx, id, s.clock.Today())
}

// execute materializes one occurrence and advances the cursor in a single
// unit of work. The rule is re-read under lock so a concurrent pause or
// cancel wins; an ineligible rule returns ErrNotDue without side effects.
func (s *Service) execute(ctx context.Context, id string, today time.Time) (*models.Transaction, error) {
	var (
		txn *models.Transaction
		rt  *models.RecurringTransaction
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos models.Repositories) error {
		var err error
		rt, err = repos.Recurring().GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !rt.IsDue(today) {
			return ErrNotDue
		}

		recurringID := rt.ID
		txn, err = s.ledger.Record(ctx, repos, models.CreateTransactionParams{
			UserID:       rt.UserID,
			AccountID:    rt.AccountID,
			ToAccountID:  rt.ToAccountID,
			ExchangeRate: rt.ExchangeRate,
			CategoryID:   rt.CategoryID,
			Type:         rt.Type,
			Amount:       rt.Amount,
			Currency:     rt.Currency,
			Date:         rt.NextExecutionDate,
			Description:  rt.Description,
			RecurringID:  &recurringID,
		})
		if err != nil {
			return err
		}

		expected := rt.Status
		Advance(rt)
		return repos.Recurring().Update(ctx, rt, expected)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"recurring_id":   rt.ID,
		"transaction_id": txn.ID,
		"execution":      rt.ExecutionCount,
		"next":           rt.NextExecutionDate.Format(dateutil.Layout),
		"status":         rt.Status,
	}).Info("Recurring transaction executed")

	if rt.IsDue(today) {
		s.log.WithFields(logrus.Fields{
			"recurring_id": rt.ID,
			"next":         rt.NextExecutionDate.Format(dateutil.Layout),
			"days_behind":  dateutil.DaysBetween(rt.NextExecutionDate, today),
		}).Warn("Recurring transaction is behind schedule; one occurrence runs per scheduler run")
	}

	s.notify(ctx, rt, txn)
	return txn, nil
}

// RunDue executes every rule due on today, each in its own unit of work.
// Only a failure to enumerate the due rules is returned as an error.
func (s *Service) RunDue(ctx context.Context, today time.Time, concurrency int, observers ...batch.Observer) (*batch.Result, error) {
	today = dateutil.Truncate(today)
	due, err := s.FindDue(ctx, today)
	if err != nil {
		return nil, err
	}

	result := batch.Run(ctx, due, concurrency,
		func(rt *models.RecurringTransaction) string { return rt.ID },
		func(ctx context.Context, rt *models.RecurringTransaction) error {
			_, err := s.execute(ctx, rt.ID, today)
			if apperror.IsConflict(err) || apperror.IsNotFound(err) {
				return batch.Skip(err.Error())
			}
			return err
		},
		observers...,
	)
	return result, nil
}

func (s *Service) notify(ctx context.Context, rt *models.RecurringTransaction, txn *models.Transaction) {
	if s.notifier == nil {
		return
	}
	kind := KindExecuted
	if rt.Status == models.RecurringStatusCompleted {
		kind = KindCompleted
	}
	payload := map[string]string{
		"recurringId":   rt.ID,
		"transactionId": txn.ID,
		"type":          string(txn.Type),
		"amount":        txn.Amount.String(),
		"currency":      txn.Currency,
		"date":          txn.Date.Format(dateutil.Layout),
		"description":   rt.Description,
	}
	if err := s.notifier.Notify(ctx, rt.UserID, kind, payload); err != nil {
		s.log.WithError(err).WithField("recurring_id", rt.ID).Warn("Failed to send recurring notification")
	}
}
