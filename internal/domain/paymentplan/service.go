package paymentplan

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"famledger/internal/domain/amortization"
	"famledger/internal/models"
	"famledger/internal/shared/batch"
	"famledger/internal/shared/dateutil"
)

// Notifier receives payment reminders.
type Notifier interface {
	Notify(ctx context.Context, userID int64, kind string, payload map[string]string) error
}

// Service manages credit card payment plans
type Service struct {
	store    models.Store
	clock    dateutil.Clock
	notifier Notifier
	log      logrus.FieldLogger
}

// NewService creates a new payment plan service. notifier may be nil.
func NewService(store models.Store, clock dateutil.Clock, notifier Notifier, log logrus.FieldLogger) *Service {
	return &Service{store: store, clock: clock, notifier: notifier, log: log}
}

// Preview computes the schedule a request would produce without storing it.
func (s *Service) Preview(req PlanRequest, amount decimal.Decimal, start time.Time, billingDay int) (*amortization.Schedule, error) {
	return req.Schedule(amount, start, billingDay)
}

// Create attaches a plan to a credit card expense. The plan, its payments
// and the transaction back-reference are written in one unit of work.
func (s *Service) Create(ctx context.Context, transactionID string, req PlanRequest) (*models.PaymentPlan, error) {
	var plan *models.PaymentPlan
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos models.Repositories) error {
		txn, err := repos.Transactions().GetByIDForUpdate(ctx, transactionID)
		if err != nil {
			return err
		}
		if txn.Type != models.TransactionTypeExpense {
			return ErrNotExpense
		}
		if txn.PaymentPlanID != nil {
			return ErrAlreadyHasPlan
		}

		card, err := repos.Accounts().GetByID(ctx, txn.AccountID)
		if err != nil {
			return err
		}
		if !card.IsCreditCard() {
			return ErrNotCreditCard
		}
		if card.BillingDay == nil {
			return ErrNoBillingDay
		}

		schedule, err := req.Schedule(txn.Amount, txn.Date, *card.BillingDay)
		if err != nil {
			return err
		}

		plan = newPlan(uuid.NewString(), txn, schedule, uuid.NewString)
		if err := repos.PaymentPlans().Create(ctx, plan); err != nil {
			return fmt.Errorf("failed to create payment plan: %w", err)
		}

		txn.PaymentPlanID = &plan.ID
		txn.PaymentType = plan.PaymentType
		if err := repos.Transactions().Update(ctx, txn); err != nil {
			return fmt.Errorf("failed to link payment plan to transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"plan_id":        plan.ID,
		"transaction_id": transactionID,
		"payment_type":   plan.PaymentType,
		"payments":       len(plan.Payments),
	}).Info("Payment plan created")

	return plan, nil
}

// GetPlan retrieves a plan with its payments
func (s *Service) GetPlan(ctx context.Context, planID string) (*models.PaymentPlan, error) {
	return s.store.PaymentPlans().GetByID(ctx, planID)
}

// ListPlans lists a user's plans
func (s *Service) ListPlans(ctx context.Context, userID int64) ([]*models.PaymentPlan, error) {
	if userID <= 0 {
		return nil, ErrInvalidUser
	}
	return s.store.PaymentPlans().ListByUserID(ctx, userID)
}

// MarkPaymentPaid settles one payment. When no unpaid payment remains the
// plan completes and the transaction reverts to a one-time payment.
func (s *Service) MarkPaymentPaid(ctx context.Context, planID, paymentID string) (*models.PaymentPlan, error) {
	today := s.clock.Today()
	var plan *models.PaymentPlan
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos models.Repositories) error {
		var err error
		plan, err = repos.PaymentPlans().GetByIDForUpdate(ctx, planID)
		if err != nil {
			return err
		}
		if plan.Status != models.PlanStatusActive {
			return ErrPlanNotActive
		}
		payment := plan.Payment(paymentID)
		if payment == nil {
			return models.ErrPaymentNotFound
		}
		if payment.Status == models.PaymentStatusPaid {
			return ErrAlreadyPaid
		}

		payment.Status = models.PaymentStatusPaid
		payment.PaymentDate = &today
		if err := repos.PaymentPlans().UpdatePayment(ctx, payment); err != nil {
			return fmt.Errorf("failed to update payment: %w", err)
		}

		plan.CompletedInstallments++
		plan.RemainingAmount = payment.RemainingAfter
		if next := plan.NextOpenPayment(); next != nil {
			due := next.DueDate
			plan.NextPaymentDate = &due
		} else {
			plan.Status = models.PlanStatusCompleted
			plan.NextPaymentDate = nil
			if err := s.resetTransaction(ctx, repos, plan.TransactionID, false); err != nil {
				return err
			}
		}
		return repos.PaymentPlans().Update(ctx, plan, models.PlanStatusActive)
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// Cancel stops an ACTIVE plan and detaches it from its transaction. The
// payments stay as history.
func (s *Service) Cancel(ctx context.Context, planID string) (*models.PaymentPlan, error) {
	var plan *models.PaymentPlan
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos models.Repositories) error {
		var err error
		plan, err = repos.PaymentPlans().GetByIDForUpdate(ctx, planID)
		if err != nil {
			return err
		}
		switch plan.Status {
		case models.PlanStatusCompleted:
			return ErrPlanCompleted
		case models.PlanStatusCancelled:
			return ErrPlanCancelled
		}

		plan.Status = models.PlanStatusCancelled
		plan.NextPaymentDate = nil
		if err := s.resetTransaction(ctx, repos, plan.TransactionID, true); err != nil {
			return err
		}
		return repos.PaymentPlans().Update(ctx, plan, models.PlanStatusActive)
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *Service) resetTransaction(ctx context.Context, repos models.Repositories, transactionID string, detach bool) error {
	txn, err := repos.Transactions().GetByIDForUpdate(ctx, transactionID)
	if err != nil {
		return err
	}
	txn.PaymentType = models.PaymentTypeOneTime
	if detach {
		txn.PaymentPlanID = nil
	}
	if err := repos.Transactions().Update(ctx, txn); err != nil {
		return fmt.Errorf("failed to reset transaction payment type: %w", err)
	}
	return nil
}

// MarkOverdue flips every PENDING payment due before today to OVERDUE and
// returns how many changed. Running it again the same day changes nothing.
func (s *Service) MarkOverdue(ctx context.Context) (int, error) {
	return s.markOverdue(ctx, s.clock.Today())
}

func (s *Service) markOverdue(ctx context.Context, today time.Time) (int, error) {
	n, err := s.store.PaymentPlans().MarkOverdue(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("failed to mark overdue payments: %w", err)
	}
	return n, nil
}

// UpcomingPayments lists a user's PENDING payments due within days from today.
func (s *Service) UpcomingPayments(ctx context.Context, userID int64, days int) ([]*models.UpcomingPayment, error) {
	if userID <= 0 {
		return nil, ErrInvalidUser
	}
	return s.upcoming(ctx, userID, s.clock.Today(), days)
}

// DueSoon is UpcomingPayments across all users.
func (s *Service) DueSoon(ctx context.Context, days int) ([]*models.UpcomingPayment, error) {
	return s.upcoming(ctx, 0, s.clock.Today(), days)
}

func (s *Service) upcoming(ctx context.Context, userID int64, today time.Time, days int) ([]*models.UpcomingPayment, error) {
	if days < 0 {
		return nil, ErrInvalidDays
	}
	today = dateutil.Truncate(today)
	payments, err := s.store.PaymentPlans().ListUpcoming(ctx, userID, today, dateutil.AddDays(today, days))
	if err != nil {
		return nil, fmt.Errorf("failed to list upcoming payments: %w", err)
	}
	return payments, nil
}

// SendReminders marks payments overdue as of today and notifies the owner of
// every payment due within days of it. Each reminder is independent; delivery
// is at-least-once, so a rerun may repeat a reminder.
func (s *Service) SendReminders(ctx context.Context, today time.Time, days, concurrency int, observers ...batch.Observer) (*batch.Result, error) {
	today = dateutil.Truncate(today)
	overdue, err := s.markOverdue(ctx, today)
	if err != nil {
		return nil, err
	}
	if overdue > 0 {
		s.log.WithField("count", overdue).Info("Payments marked overdue")
	}

	due, err := s.upcoming(ctx, 0, today, days)
	if err != nil {
		return nil, err
	}
	if s.notifier == nil {
		return &batch.Result{Errors: []string{}}, nil
	}

	return batch.Run(ctx, due, concurrency,
		func(p *models.UpcomingPayment) string { return p.ID },
		func(ctx context.Context, p *models.UpcomingPayment) error {
			return s.notifier.Notify(ctx, p.UserID, KindPaymentDueSoon, reminderPayload(p, today))
		},
		observers...,
	), nil
}

func reminderPayload(p *models.UpcomingPayment, today time.Time) map[string]string {
	return map[string]string{
		"planId":        p.PlanID,
		"paymentId":     p.ID,
		"paymentNumber": strconv.Itoa(p.PaymentNumber),
		"amount":        p.TotalAmount.String(),
		"currency":      p.Currency,
		"dueDate":       p.DueDate.Format(dateutil.Layout),
		"daysLeft":      strconv.Itoa(int(p.DueDate.Sub(today).Hours() / 24)),
		"accountId":     p.AccountID,
	}
}
