package memory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"famledger/internal/models"
	"famledger/internal/shared/apperror"
)

type userRepo struct{ *repos }

func (r userRepo) Create(ctx context.Context, user *models.User) error {
	return r.with(ctx, func(s *snapshot) error {
		if user.ID == 0 {
			user.ID = s.nextUserID
		}
		if _, ok := s.users[user.ID]; ok {
			return apperror.Conflictf("user %d already exists", user.ID)
		}
		if user.ID >= s.nextUserID {
			s.nextUserID = user.ID + 1
		}
		user.CreatedAt = r.now()
		u := *user
		s.users[user.ID] = &u
		return nil
	})
}

func (r userRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var out *models.User
	err := r.with(ctx, func(s *snapshot) error {
		u, ok := s.users[id]
		if !ok {
			return models.ErrUserNotFound
		}
		c := *u
		out = &c
		return nil
	})
	return out, err
}

type accountRepo struct{ *repos }

func (r accountRepo) Create(ctx context.Context, params models.CreateAccountParams) (*models.Account, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	var out *models.Account
	err := r.with(ctx, func(s *snapshot) error {
		if _, ok := s.accounts[params.ID]; ok {
			return apperror.Conflictf("account %s already exists", params.ID)
		}
		now := r.now()
		a := &models.Account{
			ID:              params.ID,
			UserID:          params.UserID,
			Name:            params.Name,
			Type:            params.Type,
			Currency:        params.Currency,
			CurrentBalance:  params.InitialBalance,
			CreditLimit:     params.CreditLimit,
			BillingDay:      params.BillingDay,
			PaymentDueDay:   params.PaymentDueDay,
			LinkedAccountID: params.LinkedAccountID,
			Active:          true,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		s.accounts[a.ID] = a.Clone()
		out = a
		return nil
	})
	return out, err
}

func (r accountRepo) GetByID(ctx context.Context, id string) (*models.Account, error) {
	var out *models.Account
	err := r.with(ctx, func(s *snapshot) error {
		a, ok := s.accounts[id]
		if !ok {
			return models.ErrAccountNotFound
		}
		out = a.Clone()
		return nil
	})
	return out, err
}

// GetByIDForUpdate needs no extra locking: units of work are serialized.
func (r accountRepo) GetByIDForUpdate(ctx context.Context, id string) (*models.Account, error) {
	return r.GetByID(ctx, id)
}

func (r accountRepo) UpdateBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	return r.with(ctx, func(s *snapshot) error {
		a, ok := s.accounts[id]
		if !ok {
			return models.ErrAccountNotFound
		}
		a.CurrentBalance = balance
		a.UpdatedAt = r.now()
		return nil
	})
}

func (r accountRepo) ListByUserID(ctx context.Context, userID int64) ([]*models.Account, error) {
	return r.list(ctx, func(a *models.Account) bool { return a.UserID == userID })
}

func (r accountRepo) ListCreditCardsBillingOn(ctx context.Context, date time.Time) ([]*models.Account, error) {
	return r.list(ctx, func(a *models.Account) bool {
		return a.Active && a.IsCreditCard() && a.BillsOn(date)
	})
}

func (r accountRepo) list(ctx context.Context, match func(*models.Account) bool) ([]*models.Account, error) {
	out := []*models.Account{}
	err := r.with(ctx, func(s *snapshot) error {
		for _, a := range s.accounts {
			if match(a) {
				out = append(out, a.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

type transactionRepo struct{ *repos }

func (r transactionRepo) Create(ctx context.Context, txn *models.Transaction) error {
	return r.with(ctx, func(s *snapshot) error {
		if _, ok := s.transactions[txn.ID]; ok {
			return apperror.Conflictf("transaction %s already exists", txn.ID)
		}
		now := r.now()
		txn.CreatedAt, txn.UpdatedAt = now, now
		s.transactions[txn.ID] = txn.Clone()
		return nil
	})
}

func (r transactionRepo) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	var out *models.Transaction
	err := r.with(ctx, func(s *snapshot) error {
		t, ok := s.transactions[id]
		if !ok {
			return models.ErrTransactionNotFound
		}
		out = t.Clone()
		return nil
	})
	return out, err
}

func (r transactionRepo) GetByIDForUpdate(ctx context.Context, id string) (*models.Transaction, error) {
	return r.GetByID(ctx, id)
}

func (r transactionRepo) Update(ctx context.Context, txn *models.Transaction) error {
	return r.with(ctx, func(s *snapshot) error {
		if _, ok := s.transactions[txn.ID]; !ok {
			return models.ErrTransactionNotFound
		}
		txn.UpdatedAt = r.now()
		s.transactions[txn.ID] = txn.Clone()
		return nil
	})
}

func (r transactionRepo) Delete(ctx context.Context, id string) error {
	return r.with(ctx, func(s *snapshot) error {
		if _, ok := s.transactions[id]; !ok {
			return models.ErrTransactionNotFound
		}
		delete(s.transactions, id)
		return nil
	})
}

func (r transactionRepo) ListByRecurringID(ctx context.Context, recurringID string) ([]*models.Transaction, error) {
	out := []*models.Transaction{}
	err := r.with(ctx, func(s *snapshot) error {
		for _, t := range s.transactions {
			if t.RecurringID != nil && *t.RecurringID == recurringID {
				out = append(out, t.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

type recurringRepo struct{ *repos }

func (r recurringRepo) Create(ctx context.Context, rt *models.RecurringTransaction) error {
	return r.with(ctx, func(s *snapshot) error {
		if _, ok := s.recurring[rt.ID]; ok {
			return apperror.Conflictf("recurring transaction %s already exists", rt.ID)
		}
		now := r.now()
		rt.CreatedAt, rt.UpdatedAt = now, now
		s.recurring[rt.ID] = rt.Clone()
		return nil
	})
}

func (r recurringRepo) GetByID(ctx context.Context, id string) (*models.RecurringTransaction, error) {
	var out *models.RecurringTransaction
	err := r.with(ctx, func(s *snapshot) error {
		rt, ok := s.recurring[id]
		if !ok {
			return models.ErrRecurringNotFound
		}
		out = rt.Clone()
		return nil
	})
	return out, err
}

func (r recurringRepo) GetByIDForUpdate(ctx context.Context, id string) (*models.RecurringTransaction, error) {
	return r.GetByID(ctx, id)
}

func (r recurringRepo) Update(ctx context.Context, rt *models.RecurringTransaction, expected models.RecurringStatus) error {
	return r.with(ctx, func(s *snapshot) error {
		current, ok := s.recurring[rt.ID]
		if !ok {
			return models.ErrRecurringNotFound
		}
		if current.Status != expected {
			return models.ErrStaleWrite
		}
		rt.UpdatedAt = r.now()
		s.recurring[rt.ID] = rt.Clone()
		return nil
	})
}

func (r recurringRepo) ListDue(ctx context.Context, today time.Time) ([]*models.RecurringTransaction, error) {
	return r.list(ctx, func(rt *models.RecurringTransaction) bool { return rt.IsDue(today) })
}

func (r recurringRepo) ListByUserID(ctx context.Context, userID int64) ([]*models.RecurringTransaction, error) {
	return r.list(ctx, func(rt *models.RecurringTransaction) bool { return rt.UserID == userID })
}

func (r recurringRepo) list(ctx context.Context, match func(*models.RecurringTransaction) bool) ([]*models.RecurringTransaction, error) {
	out := []*models.RecurringTransaction{}
	err := r.with(ctx, func(s *snapshot) error {
		for _, rt := range s.recurring {
			if match(rt) {
				out = append(out, rt.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextExecutionDate.Equal(out[j].NextExecutionDate) {
			return out[i].NextExecutionDate.Before(out[j].NextExecutionDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

type planRepo struct{ *repos }

func (r planRepo) Create(ctx context.Context, plan *models.PaymentPlan) error {
	return r.with(ctx, func(s *snapshot) error {
		if _, ok := s.plans[plan.ID]; ok {
			return apperror.Conflictf("payment plan %s already exists", plan.ID)
		}
		for _, p := range s.plans {
			if p.TransactionID == plan.TransactionID && p.Status != models.PlanStatusCancelled {
				return apperror.Conflict("transaction already has a payment plan")
			}
		}
		now := r.now()
		plan.CreatedAt, plan.UpdatedAt = now, now
		s.plans[plan.ID] = plan.Clone()
		return nil
	})
}

func (r planRepo) GetByID(ctx context.Context, id string) (*models.PaymentPlan, error) {
	var out *models.PaymentPlan
	err := r.with(ctx, func(s *snapshot) error {
		p, ok := s.plans[id]
		if !ok {
			return models.ErrPaymentPlanNotFound
		}
		out = p.Clone()
		return nil
	})
	return out, err
}

func (r planRepo) GetByIDForUpdate(ctx context.Context, id string) (*models.PaymentPlan, error) {
	return r.GetByID(ctx, id)
}

func (r planRepo) Update(ctx context.Context, plan *models.PaymentPlan, expected models.PlanStatus) error {
	return r.with(ctx, func(s *snapshot) error {
		current, ok := s.plans[plan.ID]
		if !ok {
			return models.ErrPaymentPlanNotFound
		}
		if current.Status != expected {
			return models.ErrStaleWrite
		}
		plan.UpdatedAt = r.now()
		updated := plan.Clone()
		updated.Payments = current.Payments
		s.plans[plan.ID] = updated
		return nil
	})
}

func (r planRepo) UpdatePayment(ctx context.Context, payment *models.Payment) error {
	return r.with(ctx, func(s *snapshot) error {
		plan, ok := s.plans[payment.PlanID]
		if !ok {
			return models.ErrPaymentPlanNotFound
		}
		for i, p := range plan.Payments {
			if p.ID == payment.ID {
				plan.Payments[i] = payment.Clone()
				return nil
			}
		}
		return models.ErrPaymentNotFound
	})
}

func (r planRepo) ListByUserID(ctx context.Context, userID int64) ([]*models.PaymentPlan, error) {
	out := []*models.PaymentPlan{}
	err := r.with(ctx, func(s *snapshot) error {
		for _, p := range s.plans {
			if p.UserID == userID {
				out = append(out, p.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func (r planRepo) MarkOverdue(ctx context.Context, today time.Time) (int, error) {
	count := 0
	err := r.with(ctx, func(s *snapshot) error {
		for _, plan := range s.plans {
			for _, p := range plan.Payments {
				if p.Status == models.PaymentStatusPending && p.DueDate.Before(today) {
					p.Status = models.PaymentStatusOverdue
					count++
				}
			}
		}
		return nil
	})
	return count, err
}

func (r planRepo) ListUpcoming(ctx context.Context, userID int64, from, to time.Time) ([]*models.UpcomingPayment, error) {
	out := []*models.UpcomingPayment{}
	err := r.with(ctx, func(s *snapshot) error {
		for _, plan := range s.plans {
			if plan.Status != models.PlanStatusActive || (userID != 0 && plan.UserID != userID) {
				continue
			}
			for _, p := range plan.Payments {
				if p.Status != models.PaymentStatusPending || p.DueDate.Before(from) || p.DueDate.After(to) {
					continue
				}
				out = append(out, &models.UpcomingPayment{
					Payment:     *p.Clone(),
					UserID:      plan.UserID,
					AccountID:   plan.AccountID,
					Currency:    plan.Currency,
					PaymentType: plan.PaymentType,
				})
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		if out[i].PlanID != out[j].PlanID {
			return out[i].PlanID < out[j].PlanID
		}
		return out[i].PaymentNumber < out[j].PaymentNumber
	})
	return out, err
}
