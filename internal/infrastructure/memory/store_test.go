package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"famledger/internal/models"
	"famledger/internal/shared/apperror"
	"famledger/internal/shared/dateutil"
)

func intPtr(v int) *int { return &v }

func seedAccount(t *testing.T, s *Store, params models.CreateAccountParams) *models.Account {
	t.Helper()
	a, err := s.Accounts().Create(context.Background(), params)
	require.NoError(t, err)
	return a
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedAccount(t, s, models.CreateAccountParams{
		ID: "acc-1", UserID: 1, Name: "Checking", Type: models.AccountTypeBank,
		Currency: "KRW", InitialBalance: decimal.NewFromInt(100),
	})

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context, repos models.Repositories) error {
		require.NoError(t, repos.Accounts().UpdateBalance(ctx, "acc-1", decimal.NewFromInt(5)))
		require.NoError(t, repos.Transactions().Create(ctx, &models.Transaction{ID: "txn-1", AccountID: "acc-1"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	a, err := s.Accounts().GetByID(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, a.CurrentBalance.Equal(decimal.NewFromInt(100)))

	_, err = s.Transactions().GetByID(ctx, "txn-1")
	assert.ErrorIs(t, err, models.ErrTransactionNotFound)
}

func TestWithinTx_CommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedAccount(t, s, models.CreateAccountParams{
		ID: "acc-1", UserID: 1, Name: "Checking", Type: models.AccountTypeBank, Currency: "KRW",
	})

	err := s.WithinTx(ctx, func(ctx context.Context, repos models.Repositories) error {
		return repos.Accounts().UpdateBalance(ctx, "acc-1", decimal.NewFromInt(42))
	})
	require.NoError(t, err)

	a, err := s.Accounts().GetByID(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, a.CurrentBalance.Equal(decimal.NewFromInt(42)))
}

func TestReturnedEntitiesAreCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	a := seedAccount(t, s, models.CreateAccountParams{
		ID: "acc-1", UserID: 1, Name: "Checking", Type: models.AccountTypeBank, Currency: "KRW",
	})
	a.CurrentBalance = decimal.NewFromInt(999)

	stored, err := s.Accounts().GetByID(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, stored.CurrentBalance.IsZero())
}

func TestRecurringUpdate_GuardsExpectedStatus(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	rt := &models.RecurringTransaction{ID: "rec-1", Status: models.RecurringStatusActive}
	require.NoError(t, s.Recurring().Create(ctx, rt))

	rt.Status = models.RecurringStatusPaused
	require.NoError(t, s.Recurring().Update(ctx, rt, models.RecurringStatusActive))

	rt.Status = models.RecurringStatusCancelled
	err := s.Recurring().Update(ctx, rt, models.RecurringStatusActive)
	require.ErrorIs(t, err, models.ErrStaleWrite)
	assert.True(t, apperror.IsConflict(err))
}

func TestRecurringListDue(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	today := dateutil.Date(2025, 6, 10)
	yesterday := dateutil.Date(2025, 6, 9)

	rules := []*models.RecurringTransaction{
		{ID: "due-today", Status: models.RecurringStatusActive, NextExecutionDate: today},
		{ID: "overdue", Status: models.RecurringStatusActive, NextExecutionDate: dateutil.Date(2025, 6, 1)},
		{ID: "future", Status: models.RecurringStatusActive, NextExecutionDate: dateutil.Date(2025, 6, 11)},
		{ID: "paused", Status: models.RecurringStatusPaused, NextExecutionDate: today},
		{ID: "ended", Status: models.RecurringStatusActive, NextExecutionDate: today, EndDate: &yesterday},
		{ID: "ends-today", Status: models.RecurringStatusActive, NextExecutionDate: today, EndDate: &today},
	}
	for _, rt := range rules {
		require.NoError(t, s.Recurring().Create(ctx, rt))
	}

	due, err := s.Recurring().ListDue(ctx, today)
	require.NoError(t, err)

	ids := make([]string, len(due))
	for i, rt := range due {
		ids[i] = rt.ID
	}
	assert.Equal(t, []string{"overdue", "due-today", "ends-today"}, ids)
}

func TestListCreditCardsBillingOn_ClampsToMonthEnd(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	for id, day := range map[string]int{"card-28": 28, "card-30": 30, "card-31": 31, "card-15": 15} {
		seedAccount(t, s, models.CreateAccountParams{
			ID: id, UserID: 1, Name: id, Type: models.AccountTypeCreditCard, Currency: "KRW",
			CreditLimit: decimal.NewNullDecimal(decimal.NewFromInt(1000)), BillingDay: intPtr(day),
		})
	}
	seedAccount(t, s, models.CreateAccountParams{
		ID: "bank", UserID: 1, Name: "bank", Type: models.AccountTypeBank, Currency: "KRW", BillingDay: intPtr(28),
	})

	cards, err := s.Accounts().ListCreditCardsBillingOn(ctx, dateutil.Date(2025, 2, 28))
	require.NoError(t, err)

	ids := []string{}
	for _, c := range cards {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"card-28", "card-30", "card-31"}, ids)

	cards, err = s.Accounts().ListCreditCardsBillingOn(ctx, dateutil.Date(2025, 3, 30))
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "card-30", cards[0].ID)
}

func TestPaymentPlans_OverdueAndUpcoming(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	plan := &models.PaymentPlan{
		ID: "plan-1", UserID: 7, TransactionID: "txn-1", Status: models.PlanStatusActive, Currency: "KRW",
		Payments: []*models.Payment{
			{ID: "p1", PlanID: "plan-1", PaymentNumber: 1, DueDate: dateutil.Date(2025, 5, 10), Status: models.PaymentStatusPending},
			{ID: "p2", PlanID: "plan-1", PaymentNumber: 2, DueDate: dateutil.Date(2025, 6, 10), Status: models.PaymentStatusPending},
			{ID: "p3", PlanID: "plan-1", PaymentNumber: 3, DueDate: dateutil.Date(2025, 7, 10), Status: models.PaymentStatusPending},
		},
	}
	require.NoError(t, s.PaymentPlans().Create(ctx, plan))

	err := s.PaymentPlans().Create(ctx, &models.PaymentPlan{ID: "plan-2", TransactionID: "txn-1"})
	assert.True(t, apperror.IsConflict(err))

	today := dateutil.Date(2025, 6, 10)
	n, err := s.PaymentPlans().MarkOverdue(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.PaymentPlans().MarkOverdue(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	upcoming, err := s.PaymentPlans().ListUpcoming(ctx, 7, today, dateutil.Date(2025, 7, 10))
	require.NoError(t, err)
	require.Len(t, upcoming, 2)
	assert.Equal(t, "p2", upcoming[0].ID)
	assert.Equal(t, "p3", upcoming[1].ID)
	assert.Equal(t, int64(7), upcoming[0].UserID)

	other, err := s.PaymentPlans().ListUpcoming(ctx, 8, today, dateutil.Date(2025, 7, 10))
	require.NoError(t, err)
	assert.Empty(t, other)

	stored, err := s.PaymentPlans().GetByID(ctx, "plan-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusOverdue, stored.Payment("p1").Status)
}

func TestPlanUpdate_KeepsPayments(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	plan := &models.PaymentPlan{
		ID: "plan-1", TransactionID: "txn-1", Status: models.PlanStatusActive,
		Payments: []*models.Payment{{ID: "p1", PlanID: "plan-1", PaymentNumber: 1, Status: models.PaymentStatusPending}},
	}
	require.NoError(t, s.PaymentPlans().Create(ctx, plan))

	update := &models.PaymentPlan{ID: "plan-1", TransactionID: "txn-1", Status: models.PlanStatusCancelled}
	require.NoError(t, s.PaymentPlans().Update(ctx, update, models.PlanStatusActive))

	stored, err := s.PaymentPlans().GetByID(ctx, "plan-1")
	require.NoError(t, err)
	assert.Equal(t, models.PlanStatusCancelled, stored.Status)
	assert.Len(t, stored.Payments, 1)

	err = s.PaymentPlans().Update(ctx, update, models.PlanStatusActive)
	assert.ErrorIs(t, err, models.ErrStaleWrite)
}
