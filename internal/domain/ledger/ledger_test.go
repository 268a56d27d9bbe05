package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"famledger/internal/infrastructure/memory"
	"famledger/internal/models"
	"famledger/internal/shared/apperror"
	"famledger/internal/shared/dateutil"
	"famledger/internal/shared/logging"
	"famledger/internal/shared/money"
)

// MockConverter is a mock implementation of Converter
type MockConverter struct {
	ConvertFunc func(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, decimal.Decimal, error)
}

func (m *MockConverter) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, decimal.Decimal, error) {
	if m.ConvertFunc != nil {
		return m.ConvertFunc(ctx, amount, from, to)
	}
	return amount, decimal.NewFromInt(1), nil
}

type fixture struct {
	store   *memory.Store
	service *Service
}

func newFixture(t *testing.T, fx Converter) *fixture {
	t.Helper()
	store := memory.NewStore()
	log := logging.Discard()
	f := &fixture{store: store, service: NewService(store, NewAccessor(log), fx, log)}

	f.account(t, "krw", "KRW", "1000000")
	f.account(t, "krw-2", "KRW", "0")
	f.account(t, "usd", "USD", "100")
	return f
}

func (f *fixture) account(t *testing.T, id, currency, balance string) {
	t.Helper()
	_, err := f.store.Accounts().Create(context.Background(), models.CreateAccountParams{
		ID: id, UserID: 1, Name: id, Type: models.AccountTypeBank, Currency: currency,
		InitialBalance: money.MustParse(balance),
	})
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	a, err := f.store.Accounts().GetByID(context.Background(), id)
	require.NoError(t, err)
	return a.CurrentBalance
}

func (f *fixture) assertBalance(t *testing.T, id, want string) {
	t.Helper()
	got := f.balance(t, id)
	assert.True(t, money.MustParse(want).Equal(got), "account %s: want %s, got %s", id, want, got)
}

func strPtr(s string) *string { return &s }

func TestDelta(t *testing.T) {
	amount := decimal.NewFromInt(100)
	tests := []struct {
		name string
		typ  models.TransactionType
		sign Sign
		want int64
	}{
		{"income applied", models.TransactionTypeIncome, Apply, 100},
		{"income reverted", models.TransactionTypeIncome, Revert, -100},
		{"expense applied", models.TransactionTypeExpense, Apply, -100},
		{"expense reverted", models.TransactionTypeExpense, Revert, 100},
		{"transfer debit applied", models.TransactionTypeTransfer, Apply, -100},
		{"transfer debit reverted", models.TransactionTypeTransfer, Revert, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, decimal.NewFromInt(tt.want).Equal(Delta(tt.typ, amount, tt.sign)))
		})
	}
}

func TestApplyEffect_Symmetry(t *testing.T) {
	ctx := context.Background()
	rate := decimal.NewNullDecimal(money.MustParse("0.00074"))

	tests := []struct {
		name string
		txn  *models.Transaction
	}{
		{"income", &models.Transaction{ID: "t1", AccountID: "krw", Type: models.TransactionTypeIncome, Amount: money.MustParse("12345.6789")}},
		{"expense", &models.Transaction{ID: "t2", AccountID: "krw", Type: models.TransactionTypeExpense, Amount: money.MustParse("999.0001")}},
		{"transfer", &models.Transaction{ID: "t3", AccountID: "krw", ToAccountID: strPtr("krw-2"), Type: models.TransactionTypeTransfer, Amount: money.MustParse("50000")}},
		{"cross-currency transfer", &models.Transaction{ID: "t4", AccountID: "krw", ToAccountID: strPtr("usd"), ExchangeRate: rate, Type: models.TransactionTypeTransfer, Amount: money.MustParse("135000")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			before := map[string]decimal.Decimal{}
			for _, id := range []string{"krw", "krw-2", "usd"} {
				before[id] = f.balance(t, id)
			}

			accessor := f.service.Accessor()
			require.NoError(t, f.store.WithinTx(ctx, func(ctx context.Context, repos models.Repositories) error {
				return accessor.ApplyTransaction(ctx, repos, tt.txn, Apply)
			}))
			assert.False(t, f.balance(t, "krw").Equal(before["krw"]))

			require.NoError(t, f.store.WithinTx(ctx, func(ctx context.Context, repos models.Repositories) error {
				return accessor.ApplyTransaction(ctx, repos, tt.txn, Revert)
			}))
			for id, want := range before {
				assert.True(t, want.Equal(f.balance(t, id)), "account %s not restored", id)
			}
		})
	}
}

func TestCreateTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("expense debits account", func(t *testing.T) {
		f := newFixture(t, nil)
		txn, err := f.service.CreateTransaction(ctx, models.CreateTransactionParams{
			AccountID: "krw", Type: models.TransactionTypeExpense, Amount: decimal.NewFromInt(250000),
			Date: dateutil.Date(2025, 3, 1),
		})
		require.NoError(t, err)
		assert.NotEmpty(t, txn.ID)
		assert.Equal(t, "KRW", txn.Currency)
		assert.Equal(t, int64(1), txn.UserID)
		assert.Equal(t, models.PaymentTypeOneTime, txn.PaymentType)
		f.assertBalance(t, "krw", "750000")
	})

	t.Run("transfer credits destination", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.service.CreateTransaction(ctx, models.CreateTransactionParams{
			AccountID: "krw", ToAccountID: strPtr("krw-2"), Type: models.TransactionTypeTransfer,
			Amount: decimal.NewFromInt(300000), Date: dateutil.Date(2025, 3, 1),
		})
		require.NoError(t, err)
		f.assertBalance(t, "krw", "700000")
		f.assertBalance(t, "krw-2", "300000")
	})

	t.Run("cross-currency transfer resolves and stores rate", func(t *testing.T) {
		calls := 0
		f := newFixture(t, &MockConverter{
			ConvertFunc: func(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, decimal.Decimal, error) {
				calls++
				assert.Equal(t, "KRW", from)
				assert.Equal(t, "USD", to)
				rate := money.MustParse("0.0007")
				return amount.Mul(rate), rate, nil
			},
		})
		txn, err := f.service.CreateTransaction(ctx, models.CreateTransactionParams{
			AccountID: "krw", ToAccountID: strPtr("usd"), Type: models.TransactionTypeTransfer,
			Amount: decimal.NewFromInt(100000), Date: dateutil.Date(2025, 3, 1),
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
		require.True(t, txn.ExchangeRate.Valid)
		f.assertBalance(t, "usd", "170")

		require.NoError(t, f.service.DeleteTransaction(ctx, txn.ID))
		f.assertBalance(t, "usd", "100")
		f.assertBalance(t, "krw", "1000000")
	})

	t.Run("cross-currency transfer without converter", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.service.CreateTransaction(ctx, models.CreateTransactionParams{
			AccountID: "krw", ToAccountID: strPtr("usd"), Type: models.TransactionTypeTransfer,
			Amount: decimal.NewFromInt(100000), Date: dateutil.Date(2025, 3, 1),
		})
		require.Error(t, err)
		assert.True(t, apperror.IsValidation(err))
		f.assertBalance(t, "krw", "1000000")
	})

	t.Run("converter failure leaves balances untouched", func(t *testing.T) {
		f := newFixture(t, &MockConverter{
			ConvertFunc: func(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, decimal.Decimal, error) {
				return decimal.Zero, decimal.Zero, errors.New("rate service down")
			},
		})
		_, err := f.service.CreateTransaction(ctx, models.CreateTransactionParams{
			AccountID: "krw", ToAccountID: strPtr("usd"), Type: models.TransactionTypeTransfer,
			Amount: decimal.NewFromInt(100000), Date: dateutil.Date(2025, 3, 1),
		})
		require.Error(t, err)
		f.assertBalance(t, "krw", "1000000")
		f.assertBalance(t, "usd", "100")
	})

	t.Run("missing destination rolls back", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.service.CreateTransaction(ctx, models.CreateTransactionParams{
			AccountID: "krw", ToAccountID: strPtr("nope"), Type: models.TransactionTypeTransfer,
			Amount: decimal.NewFromInt(1), Date: dateutil.Date(2025, 3, 1),
		})
		require.Error(t, err)
		assert.True(t, apperror.IsNotFound(err))
		f.assertBalance(t, "krw", "1000000")
	})

	t.Run("validation", func(t *testing.T) {
		f := newFixture(t, nil)
		for _, params := range []models.CreateTransactionParams{
			{AccountID: "krw", Type: models.TransactionTypeExpense, Amount: decimal.Zero, Date: dateutil.Date(2025, 3, 1)},
			{AccountID: "krw", Type: "GIFT", Amount: decimal.NewFromInt(1), Date: dateutil.Date(2025, 3, 1)},
			{AccountID: "krw", Type: models.TransactionTypeTransfer, Amount: decimal.NewFromInt(1), Date: dateutil.Date(2025, 3, 1)},
			{AccountID: "krw", ToAccountID: strPtr("krw"), Type: models.TransactionTypeTransfer, Amount: decimal.NewFromInt(1), Date: dateutil.Date(2025, 3, 1)},
			{AccountID: "krw", Type: models.TransactionTypeIncome, Amount: decimal.NewFromInt(1)},
		} {
			_, err := f.service.CreateTransaction(ctx, params)
			require.Error(t, err)
			assert.True(t, apperror.IsValidation(err), "%+v", params)
		}
		f.assertBalance(t, "krw", "1000000")
	})
}

func TestUpdateTransaction_RevertsThenApplies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	txn, err := f.service.CreateTransaction(ctx, models.CreateTransactionParams{
		AccountID: "krw", Type: models.TransactionTypeExpense, Amount: decimal.NewFromInt(100000),
		Date: dateutil.Date(2025, 3, 1),
	})
	require.NoError(t, err)
	f.assertBalance(t, "krw", "900000")

	amount := decimal.NewFromInt(40000)
	typ := models.TransactionTypeIncome
	updated, err := f.service.UpdateTransaction(ctx, txn.ID, models.UpdateTransactionParams{Amount: &amount, Type: &typ})
	require.NoError(t, err)
	assert.Equal(t, models.TransactionTypeIncome, updated.Type)
	f.assertBalance(t, "krw", "1040000")

	account := "krw-2"
	_, err = f.service.UpdateTransaction(ctx, txn.ID, models.UpdateTransactionParams{AccountID: &account})
	require.NoError(t, err)
	f.assertBalance(t, "krw", "1000000")
	f.assertBalance(t, "krw-2", "40000")

	negative := decimal.NewFromInt(-1)
	_, err = f.service.UpdateTransaction(ctx, txn.ID, models.UpdateTransactionParams{Amount: &negative})
	assert.True(t, apperror.IsValidation(err))
	f.assertBalance(t, "krw-2", "40000")

	_, err = f.service.UpdateTransaction(ctx, "missing", models.UpdateTransactionParams{Amount: &amount})
	assert.True(t, apperror.IsNotFound(err))
}

func TestDeleteTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("restores balance", func(t *testing.T) {
		f := newFixture(t, nil)
		txn, err := f.service.CreateTransaction(ctx, models.CreateTransactionParams{
			AccountID: "krw", Type: models.TransactionTypeIncome, Amount: decimal.NewFromInt(5),
			Date: dateutil.Date(2025, 3, 1),
		})
		require.NoError(t, err)
		require.NoError(t, f.service.DeleteTransaction(ctx, txn.ID))
		f.assertBalance(t, "krw", "1000000")

		_, err = f.service.GetTransaction(ctx, txn.ID)
		assert.True(t, apperror.IsNotFound(err))
	})

	t.Run("blocked by active payment plan", func(t *testing.T) {
		f := newFixture(t, nil)
		txn, err := f.service.CreateTransaction(ctx, models.CreateTransactionParams{
			AccountID: "krw", Type: models.TransactionTypeExpense, Amount: decimal.NewFromInt(5),
			Date: dateutil.Date(2025, 3, 1),
		})
		require.NoError(t, err)

		plan := &models.PaymentPlan{ID: "plan-1", TransactionID: txn.ID, Status: models.PlanStatusActive}
		require.NoError(t, f.store.PaymentPlans().Create(ctx, plan))
		txn.PaymentPlanID = &plan.ID
		require.NoError(t, f.store.Transactions().Update(ctx, txn))

		err = f.service.DeleteTransaction(ctx, txn.ID)
		require.Error(t, err)
		assert.True(t, apperror.IsConflict(err))
		f.assertBalance(t, "krw", "999995")

		amount := decimal.NewFromInt(10)
		_, err = f.service.UpdateTransaction(ctx, txn.ID, models.UpdateTransactionParams{Amount: &amount})
		assert.True(t, apperror.IsConflict(err))

		plan.Status = models.PlanStatusCancelled
		require.NoError(t, f.store.PaymentPlans().Update(ctx, plan, models.PlanStatusActive))
		require.NoError(t, f.service.DeleteTransaction(ctx, txn.ID))
		f.assertBalance(t, "krw", "1000000")
	})
}

func TestLockAccounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	err := f.store.WithinTx(ctx, func(ctx context.Context, repos models.Repositories) error {
		locked, err := LockAccounts(ctx, repos, "usd", "krw", "usd")
		require.NoError(t, err)
		assert.Len(t, locked, 2)
		assert.Equal(t, "USD", locked["usd"].Currency)
		assert.Equal(t, "KRW", locked["krw"].Currency)

		_, err = LockAccounts(ctx, repos, "krw", "missing")
		assert.ErrorIs(t, err, models.ErrAccountNotFound)
		return nil
	})
	require.NoError(t, err)
}
