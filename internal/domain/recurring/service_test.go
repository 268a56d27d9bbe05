package recurring

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"famledger/internal/domain/ledger"
	"famledger/internal/infrastructure/memory"
	"famledger/internal/models"
	"famledger/internal/shared/apperror"
	"famledger/internal/shared/dateutil"
	"famledger/internal/shared/logging"
)

// MockNotifier records notifications
type MockNotifier struct {
	mu    sync.Mutex
	kinds []string
}

func (m *MockNotifier) Notify(ctx context.Context, userID int64, kind string, payload map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kinds = append(m.kinds, kind)
	return nil
}

type fixture struct {
	store    *memory.Store
	clock    *dateutil.FixedClock
	notifier *MockNotifier
	service  *Service
}

func newFixture(t *testing.T, today time.Time) *fixture {
	t.Helper()
	store := memory.NewStore()
	log := logging.Discard()
	clock := &dateutil.FixedClock{Date: today}
	notifier := &MockNotifier{}
	ledgerService := ledger.NewService(store, ledger.NewAccessor(log), nil, log)

	for id, currency := range map[string]string{"checking": "KRW", "savings": "KRW", "dollars": "USD"} {
		_, err := store.Accounts().Create(context.Background(), models.CreateAccountParams{
			ID: id, UserID: 1, Name: id, Type: models.AccountTypeBank, Currency: currency,
			InitialBalance: decimal.NewFromInt(1000000),
		})
		require.NoError(t, err)
	}

	return &fixture{
		store:    store,
		clock:    clock,
		notifier: notifier,
		service:  NewService(store, ledgerService, clock, notifier, log),
	}
}

func (f *fixture) balance(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	a, err := f.store.Accounts().GetByID(context.Background(), id)
	require.NoError(t, err)
	return a.CurrentBalance
}

func (f *fixture) create(t *testing.T, params CreateParams) *models.RecurringTransaction {
	t.Helper()
	rt, err := f.service.Create(context.Background(), params)
	require.NoError(t, err)
	return rt
}

func dailyExpense(start time.Time) CreateParams {
	return CreateParams{
		UserID:        1,
		AccountID:     "checking",
		Type:          models.TransactionTypeExpense,
		Amount:        decimal.NewFromInt(50000),
		Frequency:     models.FrequencyDaily,
		IntervalValue: 1,
		StartDate:     start,
		Description:   "Lunch",
	}
}

func intPtr(v int) *int { return &v }

func strPtr(s string) *string { return &s }

func TestNextDate(t *testing.T) {
	tests := []struct {
		name       string
		from       time.Time
		freq       models.Frequency
		interval   int
		dayOfMonth *int
		want       time.Time
	}{
		{"daily", dateutil.Date(2025, 12, 31), models.FrequencyDaily, 1, nil, dateutil.Date(2026, 1, 1)},
		{"every third day", dateutil.Date(2025, 2, 27), models.FrequencyDaily, 3, nil, dateutil.Date(2025, 3, 2)},
		{"biweekly", dateutil.Date(2025, 1, 1), models.FrequencyWeekly, 2, nil, dateutil.Date(2025, 1, 15)},
		{"monthly anchored 31 into february", dateutil.Date(2025, 1, 31), models.FrequencyMonthly, 1, intPtr(31), dateutil.Date(2025, 2, 28)},
		{"monthly anchored 31 into leap february", dateutil.Date(2024, 1, 31), models.FrequencyMonthly, 1, intPtr(31), dateutil.Date(2024, 2, 29)},
		{"monthly anchored 31 recovers in march", dateutil.Date(2025, 2, 28), models.FrequencyMonthly, 1, intPtr(31), dateutil.Date(2025, 3, 31)},
		{"monthly anchored 31 into april", dateutil.Date(2025, 3, 31), models.FrequencyMonthly, 1, intPtr(31), dateutil.Date(2025, 4, 30)},
		{"monthly without anchor drifts", dateutil.Date(2025, 2, 28), models.FrequencyMonthly, 1, nil, dateutil.Date(2025, 3, 28)},
		{"quarterly across year", dateutil.Date(2025, 11, 15), models.FrequencyMonthly, 3, nil, dateutil.Date(2026, 2, 15)},
		{"yearly", dateutil.Date(2025, 6, 1), models.FrequencyYearly, 1, nil, dateutil.Date(2026, 6, 1)},
		{"yearly from leap day", dateutil.Date(2024, 2, 29), models.FrequencyYearly, 1, nil, dateutil.Date(2025, 2, 28)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextDate(tt.from, tt.freq, tt.interval, tt.dayOfMonth))
		})
	}
}

func TestAdvance_Completion(t *testing.T) {
	end := dateutil.Date(2025, 1, 3)
	tests := []struct {
		name       string
		rt         models.RecurringTransaction
		wantStatus models.RecurringStatus
	}{
		{
			name:       "keeps running",
			rt:         models.RecurringTransaction{Frequency: models.FrequencyDaily, IntervalValue: 1, NextExecutionDate: dateutil.Date(2025, 1, 1), Status: models.RecurringStatusActive},
			wantStatus: models.RecurringStatusActive,
		},
		{
			name:       "max executions reached",
			rt:         models.RecurringTransaction{Frequency: models.FrequencyDaily, IntervalValue: 1, NextExecutionDate: dateutil.Date(2025, 1, 1), Status: models.RecurringStatusActive, ExecutionCount: 1, MaxExecutions: intPtr(2)},
			wantStatus: models.RecurringStatusCompleted,
		},
		{
			name:       "next date on end date",
			rt:         models.RecurringTransaction{Frequency: models.FrequencyDaily, IntervalValue: 1, NextExecutionDate: dateutil.Date(2025, 1, 2), Status: models.RecurringStatusActive, EndDate: &end},
			wantStatus: models.RecurringStatusActive,
		},
		{
			name:       "next date past end date",
			rt:         models.RecurringTransaction{Frequency: models.FrequencyDaily, IntervalValue: 1, NextExecutionDate: dateutil.Date(2025, 1, 3), Status: models.RecurringStatusActive, EndDate: &end},
			wantStatus: models.RecurringStatusCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := tt.rt
			executed := rt.NextExecutionDate
			count := rt.ExecutionCount
			Advance(&rt)
			assert.Equal(t, tt.wantStatus, rt.Status)
			assert.Equal(t, count+1, rt.ExecutionCount)
			require.NotNil(t, rt.LastExecutionDate)
			assert.Equal(t, executed, *rt.LastExecutionDate)
			assert.True(t, rt.NextExecutionDate.After(*rt.LastExecutionDate))
		})
	}
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, dateutil.Date(2025, 6, 1))

	rt := f.create(t, dailyExpense(dateutil.Date(2025, 6, 3)))
	assert.Equal(t, models.RecurringStatusActive, rt.Status)
	assert.Equal(t, dateutil.Date(2025, 6, 3), rt.NextExecutionDate)
	assert.Equal(t, "KRW", rt.Currency)
	assert.Zero(t, rt.ExecutionCount)

	invalid := []func(*CreateParams){
		func(p *CreateParams) { p.Amount = decimal.Zero },
		func(p *CreateParams) { p.IntervalValue = 0 },
		func(p *CreateParams) { p.Frequency = "HOURLY" },
		func(p *CreateParams) { p.DayOfMonth = intPtr(32) },
		func(p *CreateParams) { p.DayOfWeek = intPtr(0) },
		func(p *CreateParams) { end := p.StartDate.AddDate(0, 0, -1); p.EndDate = &end },
		func(p *CreateParams) { p.MaxExecutions = intPtr(0) },
		func(p *CreateParams) { p.Type = models.TransactionTypeTransfer },
		func(p *CreateParams) { p.Type = models.TransactionTypeTransfer; p.ToAccountID = strPtr("checking") },
		func(p *CreateParams) { p.UserID = 0 },
	}
	for i, mutate := range invalid {
		params := dailyExpense(dateutil.Date(2025, 6, 3))
		mutate(&params)
		_, err := f.service.Create(ctx, params)
		require.Error(t, err, "case %d", i)
		assert.True(t, apperror.IsValidation(err), "case %d: %v", i, err)
	}

	params := dailyExpense(dateutil.Date(2025, 6, 3))
	params.AccountID = "missing"
	_, err := f.service.Create(ctx, params)
	assert.True(t, apperror.IsNotFound(err))
}

func TestRunDue_DailyExpenseThreeDays(t *testing.T) {
	ctx := context.Background()
	start := dateutil.Date(2025, 6, 1)
	f := newFixture(t, start)
	rt := f.create(t, dailyExpense(start))

	for i := 0; i < 3; i++ {
		result, err := f.service.RunDue(ctx, dateutil.AddDays(start, i), 2)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Succeeded)
	}

	assert.True(t, decimal.NewFromInt(850000).Equal(f.balance(t, "checking")))

	stored, err := f.service.Get(ctx, rt.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.ExecutionCount)
	assert.Equal(t, dateutil.Date(2025, 6, 4), stored.NextExecutionDate)
	assert.Equal(t, dateutil.Date(2025, 6, 3), *stored.LastExecutionDate)

	txns, err := f.store.Transactions().ListByRecurringID(ctx, rt.ID)
	require.NoError(t, err)
	require.Len(t, txns, 3)
	for i, txn := range txns {
		assert.Equal(t, dateutil.AddDays(start, i), txn.Date)
		assert.Equal(t, "Lunch", txn.Description)
		assert.True(t, decimal.NewFromInt(50000).Equal(txn.Amount))
	}
	assert.Equal(t, []string{KindExecuted, KindExecuted, KindExecuted}, f.notifier.kinds)
}

func TestRunDue_Idempotent(t *testing.T) {
	ctx := context.Background()
	today := dateutil.Date(2025, 6, 1)
	f := newFixture(t, today)
	for i := 0; i < 5; i++ {
		f.create(t, dailyExpense(today))
	}

	first, err := f.service.RunDue(ctx, today, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, first.Processed)
	assert.Equal(t, 5, first.Succeeded)

	second, err := f.service.RunDue(ctx, today, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Processed)

	assert.True(t, decimal.NewFromInt(750000).Equal(f.balance(t, "checking")))
}

func TestRunDue_MonthlyAnchoredOnThirtyFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, dateutil.Date(2025, 1, 31))
	params := dailyExpense(dateutil.Date(2025, 1, 31))
	params.Frequency = models.FrequencyMonthly
	params.DayOfMonth = intPtr(31)
	rt := f.create(t, params)

	for _, today := range []time.Time{dateutil.Date(2025, 1, 31), dateutil.Date(2025, 2, 28), dateutil.Date(2025, 3, 31)} {
		result, err := f.service.RunDue(ctx, today, 1)
		require.NoError(t, err)
		require.Equal(t, 1, result.Succeeded, today)
	}

	stored, err := f.service.Get(ctx, rt.ID)
	require.NoError(t, err)
	assert.Equal(t, dateutil.Date(2025, 4, 30), stored.NextExecutionDate)
}

func TestRunDue_CompletesAtMaxExecutions(t *testing.T) {
	ctx := context.Background()
	start := dateutil.Date(2025, 6, 1)
	f := newFixture(t, start)
	params := dailyExpense(start)
	params.MaxExecutions = intPtr(2)
	rt := f.create(t, params)

	for i := 0; i < 4; i++ {
		_, err := f.service.RunDue(ctx, dateutil.AddDays(start, i), 1)
		require.NoError(t, err)
	}

	stored, err := f.service.Get(ctx, rt.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecurringStatusCompleted, stored.Status)
	assert.Equal(t, 2, stored.ExecutionCount)
	assert.True(t, decimal.NewFromInt(900000).Equal(f.balance(t, "checking")))
	assert.Equal(t, []string{KindExecuted, KindCompleted}, f.notifier.kinds)

	_, err = f.service.Execute(ctx, rt.ID)
	assert.ErrorIs(t, err, ErrNotDue)
}

func TestRunDue_TransferCopiesDestinationAndRate(t *testing.T) {
	ctx := context.Background()
	today := dateutil.Date(2025, 6, 1)
	f := newFixture(t, today)
	params := dailyExpense(today)
	params.Type = models.TransactionTypeTransfer
	params.ToAccountID = strPtr("dollars")
	params.ExchangeRate = decimal.NewNullDecimal(decimal.RequireFromString("0.0007"))
	f.create(t, params)

	result, err := f.service.RunDue(ctx, today, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.True(t, decimal.NewFromInt(950000).Equal(f.balance(t, "checking")))
	assert.True(t, decimal.RequireFromString("1000035").Equal(f.balance(t, "dollars")))
}

func TestRunDue_FailedItemLeavesRuleUntouched(t *testing.T) {
	ctx := context.Background()
	today := dateutil.Date(2025, 6, 1)
	f := newFixture(t, today)

	// No converter is configured, so a cross-currency transfer without a
	// rate fails at execution time.
	broken := dailyExpense(today)
	broken.Type = models.TransactionTypeTransfer
	broken.ToAccountID = strPtr("dollars")
	brokenRule := f.create(t, broken)
	f.create(t, dailyExpense(today))

	result, err := f.service.RunDue(ctx, today, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], brokenRule.ID)

	stored, err := f.service.Get(ctx, brokenRule.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.ExecutionCount)
	assert.Equal(t, today, stored.NextExecutionDate)
	assert.True(t, decimal.NewFromInt(950000).Equal(f.balance(t, "checking")))
	assert.True(t, decimal.NewFromInt(1000000).Equal(f.balance(t, "dollars")))
}

func TestRunDue_ConcurrentItemsOnSameAccount(t *testing.T) {
	ctx := context.Background()
	today := dateutil.Date(2025, 6, 1)
	f := newFixture(t, today)
	for i := 0; i < 20; i++ {
		f.create(t, dailyExpense(today))
	}

	result, err := f.service.RunDue(ctx, today, 8)
	require.NoError(t, err)
	assert.Equal(t, 20, result.Succeeded)
	assert.True(t, decimal.Zero.Equal(f.balance(t, "checking")))
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, dateutil.Date(2025, 6, 10))
	rt := f.create(t, dailyExpense(dateutil.Date(2025, 6, 1)))

	_, err := f.service.Resume(ctx, rt.ID)
	assert.ErrorIs(t, err, ErrNotPaused)

	paused, err := f.service.Pause(ctx, rt.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecurringStatusPaused, paused.Status)

	_, err = f.service.Pause(ctx, rt.ID)
	assert.ErrorIs(t, err, ErrNotActive)

	_, err = f.service.Execute(ctx, rt.ID)
	assert.ErrorIs(t, err, ErrNotDue)
	assert.True(t, decimal.NewFromInt(1000000).Equal(f.balance(t, "checking")))

	resumed, err := f.service.Resume(ctx, rt.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecurringStatusActive, resumed.Status)
	assert.Equal(t, dateutil.Date(2025, 6, 10), resumed.NextExecutionDate)

	amount := decimal.NewFromInt(70000)
	updated, err := f.service.Update(ctx, rt.ID, UpdateParams{Amount: &amount})
	require.NoError(t, err)
	assert.True(t, amount.Equal(updated.Amount))

	_, err = f.service.Execute(ctx, rt.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(930000).Equal(f.balance(t, "checking")))

	cancelled, err := f.service.Cancel(ctx, rt.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecurringStatusCancelled, cancelled.Status)

	for _, op := range []func(context.Context, string) (*models.RecurringTransaction, error){
		f.service.Cancel, f.service.Pause, f.service.Resume,
	} {
		_, err := op(ctx, rt.ID)
		assert.True(t, apperror.IsConflict(err))
	}
	_, err = f.service.Update(ctx, rt.ID, UpdateParams{Amount: &amount})
	assert.ErrorIs(t, err, ErrIsTerminal)

	_, err = f.service.Pause(ctx, "missing")
	assert.True(t, apperror.IsNotFound(err))
}

func TestResume_FutureDateKept(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, dateutil.Date(2025, 6, 10))
	rt := f.create(t, dailyExpense(dateutil.Date(2025, 7, 1)))

	_, err := f.service.Pause(ctx, rt.ID)
	require.NoError(t, err)
	resumed, err := f.service.Resume(ctx, rt.ID)
	require.NoError(t, err)
	assert.Equal(t, dateutil.Date(2025, 7, 1), resumed.NextExecutionDate)
}

func TestListByUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, dateutil.Date(2025, 6, 1))
	f.create(t, dailyExpense(dateutil.Date(2025, 6, 5)))
	f.create(t, dailyExpense(dateutil.Date(2025, 6, 2)))

	list, err := f.service.ListByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, dateutil.Date(2025, 6, 2), list[0].NextExecutionDate)

	_, err = f.service.ListByUser(ctx, 0)
	assert.True(t, apperror.IsValidation(err))
}

func TestResume_PastEndDateCompletes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, dateutil.Date(2025, 6, 3))
	params := dailyExpense(dateutil.Date(2025, 6, 1))
	end := dateutil.Date(2025, 6, 5)
	params.EndDate = &end
	rt := f.create(t, params)

	_, err := f.service.Pause(ctx, rt.ID)
	require.NoError(t, err)

	f.clock.Date = dateutil.Date(2025, 6, 10)
	resumed, err := f.service.Resume(ctx, rt.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecurringStatusCompleted, resumed.Status)

	_, err = f.service.Pause(ctx, rt.ID)
	assert.True(t, apperror.IsConflict(err))
}

func TestUpdate_LimitsBelowCursorComplete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, dateutil.Date(2025, 6, 5))

	byEnd := f.create(t, dailyExpense(dateutil.Date(2025, 6, 5)))
	_, err := f.service.Execute(ctx, byEnd.ID)
	require.NoError(t, err)
	end := dateutil.Date(2025, 6, 5)
	updated, err := f.service.Update(ctx, byEnd.ID, UpdateParams{EndDate: &end})
	require.NoError(t, err)
	assert.Equal(t, models.RecurringStatusCompleted, updated.Status)

	byCount := f.create(t, dailyExpense(dateutil.Date(2025, 6, 5)))
	_, err = f.service.Execute(ctx, byCount.ID)
	require.NoError(t, err)
	updated, err = f.service.Update(ctx, byCount.ID, UpdateParams{MaxExecutions: intPtr(1)})
	require.NoError(t, err)
	assert.Equal(t, models.RecurringStatusCompleted, updated.Status)

	later := dateutil.Date(2025, 12, 31)
	open := f.create(t, dailyExpense(dateutil.Date(2025, 6, 5)))
	updated, err = f.service.Update(ctx, open.ID, UpdateParams{EndDate: &later})
	require.NoError(t, err)
	assert.Equal(t, models.RecurringStatusActive, updated.Status)
}

func TestExecute_WarnsWhenBehind(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, dateutil.Date(2025, 6, 10))
	logger, hook := test.NewNullLogger()
	ledgerService := ledger.NewService(f.store, ledger.NewAccessor(logger), nil, logger)
	service := NewService(f.store, ledgerService, f.clock, nil, logger)

	rt := f.create(t, dailyExpense(dateutil.Date(2025, 6, 1)))
	_, err := service.Execute(ctx, rt.ID)
	require.NoError(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, 8, entry.Data["days_behind"])
	assert.Equal(t, "2025-06-02", entry.Data["next"])

	hook.Reset()
	current := f.create(t, dailyExpense(dateutil.Date(2025, 6, 10)))
	_, err = service.Execute(ctx, current.ID)
	require.NoError(t, err)
	for _, e := range hook.AllEntries() {
		assert.NotEqual(t, logrus.WarnLevel, e.Level)
	}
}
