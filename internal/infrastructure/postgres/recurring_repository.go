package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"famledger/internal/models"
	"famledger/internal/shared/dateutil"
)

// RecurringRepository implements models.RecurringRepository for PostgreSQL
type RecurringRepository struct {
	db Querier
}

func NewRecurringRepository(db Querier) *RecurringRepository {
	return &RecurringRepository{db: db}
}

const recurringColumns = `
	id, user_id, account_id, to_account_id, exchange_rate, category_id, transaction_type,
	amount, currency, description, frequency, interval_value, day_of_week, day_of_month,
	start_date, end_date, next_execution_date, last_execution_date, status,
	execution_count, max_executions, created_at, updated_at`

func scanRecurring(row scanner) (*models.RecurringTransaction, error) {
	var rt models.RecurringTransaction
	var toAccountID, categoryID sql.NullString
	var dayOfWeek, dayOfMonth, maxExecutions sql.NullInt64
	var endDate, lastExecution sql.NullTime

	err := row.Scan(
		&rt.ID, &rt.UserID, &rt.AccountID, &toAccountID, &rt.ExchangeRate, &categoryID, &rt.Type,
		&rt.Amount, &rt.Currency, &rt.Description, &rt.Frequency, &rt.IntervalValue, &dayOfWeek, &dayOfMonth,
		&rt.StartDate, &endDate, &rt.NextExecutionDate, &lastExecution, &rt.Status,
		&rt.ExecutionCount, &maxExecutions, &rt.CreatedAt, &rt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rt.ToAccountID = stringPtr(toAccountID)
	rt.CategoryID = stringPtr(categoryID)
	rt.DayOfWeek = intPtr(dayOfWeek)
	rt.DayOfMonth = intPtr(dayOfMonth)
	rt.MaxExecutions = intPtr(maxExecutions)
	rt.StartDate = dateutil.Truncate(rt.StartDate)
	rt.NextExecutionDate = dateutil.Truncate(rt.NextExecutionDate)
	rt.EndDate = datePtr(endDate)
	rt.LastExecutionDate = datePtr(lastExecution)
	return &rt, nil
}

func (r *RecurringRepository) Create(ctx context.Context, rt *models.RecurringTransaction) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO recurring_transactions (
			id, user_id, account_id, to_account_id, exchange_rate, category_id, transaction_type,
			amount, currency, description, frequency, interval_value, day_of_week, day_of_month,
			start_date, end_date, next_execution_date, last_execution_date, status,
			execution_count, max_executions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING created_at, updated_at
	`,
		rt.ID, rt.UserID, rt.AccountID, nullString(rt.ToAccountID), rt.ExchangeRate, nullString(rt.CategoryID), rt.Type,
		rt.Amount, rt.Currency, rt.Description, rt.Frequency, rt.IntervalValue, nullInt(rt.DayOfWeek), nullInt(rt.DayOfMonth),
		sqlDate(rt.StartDate), nullDate(rt.EndDate), sqlDate(rt.NextExecutionDate), nullDate(rt.LastExecutionDate), rt.Status,
		rt.ExecutionCount, nullInt(rt.MaxExecutions),
	).Scan(&rt.CreatedAt, &rt.UpdatedAt)

	if err != nil {
		return mapError("create recurring transaction", err)
	}
	return nil
}

func (r *RecurringRepository) GetByID(ctx context.Context, id string) (*models.RecurringTransaction, error) {
	return r.get(ctx, `SELECT`+recurringColumns+` FROM recurring_transactions WHERE id = $1`, id)
}

func (r *RecurringRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.RecurringTransaction, error) {
	return r.get(ctx, `SELECT`+recurringColumns+` FROM recurring_transactions WHERE id = $1 FOR UPDATE`, id)
}

func (r *RecurringRepository) get(ctx context.Context, query, id string) (*models.RecurringTransaction, error) {
	rt, err := scanRecurring(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrRecurringNotFound
	}
	if err != nil {
		return nil, mapError("get recurring transaction", err)
	}
	return rt, nil
}

// Update writes rt only while the stored status equals expected.
func (r *RecurringRepository) Update(ctx context.Context, rt *models.RecurringTransaction, expected models.RecurringStatus) error {
	err := r.db.QueryRowContext(ctx, `
		UPDATE recurring_transactions
		SET account_id = $3, to_account_id = $4, exchange_rate = $5, category_id = $6,
		    transaction_type = $7, amount = $8, currency = $9, description = $10,
		    frequency = $11, interval_value = $12, day_of_week = $13, day_of_month = $14,
		    start_date = $15, end_date = $16, next_execution_date = $17, last_execution_date = $18,
		    status = $19, execution_count = $20, max_executions = $21,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = $2
		RETURNING updated_at
	`,
		rt.ID, expected,
		rt.AccountID, nullString(rt.ToAccountID), rt.ExchangeRate, nullString(rt.CategoryID),
		rt.Type, rt.Amount, rt.Currency, rt.Description,
		rt.Frequency, rt.IntervalValue, nullInt(rt.DayOfWeek), nullInt(rt.DayOfMonth),
		sqlDate(rt.StartDate), nullDate(rt.EndDate), sqlDate(rt.NextExecutionDate), nullDate(rt.LastExecutionDate),
		rt.Status, rt.ExecutionCount, nullInt(rt.MaxExecutions),
	).Scan(&rt.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return r.staleOrMissing(ctx, rt.ID)
	}
	if err != nil {
		return mapError("update recurring transaction", err)
	}
	return nil
}

func (r *RecurringRepository) staleOrMissing(ctx context.Context, id string) error {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM recurring_transactions WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return mapError("check recurring transaction", err)
	}
	if !exists {
		return models.ErrRecurringNotFound
	}
	return models.ErrStaleWrite
}

// ListDue returns ACTIVE rules whose cursor is on or before today and whose
// end date, if any, has not passed.
func (r *RecurringRepository) ListDue(ctx context.Context, today time.Time) ([]*models.RecurringTransaction, error) {
	return r.list(ctx, `SELECT`+recurringColumns+`
		FROM recurring_transactions
		WHERE status = $1
		  AND next_execution_date <= $2
		  AND (end_date IS NULL OR end_date >= $2)
		ORDER BY next_execution_date, id
	`, models.RecurringStatusActive, sqlDate(today))
}

func (r *RecurringRepository) ListByUserID(ctx context.Context, userID int64) ([]*models.RecurringTransaction, error) {
	return r.list(ctx, `SELECT`+recurringColumns+`
		FROM recurring_transactions
		WHERE user_id = $1
		ORDER BY next_execution_date, id
	`, userID)
}

func (r *RecurringRepository) list(ctx context.Context, query string, args ...any) ([]*models.RecurringTransaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("list recurring transactions", err)
	}
	defer rows.Close()

	out := []*models.RecurringTransaction{}
	for rows.Next() {
		rt, err := scanRecurring(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recurring transaction: %w", err)
		}
		out = append(out, rt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recurring transactions: %w", err)
	}
	return out, nil
}
