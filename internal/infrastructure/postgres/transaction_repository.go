package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"famledger/internal/models"
	"famledger/internal/shared/dateutil"
)

// TransactionRepository implements models.TransactionRepository for PostgreSQL
type TransactionRepository struct {
	db Querier
}

func NewTransactionRepository(db Querier) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `
	id, user_id, account_id, to_account_id, exchange_rate, category_id, transaction_type,
	amount, currency, date, description, payment_type, payment_plan_id, recurring_id,
	created_at, updated_at`

func scanTransaction(row scanner) (*models.Transaction, error) {
	var t models.Transaction
	var toAccountID, categoryID, planID, recurringID sql.NullString

	err := row.Scan(
		&t.ID, &t.UserID, &t.AccountID, &toAccountID, &t.ExchangeRate, &categoryID, &t.Type,
		&t.Amount, &t.Currency, &t.Date, &t.Description, &t.PaymentType, &planID, &recurringID,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Date = dateutil.Truncate(t.Date)
	t.ToAccountID = stringPtr(toAccountID)
	t.CategoryID = stringPtr(categoryID)
	t.PaymentPlanID = stringPtr(planID)
	t.RecurringID = stringPtr(recurringID)
	return &t, nil
}

func (r *TransactionRepository) Create(ctx context.Context, txn *models.Transaction) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO transactions (id, user_id, account_id, to_account_id, exchange_rate, category_id,
		                          transaction_type, amount, currency, date, description, payment_type,
		                          payment_plan_id, recurring_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`,
		txn.ID, txn.UserID, txn.AccountID, nullString(txn.ToAccountID), txn.ExchangeRate, nullString(txn.CategoryID),
		txn.Type, txn.Amount, txn.Currency, sqlDate(txn.Date), txn.Description, txn.PaymentType,
		nullString(txn.PaymentPlanID), nullString(txn.RecurringID),
	).Scan(&txn.CreatedAt, &txn.UpdatedAt)

	if err != nil {
		return mapError("create transaction", err)
	}
	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	return r.get(ctx, `SELECT`+transactionColumns+` FROM transactions WHERE id = $1`, id)
}

func (r *TransactionRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Transaction, error) {
	return r.get(ctx, `SELECT`+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id)
}

func (r *TransactionRepository) get(ctx context.Context, query, id string) (*models.Transaction, error) {
	t, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrTransactionNotFound
	}
	if err != nil {
		return nil, mapError("get transaction", err)
	}
	return t, nil
}

// Update overwrites every mutable column of txn.
func (r *TransactionRepository) Update(ctx context.Context, txn *models.Transaction) error {
	err := r.db.QueryRowContext(ctx, `
		UPDATE transactions
		SET account_id = $2, to_account_id = $3, exchange_rate = $4, category_id = $5,
		    transaction_type = $6, amount = $7, currency = $8, date = $9, description = $10,
		    payment_type = $11, payment_plan_id = $12, recurring_id = $13,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING updated_at
	`,
		txn.ID, txn.AccountID, nullString(txn.ToAccountID), txn.ExchangeRate, nullString(txn.CategoryID),
		txn.Type, txn.Amount, txn.Currency, sqlDate(txn.Date), txn.Description,
		txn.PaymentType, nullString(txn.PaymentPlanID), nullString(txn.RecurringID),
	).Scan(&txn.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrTransactionNotFound
	}
	if err != nil {
		return mapError("update transaction", err)
	}
	return nil
}

func (r *TransactionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return mapError("delete transaction", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return models.ErrTransactionNotFound
	}
	return nil
}

func (r *TransactionRepository) ListByRecurringID(ctx context.Context, recurringID string) ([]*models.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT`+transactionColumns+`
		FROM transactions
		WHERE recurring_id = $1
		ORDER BY date, id
	`, recurringID)
	if err != nil {
		return nil, mapError("list transactions", err)
	}
	defer rows.Close()

	txns := []*models.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return txns, nil
}
