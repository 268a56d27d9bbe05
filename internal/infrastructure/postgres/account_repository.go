package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"famledger/internal/models"
	"famledger/internal/shared/dateutil"
)

// AccountRepository implements models.AccountRepository for PostgreSQL
type AccountRepository struct {
	db Querier
}

// NewAccountRepository creates a new PostgreSQL account repository
func NewAccountRepository(db Querier) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `
	id, user_id, name, account_type, currency, current_balance, credit_limit,
	billing_day, payment_due_day, linked_account_id, active, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*models.Account, error) {
	var acc models.Account
	var billingDay, dueDay sql.NullInt64
	var linked sql.NullString

	err := row.Scan(
		&acc.ID, &acc.UserID, &acc.Name, &acc.Type, &acc.Currency,
		&acc.CurrentBalance, &acc.CreditLimit,
		&billingDay, &dueDay, &linked, &acc.Active,
		&acc.CreatedAt, &acc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	acc.BillingDay = intPtr(billingDay)
	acc.PaymentDueDay = intPtr(dueDay)
	acc.LinkedAccountID = stringPtr(linked)
	return &acc, nil
}

// Create creates a new account
func (r *AccountRepository) Create(ctx context.Context, params models.CreateAccountParams) (*models.Account, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO accounts (id, user_id, name, account_type, currency, current_balance,
		                      credit_limit, billing_day, payment_due_day, linked_account_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING` + accountColumns

	acc, err := scanAccount(r.db.QueryRowContext(ctx, query,
		params.ID, params.UserID, params.Name, params.Type, params.Currency, params.InitialBalance,
		params.CreditLimit, nullInt(params.BillingDay), nullInt(params.PaymentDueDay), nullString(params.LinkedAccountID),
	))
	if err != nil {
		return nil, mapError("create account", err)
	}
	return acc, nil
}

// GetByID retrieves an account by its ID
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	return r.get(ctx, `SELECT`+accountColumns+` FROM accounts WHERE id = $1`, id)
}

// GetByIDForUpdate retrieves an account and locks its row until the
// enclosing transaction ends.
func (r *AccountRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Account, error) {
	return r.get(ctx, `SELECT`+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
}

func (r *AccountRepository) get(ctx context.Context, query, id string) (*models.Account, error) {
	acc, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrAccountNotFound
	}
	if err != nil {
		return nil, mapError("get account", err)
	}
	return acc, nil
}

func (r *AccountRepository) UpdateBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET current_balance = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1
	`, id, balance)
	if err != nil {
		return mapError("update account balance", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return models.ErrAccountNotFound
	}
	return nil
}

// ListByUserID retrieves all accounts for a specific user
func (r *AccountRepository) ListByUserID(ctx context.Context, userID int64) ([]*models.Account, error) {
	return r.list(ctx, `SELECT`+accountColumns+` FROM accounts WHERE user_id = $1 ORDER BY id`, userID)
}

// ListCreditCardsBillingOn returns active cards billing on date. On the last
// day of a month, cards whose billing day exceeds the month length match too.
func (r *AccountRepository) ListCreditCardsBillingOn(ctx context.Context, date time.Time) ([]*models.Account, error) {
	lastDay := date.Day() == dateutil.DaysIn(date.Year(), date.Month())
	query := `SELECT` + accountColumns + `
		FROM accounts
		WHERE account_type = $1 AND active AND billing_day IS NOT NULL
		  AND (billing_day = $2 OR ($3 AND billing_day > $2))
		ORDER BY id`
	return r.list(ctx, query, models.AccountTypeCreditCard, date.Day(), lastDay)
}

func (r *AccountRepository) list(ctx context.Context, query string, args ...any) ([]*models.Account, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("list accounts", err)
	}
	defer rows.Close()

	accounts := []*models.Account{}
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, acc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}
