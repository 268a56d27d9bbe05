package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"famledger/internal/models"
	"famledger/internal/shared/dateutil"
)

// PaymentPlanRepository implements models.PaymentPlanRepository for PostgreSQL.
// Create issues two statements and must run inside Store.WithinTx to be atomic.
type PaymentPlanRepository struct {
	db Querier
}

func NewPaymentPlanRepository(db Querier) *PaymentPlanRepository {
	return &PaymentPlanRepository{db: db}
}

const planColumns = `
	id, user_id, transaction_id, account_id, payment_type, original_amount, total_amount_with_fee,
	remaining_amount, currency, start_date, next_payment_date, total_installments,
	completed_installments, installment_amount, installment_fee_rate, monthly_payment,
	interest_rate, status, created_at, updated_at`

const paymentColumns = `
	id, plan_id, payment_number, principal_amount, fee_amount, interest_amount, total_amount,
	remaining_after, due_date, payment_date, status`

func scanPlan(row scanner) (*models.PaymentPlan, error) {
	var p models.PaymentPlan
	var nextPayment sql.NullTime

	err := row.Scan(
		&p.ID, &p.UserID, &p.TransactionID, &p.AccountID, &p.PaymentType, &p.OriginalAmount, &p.TotalAmountWithFee,
		&p.RemainingAmount, &p.Currency, &p.StartDate, &nextPayment, &p.TotalInstallments,
		&p.CompletedInstallments, &p.InstallmentAmount, &p.InstallmentFeeRate, &p.MonthlyPayment,
		&p.InterestRate, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.StartDate = dateutil.Truncate(p.StartDate)
	p.NextPaymentDate = datePtr(nextPayment)
	p.Payments = []*models.Payment{}
	return &p, nil
}

func scanPayment(row scanner, extra ...any) (*models.Payment, error) {
	var pay models.Payment
	var paidOn sql.NullTime

	dest := []any{
		&pay.ID, &pay.PlanID, &pay.PaymentNumber, &pay.PrincipalAmount, &pay.FeeAmount, &pay.InterestAmount,
		&pay.TotalAmount, &pay.RemainingAfter, &pay.DueDate, &paidOn, &pay.Status,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	pay.DueDate = dateutil.Truncate(pay.DueDate)
	pay.PaymentDate = datePtr(paidOn)
	return &pay, nil
}

// Create inserts the plan row and all of its payments.
func (r *PaymentPlanRepository) Create(ctx context.Context, plan *models.PaymentPlan) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO payment_plans (
			id, user_id, transaction_id, account_id, payment_type, original_amount, total_amount_with_fee,
			remaining_amount, currency, start_date, next_payment_date, total_installments,
			completed_installments, installment_amount, installment_fee_rate, monthly_payment,
			interest_rate, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING created_at, updated_at
	`,
		plan.ID, plan.UserID, plan.TransactionID, plan.AccountID, plan.PaymentType, plan.OriginalAmount, plan.TotalAmountWithFee,
		plan.RemainingAmount, plan.Currency, sqlDate(plan.StartDate), nullDate(plan.NextPaymentDate), plan.TotalInstallments,
		plan.CompletedInstallments, plan.InstallmentAmount, plan.InstallmentFeeRate, plan.MonthlyPayment,
		plan.InterestRate, plan.Status,
	).Scan(&plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		return mapError("create payment plan", err)
	}

	if len(plan.Payments) == 0 {
		return nil
	}

	const perRow = 11
	valueStrings := make([]string, 0, len(plan.Payments))
	valueArgs := make([]any, 0, len(plan.Payments)*perRow)

	for i, pay := range plan.Payments {
		placeholders := make([]string, perRow)
		for j := range placeholders {
			placeholders[j] = fmt.Sprintf("$%d", i*perRow+j+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ", ")+")")
		valueArgs = append(valueArgs,
			pay.ID, plan.ID, pay.PaymentNumber, pay.PrincipalAmount, pay.FeeAmount, pay.InterestAmount,
			pay.TotalAmount, pay.RemainingAfter, sqlDate(pay.DueDate), nullDate(pay.PaymentDate), pay.Status,
		)
	}

	query := fmt.Sprintf(`INSERT INTO payments (%s) VALUES %s`, paymentColumns, strings.Join(valueStrings, ", "))
	if _, err := r.db.ExecContext(ctx, query, valueArgs...); err != nil {
		return mapError("create payments", err)
	}
	return nil
}

func (r *PaymentPlanRepository) GetByID(ctx context.Context, id string) (*models.PaymentPlan, error) {
	return r.get(ctx, `SELECT`+planColumns+` FROM payment_plans WHERE id = $1`, id)
}

// GetByIDForUpdate locks the plan row; its payments are only written while
// the plan lock is held, so they need no lock of their own.
func (r *PaymentPlanRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.PaymentPlan, error) {
	return r.get(ctx, `SELECT`+planColumns+` FROM payment_plans WHERE id = $1 FOR UPDATE`, id)
}

func (r *PaymentPlanRepository) get(ctx context.Context, query, id string) (*models.PaymentPlan, error) {
	plan, err := scanPlan(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPaymentPlanNotFound
	}
	if err != nil {
		return nil, mapError("get payment plan", err)
	}

	if err := r.attachPayments(ctx, []*models.PaymentPlan{plan}); err != nil {
		return nil, err
	}
	return plan, nil
}

// attachPayments loads the payments of every plan in one query.
func (r *PaymentPlanRepository) attachPayments(ctx context.Context, plans []*models.PaymentPlan) error {
	if len(plans) == 0 {
		return nil
	}
	byID := make(map[string]*models.PaymentPlan, len(plans))
	ids := make([]string, 0, len(plans))
	for _, p := range plans {
		byID[p.ID] = p
		ids = append(ids, p.ID)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT`+paymentColumns+`
		FROM payments
		WHERE plan_id = ANY($1)
		ORDER BY plan_id, payment_number
	`, pq.Array(ids))
	if err != nil {
		return mapError("list payments", err)
	}
	defer rows.Close()

	for rows.Next() {
		pay, err := scanPayment(rows)
		if err != nil {
			return fmt.Errorf("failed to scan payment: %w", err)
		}
		if plan, ok := byID[pay.PlanID]; ok {
			plan.Payments = append(plan.Payments, pay)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating payments: %w", err)
	}
	return nil
}

// Update writes the plan row only while the stored status equals expected.
func (r *PaymentPlanRepository) Update(ctx context.Context, plan *models.PaymentPlan, expected models.PlanStatus) error {
	err := r.db.QueryRowContext(ctx, `
		UPDATE payment_plans
		SET remaining_amount = $3, next_payment_date = $4, completed_installments = $5,
		    status = $6, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = $2
		RETURNING updated_at
	`,
		plan.ID, expected,
		plan.RemainingAmount, nullDate(plan.NextPaymentDate), plan.CompletedInstallments, plan.Status,
	).Scan(&plan.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM payment_plans WHERE id = $1)`, plan.ID).Scan(&exists); err != nil {
			return mapError("check payment plan", err)
		}
		if !exists {
			return models.ErrPaymentPlanNotFound
		}
		return models.ErrStaleWrite
	}
	if err != nil {
		return mapError("update payment plan", err)
	}
	return nil
}

func (r *PaymentPlanRepository) UpdatePayment(ctx context.Context, payment *models.Payment) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payments SET payment_date = $3, status = $4
		WHERE id = $1 AND plan_id = $2
	`, payment.ID, payment.PlanID, nullDate(payment.PaymentDate), payment.Status)
	if err != nil {
		return mapError("update payment", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return models.ErrPaymentNotFound
	}
	return nil
}

func (r *PaymentPlanRepository) ListByUserID(ctx context.Context, userID int64) ([]*models.PaymentPlan, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT`+planColumns+`
		FROM payment_plans
		WHERE user_id = $1
		ORDER BY start_date, id
	`, userID)
	if err != nil {
		return nil, mapError("list payment plans", err)
	}
	defer rows.Close()

	plans := []*models.PaymentPlan{}
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment plan: %w", err)
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payment plans: %w", err)
	}
	rows.Close()

	if err := r.attachPayments(ctx, plans); err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *PaymentPlanRepository) MarkOverdue(ctx context.Context, today time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payments SET status = $1
		WHERE status = $2 AND due_date < $3
	`, models.PaymentStatusOverdue, models.PaymentStatusPending, sqlDate(today))
	if err != nil {
		return 0, mapError("mark payments overdue", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(rows), nil
}

func (r *PaymentPlanRepository) ListUpcoming(ctx context.Context, userID int64, from, to time.Time) ([]*models.UpcomingPayment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.id, p.plan_id, p.payment_number, p.principal_amount, p.fee_amount, p.interest_amount,
		       p.total_amount, p.remaining_after, p.due_date, p.payment_date, p.status,
		       pl.user_id, pl.account_id, pl.currency, pl.payment_type
		FROM payments p
		JOIN payment_plans pl ON pl.id = p.plan_id
		WHERE pl.status = $1 AND p.status = $2
		  AND p.due_date BETWEEN $3 AND $4
		  AND ($5::bigint = 0 OR pl.user_id = $5)
		ORDER BY p.due_date, p.plan_id, p.payment_number
	`, models.PlanStatusActive, models.PaymentStatusPending, sqlDate(from), sqlDate(to), userID)
	if err != nil {
		return nil, mapError("list upcoming payments", err)
	}
	defer rows.Close()

	out := []*models.UpcomingPayment{}
	for rows.Next() {
		var up models.UpcomingPayment
		pay, err := scanPayment(rows, &up.UserID, &up.AccountID, &up.Currency, &up.PaymentType)
		if err != nil {
			return nil, fmt.Errorf("failed to scan upcoming payment: %w", err)
		}
		up.Payment = *pay
		out = append(out, &up)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating upcoming payments: %w", err)
	}
	return out, nil
}
