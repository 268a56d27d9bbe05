package paymentplan

import (
	"time"

	"github.com/shopspring/decimal"

	"famledger/internal/domain/amortization"
	"famledger/internal/models"
	"famledger/internal/shared/apperror"
)

// Domain errors
var (
	ErrNotCreditCard   = apperror.Validation("payment plans can only be attached to credit card transactions")
	ErrNotExpense      = apperror.Validation("payment plans can only be attached to expenses")
	ErrAlreadyHasPlan  = apperror.Validation("transaction already has a payment plan")
	ErrNoBillingDay    = apperror.Validation("credit card has no billing day")
	ErrPlanNotActive   = apperror.Conflict("payment plan is not active")
	ErrPlanCompleted   = apperror.Conflict("payment plan is already completed")
	ErrPlanCancelled   = apperror.Conflict("payment plan is already cancelled")
	ErrAlreadyPaid     = apperror.Conflict("payment is already paid")
	ErrInvalidDays     = apperror.Validation("days must not be negative")
	ErrInvalidUser     = apperror.Validation("valid user ID is required")
	ErrUnknownPlanType = apperror.Validation("payment type must be INSTALLMENT or REVOLVING")
)

// KindPaymentDueSoon is the notification kind of a payment reminder.
const KindPaymentDueSoon = "payment.due_soon"

// PlanRequest describes the plan a user attaches to a transaction.
type PlanRequest struct {
	PaymentType models.PaymentType
	// Installment plans
	TotalInstallments  int
	InstallmentFeeRate decimal.Decimal
	// Revolving plans; InterestRate is annual, as a fraction
	MonthlyPayment decimal.Decimal
	InterestRate   decimal.Decimal
}

// Schedule runs the matching calculator for amount starting at start.
func (r PlanRequest) Schedule(amount decimal.Decimal, start time.Time, billingDay int) (*amortization.Schedule, error) {
	switch r.PaymentType {
	case models.PaymentTypeInstallment:
		return amortization.CalculateInstallment(amortization.InstallmentInput{
			OriginalAmount:    amount,
			TotalInstallments: r.TotalInstallments,
			FeeRate:           r.InstallmentFeeRate,
			StartDate:         start,
			BillingDay:        billingDay,
		})
	case models.PaymentTypeRevolving:
		return amortization.CalculateRevolving(amortization.RevolvingInput{
			OriginalAmount:     amount,
			MonthlyPayment:     r.MonthlyPayment,
			AnnualInterestRate: r.InterestRate,
			StartDate:          start,
			BillingDay:         billingDay,
		})
	default:
		return nil, ErrUnknownPlanType
	}
}

// newPlan turns a schedule into a plan with freshly identified payments.
func newPlan(id string, txn *models.Transaction, s *amortization.Schedule, newID func() string) *models.PaymentPlan {
	plan := &models.PaymentPlan{
		ID:                 id,
		UserID:             txn.UserID,
		TransactionID:      txn.ID,
		AccountID:          txn.AccountID,
		PaymentType:        s.PaymentType,
		OriginalAmount:     s.OriginalAmount,
		TotalAmountWithFee: s.TotalAmountWithFee,
		RemainingAmount:    s.InitialRemaining,
		Currency:           txn.Currency,
		StartDate:          txn.Date,
		TotalInstallments:  s.TotalInstallments,
		InstallmentAmount:  s.InstallmentAmount,
		InstallmentFeeRate: s.FeeRate,
		MonthlyPayment:     s.MonthlyPayment,
		InterestRate:       s.InterestRate,
		Status:             models.PlanStatusActive,
		Payments:           make([]*models.Payment, 0, len(s.Payments)),
	}
	if len(s.Payments) > 0 {
		first := s.Payments[0].DueDate
		plan.NextPaymentDate = &first
	}
	for _, p := range s.Payments {
		plan.Payments = append(plan.Payments, &models.Payment{
			ID:              newID(),
			PlanID:          id,
			PaymentNumber:   p.Number,
			PrincipalAmount: p.Principal,
			FeeAmount:       p.Fee,
			InterestAmount:  p.Interest,
			TotalAmount:     p.Total,
			RemainingAfter:  p.RemainingAfter,
			DueDate:         p.DueDate,
			Status:          models.PaymentStatusPending,
		})
	}
	return plan
}
