// Package amortization computes credit card payment schedules. Everything
// here is pure: no persistence, no clock.
package amortization

import (
	"time"

	"github.com/shopspring/decimal"

	"famledger/internal/models"
	"famledger/internal/shared/apperror"
	"famledger/internal/shared/dateutil"
	"famledger/internal/shared/money"
)

const (
	// MinInstallments is the smallest installment count accepted.
	MinInstallments = 2
	// MaxRevolvingPayments bounds a revolving schedule to ten years.
	MaxRevolvingPayments = 120
)

var monthsPerYear = decimal.NewFromInt(12)

// Payment is one row of a schedule.
type Payment struct {
	Number         int
	Principal      decimal.Decimal
	Fee            decimal.Decimal
	Interest       decimal.Decimal
	Total          decimal.Decimal
	RemainingAfter decimal.Decimal
	DueDate        time.Time
}

// Schedule is the output of a calculator.
type Schedule struct {
	PaymentType        models.PaymentType
	OriginalAmount     decimal.Decimal
	TotalAmountWithFee decimal.Decimal
	// InitialRemaining is the plan balance before any payment: the total
	// with fees for installments, the principal for revolving plans.
	InitialRemaining  decimal.Decimal
	TotalInstallments int
	FirstPaymentDate  time.Time

	FeeRate                 decimal.Decimal
	FeePerInstallment       decimal.Decimal
	TotalFee                decimal.Decimal
	InstallmentAmount       decimal.Decimal
	PrincipalPerInstallment decimal.Decimal

	MonthlyPayment decimal.Decimal
	InterestRate   decimal.Decimal
	MonthlyRate    decimal.Decimal
	TotalInterest  decimal.Decimal

	Payments []Payment
}

// InstallmentInput holds the parameters of a fixed-fee installment plan.
type InstallmentInput struct {
	OriginalAmount    decimal.Decimal
	TotalInstallments int
	// FeeRate is charged on the original amount once per installment.
	FeeRate    decimal.Decimal
	StartDate  time.Time
	BillingDay int
}

// Validate validates the installment parameters
func (in InstallmentInput) Validate() error {
	if !in.OriginalAmount.IsPositive() {
		return apperror.Validation("original amount must be positive")
	}
	if in.TotalInstallments < MinInstallments {
		return apperror.Validationf("at least %d installments are required", MinInstallments)
	}
	if in.FeeRate.IsNegative() {
		return apperror.Validation("installment fee rate cannot be negative")
	}
	return validateDates(in.StartDate, in.BillingDay)
}

// RevolvingInput holds the parameters of an interest-bearing revolving plan.
type RevolvingInput struct {
	OriginalAmount decimal.Decimal
	MonthlyPayment decimal.Decimal
	// AnnualInterestRate is a fraction: 0.18 means 18% a year.
	AnnualInterestRate decimal.Decimal
	StartDate          time.Time
	BillingDay         int
}

// Validate validates the revolving parameters
func (in RevolvingInput) Validate() error {
	if !in.OriginalAmount.IsPositive() {
		return apperror.Validation("original amount must be positive")
	}
	if !in.MonthlyPayment.IsPositive() {
		return apperror.Validation("monthly payment must be positive")
	}
	if in.AnnualInterestRate.IsNegative() {
		return apperror.Validation("interest rate cannot be negative")
	}
	return validateDates(in.StartDate, in.BillingDay)
}

func validateDates(start time.Time, billingDay int) error {
	if start.IsZero() {
		return apperror.Validation("start date is required")
	}
	if billingDay < 1 || billingDay > 31 {
		return apperror.Validation("billing day must be between 1 and 31")
	}
	return nil
}

// FirstBillingDate returns the first billing date strictly after start.
// The billing day is clamped to the length of each month.
func FirstBillingDate(start time.Time, billingDay int) time.Time {
	start = dateutil.Truncate(start)
	candidate := dateutil.ClampDay(start.Year(), start.Month(), billingDay)
	if !candidate.After(start) {
		candidate = BillingDateAfter(candidate, billingDay, 1)
	}
	return candidate
}

// BillingDateAfter returns the billing date n months after first. The day is
// re-derived from billingDay so a date clamped in a short month recovers in
// a longer one.
func BillingDateAfter(first time.Time, billingDay, n int) time.Time {
	month := dateutil.AddMonths(dateutil.Date(first.Year(), first.Month(), 1), n)
	return dateutil.ClampDay(month.Year(), month.Month(), billingDay)
}

// CalculateInstallment builds a fixed-fee installment schedule. The last
// payment absorbs the rounding residual so the totals sum exactly to
// TotalAmountWithFee.
func CalculateInstallment(in InstallmentInput) (*Schedule, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	n := decimal.NewFromInt(int64(in.TotalInstallments))
	feePerInstallment := money.Round4(in.OriginalAmount.Mul(in.FeeRate))
	totalFee := feePerInstallment.Mul(n)
	totalWithFee := in.OriginalAmount.Add(totalFee)
	installmentAmount := money.Div(totalWithFee, n)
	principalPerInstallment := money.Div(in.OriginalAmount, n)
	first := FirstBillingDate(in.StartDate, in.BillingDay)

	s := &Schedule{
		PaymentType:             models.PaymentTypeInstallment,
		OriginalAmount:          in.OriginalAmount,
		TotalAmountWithFee:      totalWithFee,
		InitialRemaining:        totalWithFee,
		TotalInstallments:       in.TotalInstallments,
		FirstPaymentDate:        first,
		FeeRate:                 in.FeeRate,
		FeePerInstallment:       feePerInstallment,
		TotalFee:                totalFee,
		InstallmentAmount:       installmentAmount,
		PrincipalPerInstallment: principalPerInstallment,
		Payments:                make([]Payment, 0, in.TotalInstallments),
	}

	remaining := totalWithFee
	paidTotal := decimal.Zero
	paidPrincipal := decimal.Zero
	for i := 1; i <= in.TotalInstallments; i++ {
		total := installmentAmount
		principal := principalPerInstallment
		if i == in.TotalInstallments {
			total = totalWithFee.Sub(paidTotal)
			principal = in.OriginalAmount.Sub(paidPrincipal)
		}
		paidTotal = paidTotal.Add(total)
		paidPrincipal = paidPrincipal.Add(principal)
		remaining = money.Max(remaining.Sub(total), decimal.Zero)

		s.Payments = append(s.Payments, Payment{
			Number:         i,
			Principal:      principal,
			Fee:            feePerInstallment,
			Interest:       decimal.Zero,
			Total:          total,
			RemainingAfter: remaining,
			DueDate:        BillingDateAfter(first, in.BillingDay, i-1),
		})
	}

	return s, nil
}

// CalculateRevolving builds an interest-bearing schedule paying a fixed
// monthly amount until the balance is cleared. A payment that cannot clear
// the balance within MaxRevolvingPayments months is rejected.
func CalculateRevolving(in RevolvingInput) (*Schedule, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	monthlyRate := money.RoundRate(in.AnnualInterestRate.Div(monthsPerYear))
	if !in.MonthlyPayment.GreaterThan(in.OriginalAmount.Mul(monthlyRate)) {
		return nil, apperror.Validation("monthly payment is too low to cover interest")
	}

	first := FirstBillingDate(in.StartDate, in.BillingDay)
	s := &Schedule{
		PaymentType:      models.PaymentTypeRevolving,
		OriginalAmount:   in.OriginalAmount,
		InitialRemaining: in.OriginalAmount,
		FirstPaymentDate: first,
		MonthlyPayment:   in.MonthlyPayment,
		InterestRate:     in.AnnualInterestRate,
		MonthlyRate:      monthlyRate,
		Payments:         []Payment{},
	}

	remaining := in.OriginalAmount
	total := decimal.Zero
	totalInterest := decimal.Zero
	for i := 1; i <= MaxRevolvingPayments && remaining.IsPositive(); i++ {
		interest := money.Round4(remaining.Mul(monthlyRate))
		var principal, amount decimal.Decimal
		if remaining.Add(interest).LessThanOrEqual(in.MonthlyPayment) {
			principal = remaining
			amount = remaining.Add(interest)
		} else {
			principal = in.MonthlyPayment.Sub(interest)
			amount = in.MonthlyPayment
		}
		if !principal.IsPositive() {
			return nil, apperror.Validation("monthly payment does not reduce the balance")
		}
		remaining = money.Max(remaining.Sub(principal), decimal.Zero)
		total = total.Add(amount)
		totalInterest = totalInterest.Add(interest)

		s.Payments = append(s.Payments, Payment{
			Number:         i,
			Principal:      principal,
			Fee:            decimal.Zero,
			Interest:       interest,
			Total:          amount,
			RemainingAfter: remaining,
			DueDate:        BillingDateAfter(first, in.BillingDay, i-1),
		})
	}

	if remaining.IsPositive() {
		return nil, apperror.Validationf("monthly payment does not clear the balance within %d months", MaxRevolvingPayments)
	}

	s.TotalAmountWithFee = total
	s.TotalInterest = totalInterest
	s.TotalInstallments = len(s.Payments)
	return s, nil
}
