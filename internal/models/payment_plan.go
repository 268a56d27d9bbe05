package models

import (
	"time"

	"github.com/shopspring/decimal"

	"famledger/internal/shared/apperror"
)

type PlanStatus string

const (
	PlanStatusActive    PlanStatus = "ACTIVE"
	PlanStatusCompleted PlanStatus = "COMPLETED"
	PlanStatusCancelled PlanStatus = "CANCELLED"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
	PaymentStatusOverdue PaymentStatus = "OVERDUE"
)

var (
	ErrPaymentPlanNotFound = apperror.NotFound("payment plan not found")
	ErrPaymentNotFound     = apperror.NotFound("payment not found")
)

// PaymentPlan spreads one credit card expense over scheduled payments.
// Installment fields are zero for revolving plans and vice versa.
type PaymentPlan struct {
	ID                    string          `json:"id"`
	UserID                int64           `json:"userId"`
	TransactionID         string          `json:"transactionId"`
	AccountID             string          `json:"accountId"`
	PaymentType           PaymentType     `json:"paymentType"`
	OriginalAmount        decimal.Decimal `json:"originalAmount"`
	TotalAmountWithFee    decimal.Decimal `json:"totalAmountWithFee"`
	RemainingAmount       decimal.Decimal `json:"remainingAmount"`
	Currency              string          `json:"currency"`
	StartDate             time.Time       `json:"startDate"`
	NextPaymentDate       *time.Time      `json:"nextPaymentDate,omitempty"`
	TotalInstallments     int             `json:"totalInstallments"`
	CompletedInstallments int             `json:"completedInstallments"`
	InstallmentAmount     decimal.Decimal `json:"installmentAmount"`
	InstallmentFeeRate    decimal.Decimal `json:"installmentFeeRate"`
	MonthlyPayment        decimal.Decimal `json:"monthlyPayment"`
	InterestRate          decimal.Decimal `json:"interestRate"`
	Status                PlanStatus      `json:"status"`
	Payments              []*Payment      `json:"payments"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

// Payment returns the payment with the given id, or nil.
func (p *PaymentPlan) Payment(id string) *Payment {
	for _, pay := range p.Payments {
		if pay.ID == id {
			return pay
		}
	}
	return nil
}

// NextOpenPayment returns the earliest unpaid payment, or nil when all are paid.
func (p *PaymentPlan) NextOpenPayment() *Payment {
	var next *Payment
	for _, pay := range p.Payments {
		if pay.Status == PaymentStatusPaid {
			continue
		}
		if next == nil || pay.PaymentNumber < next.PaymentNumber {
			next = pay
		}
	}
	return next
}

// Clone returns a deep copy including payments.
func (p *PaymentPlan) Clone() *PaymentPlan {
	c := *p
	c.NextPaymentDate = clonePtr(p.NextPaymentDate)
	c.Payments = make([]*Payment, len(p.Payments))
	for i, pay := range p.Payments {
		c.Payments[i] = pay.Clone()
	}
	return &c
}

type Payment struct {
	ID              string          `json:"id"`
	PlanID          string          `json:"planId"`
	PaymentNumber   int             `json:"paymentNumber"`
	PrincipalAmount decimal.Decimal `json:"principalAmount"`
	FeeAmount       decimal.Decimal `json:"feeAmount"`
	InterestAmount  decimal.Decimal `json:"interestAmount"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	RemainingAfter  decimal.Decimal `json:"remainingAfter"`
	DueDate         time.Time       `json:"dueDate"`
	PaymentDate     *time.Time      `json:"paymentDate,omitempty"`
	Status          PaymentStatus   `json:"status"`
}

// Clone returns a copy.
func (p *Payment) Clone() *Payment {
	c := *p
	c.PaymentDate = clonePtr(p.PaymentDate)
	return &c
}

// UpcomingPayment is a pending payment joined with the plan fields needed
// to notify its owner.
type UpcomingPayment struct {
	Payment
	UserID      int64       `json:"userId"`
	AccountID   string      `json:"accountId"`
	Currency    string      `json:"currency"`
	PaymentType PaymentType `json:"paymentType"`
}
