package models

import (
	"time"

	"github.com/shopspring/decimal"

	"famledger/internal/shared/apperror"
)

type TransactionType string

const (
	TransactionTypeIncome   TransactionType = "INCOME"
	TransactionTypeExpense  TransactionType = "EXPENSE"
	TransactionTypeTransfer TransactionType = "TRANSFER"
)

// IsValid checks the type against the known set.
func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypeIncome, TransactionTypeExpense, TransactionTypeTransfer:
		return true
	}
	return false
}

// PaymentType describes how an expense is settled.
type PaymentType string

const (
	PaymentTypeOneTime     PaymentType = "ONE_TIME"
	PaymentTypeInstallment PaymentType = "INSTALLMENT"
	PaymentTypeRevolving   PaymentType = "REVOLVING"
)

var ErrTransactionNotFound = apperror.NotFound("transaction not found")

type Transaction struct {
	ID            string              `json:"id"`
	UserID        int64               `json:"userId"`
	AccountID     string              `json:"accountId"`
	ToAccountID   *string             `json:"toAccountId,omitempty"`
	ExchangeRate  decimal.NullDecimal `json:"exchangeRate"`
	CategoryID    *string             `json:"categoryId,omitempty"`
	Type          TransactionType     `json:"type"`
	Amount        decimal.Decimal     `json:"amount"`
	Currency      string              `json:"currency"`
	Date          time.Time           `json:"date"`
	Description   string              `json:"description"`
	PaymentType   PaymentType         `json:"paymentType"`
	PaymentPlanID *string             `json:"paymentPlanId,omitempty"`
	RecurringID   *string             `json:"recurringId,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

// CreditedAmount is what the destination of a transfer receives.
func (t *Transaction) CreditedAmount() decimal.Decimal {
	if t.ExchangeRate.Valid {
		return t.Amount.Mul(t.ExchangeRate.Decimal)
	}
	return t.Amount
}

type CreateTransactionParams struct {
	UserID       int64
	AccountID    string
	ToAccountID  *string
	ExchangeRate decimal.NullDecimal
	CategoryID   *string
	Type         TransactionType
	Amount       decimal.Decimal
	Currency     string
	Date         time.Time
	Description  string
	RecurringID  *string
}

// Validate validates the create parameters
func (p CreateTransactionParams) Validate() error {
	if p.AccountID == "" {
		return apperror.Validation("account ID is required")
	}
	if !p.Type.IsValid() {
		return apperror.Validationf("invalid transaction type %q", p.Type)
	}
	if !p.Amount.IsPositive() {
		return apperror.Validation("amount must be positive")
	}
	if p.Date.IsZero() {
		return apperror.Validation("transaction date is required")
	}
	return validateTransfer(p.Type, p.AccountID, p.ToAccountID, p.ExchangeRate)
}

type UpdateTransactionParams struct {
	AccountID    *string
	ToAccountID  *string
	ExchangeRate *decimal.Decimal
	CategoryID   *string
	Type         *TransactionType
	Amount       *decimal.Decimal
	Date         *time.Time
	Description  *string
}

// Apply returns a copy of t with the non-nil fields of p applied, validated.
func (p UpdateTransactionParams) Apply(t *Transaction) (*Transaction, error) {
	updated := *t
	if p.AccountID != nil {
		updated.AccountID = *p.AccountID
	}
	if p.ToAccountID != nil {
		updated.ToAccountID = p.ToAccountID
	}
	if p.ExchangeRate != nil {
		updated.ExchangeRate = decimal.NewNullDecimal(*p.ExchangeRate)
	}
	if p.CategoryID != nil {
		updated.CategoryID = p.CategoryID
	}
	if p.Type != nil {
		updated.Type = *p.Type
	}
	if p.Amount != nil {
		updated.Amount = *p.Amount
	}
	if p.Date != nil {
		updated.Date = *p.Date
	}
	if p.Description != nil {
		updated.Description = *p.Description
	}
	if updated.Type != TransactionTypeTransfer {
		updated.ToAccountID = nil
		updated.ExchangeRate = decimal.NullDecimal{}
	}

	if !updated.Type.IsValid() {
		return nil, apperror.Validationf("invalid transaction type %q", updated.Type)
	}
	if !updated.Amount.IsPositive() {
		return nil, apperror.Validation("amount must be positive")
	}
	if err := validateTransfer(updated.Type, updated.AccountID, updated.ToAccountID, updated.ExchangeRate); err != nil {
		return nil, err
	}
	return &updated, nil
}

func validateTransfer(t TransactionType, from string, to *string, rate decimal.NullDecimal) error {
	if t != TransactionTypeTransfer {
		return nil
	}
	if to == nil || *to == "" {
		return apperror.Validation("transfer requires a destination account")
	}
	if *to == from {
		return apperror.Validation("transfer destination must differ from the source account")
	}
	if rate.Valid && !rate.Decimal.IsPositive() {
		return apperror.Validation("exchange rate must be positive")
	}
	return nil
}

// Clone returns a deep copy.
func (t *Transaction) Clone() *Transaction {
	c := *t
	c.ToAccountID = clonePtr(t.ToAccountID)
	c.CategoryID = clonePtr(t.CategoryID)
	c.PaymentPlanID = clonePtr(t.PaymentPlanID)
	c.RecurringID = clonePtr(t.RecurringID)
	return &c
}
