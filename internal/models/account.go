package models

import (
	"time"

	"github.com/shopspring/decimal"

	"famledger/internal/shared/apperror"
	"famledger/internal/shared/dateutil"
)

type AccountType string

const (
	AccountTypeBank       AccountType = "BANK"
	AccountTypeCash       AccountType = "CASH"
	AccountTypeSavings    AccountType = "SAVINGS"
	AccountTypeCreditCard AccountType = "CREDIT_CARD"
)

var accountTypes = map[AccountType]struct{}{
	AccountTypeBank:       {},
	AccountTypeCash:       {},
	AccountTypeSavings:    {},
	AccountTypeCreditCard: {},
}

var ErrAccountNotFound = apperror.NotFound("account not found")

// Account holds a materialized balance. CurrentBalance is only ever changed
// through the ledger, never recomputed from transactions.
type Account struct {
	ID              string              `json:"id"`
	UserID          int64               `json:"userId"`
	Name            string              `json:"name"`
	Type            AccountType         `json:"type"`
	Currency        string              `json:"currency"`
	CurrentBalance  decimal.Decimal     `json:"currentBalance"`
	CreditLimit     decimal.NullDecimal `json:"creditLimit"`
	BillingDay      *int                `json:"billingDay,omitempty"`
	PaymentDueDay   *int                `json:"paymentDueDay,omitempty"`
	LinkedAccountID *string             `json:"linkedAccountId,omitempty"`
	Active          bool                `json:"active"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

// IsCreditCard reports whether the account is a credit card.
func (a *Account) IsCreditCard() bool {
	return a.Type == AccountTypeCreditCard
}

// BillsOn reports whether date is the account's billing day. A billing day
// past the end of the month falls on the month's last day.
func (a *Account) BillsOn(date time.Time) bool {
	if a.BillingDay == nil {
		return false
	}
	billing := dateutil.ClampDay(date.Year(), date.Month(), *a.BillingDay)
	return billing.Day() == date.Day()
}

// CreateAccountParams contains parameters for creating a new account
type CreateAccountParams struct {
	ID              string
	UserID          int64
	Name            string
	Type            AccountType
	Currency        string
	InitialBalance  decimal.Decimal
	CreditLimit     decimal.NullDecimal
	BillingDay      *int
	PaymentDueDay   *int
	LinkedAccountID *string
}

// Validate validates the create parameters
func (p CreateAccountParams) Validate() error {
	if p.ID == "" {
		return apperror.Validation("account ID is required")
	}
	if p.UserID <= 0 {
		return apperror.Validation("valid user ID is required")
	}
	if p.Name == "" {
		return apperror.Validation("account name is required")
	}
	if _, ok := accountTypes[p.Type]; !ok {
		return apperror.Validationf("invalid account type %q", p.Type)
	}
	if len(p.Currency) != 3 {
		return apperror.Validation("3-letter currency code is required")
	}
	if p.BillingDay != nil && (*p.BillingDay < 1 || *p.BillingDay > 31) {
		return apperror.Validation("billing day must be between 1 and 31")
	}
	if p.PaymentDueDay != nil && (*p.PaymentDueDay < 1 || *p.PaymentDueDay > 31) {
		return apperror.Validation("payment due day must be between 1 and 31")
	}
	if p.Type != AccountTypeCreditCard {
		if p.LinkedAccountID != nil {
			return apperror.Validation("only credit card accounts can have a linked account")
		}
		return nil
	}
	if !p.CreditLimit.Valid || p.CreditLimit.Decimal.IsNegative() {
		return apperror.Validation("credit card accounts require a non-negative credit limit")
	}
	if p.LinkedAccountID != nil && *p.LinkedAccountID == p.ID {
		return apperror.Validation("a credit card cannot be linked to itself")
	}
	return nil
}

// Clone returns a deep copy.
func (a *Account) Clone() *Account {
	c := *a
	c.BillingDay = clonePtr(a.BillingDay)
	c.PaymentDueDay = clonePtr(a.PaymentDueDay)
	c.LinkedAccountID = clonePtr(a.LinkedAccountID)
	return &c
}
