package account

import (
	"strings"

	"famledger/internal/shared/apperror"
)

// Common ISO 4217 currency codes
var validCurrencies = map[string]struct{}{
	"BRL": {}, "USD": {}, "EUR": {}, "GBP": {}, "JPY": {},
	"CHF": {}, "CAD": {}, "AUD": {}, "NZD": {}, "CNY": {},
	"INR": {}, "MXN": {}, "ZAR": {}, "SEK": {}, "NOK": {},
	"DKK": {}, "PLN": {}, "TRY": {}, "RUB": {}, "KRW": {},
	"SGD": {}, "HKD": {}, "ARS": {}, "CLP": {}, "COP": {},
}

// Domain errors
var (
	ErrInvalidCurrency     = apperror.Validation("valid ISO 4217 currency is required")
	ErrInvalidUser         = apperror.Validation("valid user ID is required")
	ErrLinkedNotOwned      = apperror.Validation("linked account belongs to another user")
	ErrLinkedIsCard        = apperror.Validation("a credit card cannot be linked to another credit card")
	ErrLinkedWrongCurrency = apperror.Validation("linked account must use the card's currency")
)

// IsValidCurrency reports whether code is a supported ISO 4217 code.
func IsValidCurrency(code string) bool {
	_, ok := validCurrencies[strings.ToUpper(code)]
	return ok
}
