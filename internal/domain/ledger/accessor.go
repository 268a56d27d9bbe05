// Package ledger owns account balances. Every balance change goes through
// Accessor, and the transaction service keeps the transaction rows and the
// balances they imply in the same unit of work.
package ledger

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"famledger/internal/models"
)

// Sign selects whether an effect is applied or reversed.
type Sign int

const (
	Apply  Sign = 1
	Revert Sign = -1
)

// Delta returns the balance change a transaction of type t and amount has on
// its source account. INCOME adds, EXPENSE and the debit side of a TRANSFER
// subtract.
func Delta(t models.TransactionType, amount decimal.Decimal, sign Sign) decimal.Decimal {
	delta := amount
	if t != models.TransactionTypeIncome {
		delta = delta.Neg()
	}
	if sign == Revert {
		delta = delta.Neg()
	}
	return delta
}

// Accessor is the only writer of Account.CurrentBalance.
type Accessor struct {
	log logrus.FieldLogger
}

// NewAccessor creates a new ledger accessor
func NewAccessor(log logrus.FieldLogger) *Accessor {
	return &Accessor{log: log}
}

// ApplyEffect locks the account and moves its balance by the effect of a
// transaction of type t. Reversal is the same call with sign Revert.
func (a *Accessor) ApplyEffect(ctx context.Context, repos models.Repositories, accountID string, t models.TransactionType, amount decimal.Decimal, sign Sign) (*models.Account, error) {
	account, err := repos.Accounts().GetByIDForUpdate(ctx, accountID)
	if err != nil {
		return nil, err
	}

	delta := Delta(t, amount, sign)
	balance := account.CurrentBalance.Add(delta)
	if err := repos.Accounts().UpdateBalance(ctx, accountID, balance); err != nil {
		return nil, fmt.Errorf("failed to update balance of account %s: %w", accountID, err)
	}

	a.log.WithFields(logrus.Fields{
		"account_id": accountID,
		"type":       t,
		"delta":      delta.String(),
		"balance":    balance.String(),
	}).Debug("Ledger effect applied")

	account.CurrentBalance = balance
	return account, nil
}

// ApplyTransaction applies (or reverts) every effect of txn: the source
// account effect and, for transfers, the credit to the destination.
func (a *Accessor) ApplyTransaction(ctx context.Context, repos models.Repositories, txn *models.Transaction, sign Sign) error {
	if txn.Type == models.TransactionTypeTransfer {
		if txn.ToAccountID == nil {
			return fmt.Errorf("transfer %s has no destination account", txn.ID)
		}
		// Lock both rows in a fixed order so concurrent transfers between the
		// same pair of accounts cannot deadlock.
		if _, err := LockAccounts(ctx, repos, txn.AccountID, *txn.ToAccountID); err != nil {
			return err
		}
	}

	if _, err := a.ApplyEffect(ctx, repos, txn.AccountID, txn.Type, txn.Amount, sign); err != nil {
		return err
	}
	if txn.Type != models.TransactionTypeTransfer {
		return nil
	}
	_, err := a.ApplyEffect(ctx, repos, *txn.ToAccountID, models.TransactionTypeIncome, txn.CreditedAmount(), sign)
	return err
}

// SetBalance overwrites a balance. Used by the credit card payoff reset.
func (a *Accessor) SetBalance(ctx context.Context, repos models.Repositories, accountID string, balance decimal.Decimal) error {
	if _, err := repos.Accounts().GetByIDForUpdate(ctx, accountID); err != nil {
		return err
	}
	if err := repos.Accounts().UpdateBalance(ctx, accountID, balance); err != nil {
		return fmt.Errorf("failed to set balance of account %s: %w", accountID, err)
	}
	a.log.WithFields(logrus.Fields{
		"account_id": accountID,
		"balance":    balance.String(),
	}).Debug("Ledger balance reset")
	return nil
}

// LockAccounts locks the given accounts for the unit of work in ascending id
// order and returns the locked rows by id. Every path that holds more than
// one account row must lock through here.
func LockAccounts(ctx context.Context, repos models.Repositories, ids ...string) (map[string]*models.Account, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	locked := make(map[string]*models.Account, len(sorted))
	for _, id := range sorted {
		if _, ok := locked[id]; ok {
			continue
		}
		account, err := repos.Accounts().GetByIDForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		locked[id] = account
	}
	return locked, nil
}
