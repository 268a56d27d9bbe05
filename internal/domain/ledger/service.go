package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"famledger/internal/models"
	"famledger/internal/shared/apperror"
)

// Converter resolves exchange rates for cross-currency transfers.
type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (converted, rate decimal.Decimal, err error)
}

// Service creates, updates and deletes transactions together with their
// balance effects.
type Service struct {
	store    models.Store
	accessor *Accessor
	fx       Converter
	log      logrus.FieldLogger
}

// NewService creates a new ledger service. fx may be nil, in which case a
// cross-currency transfer must carry its own exchange rate.
func NewService(store models.Store, accessor *Accessor, fx Converter, log logrus.FieldLogger) *Service {
	return &Service{store: store, accessor: accessor, fx: fx, log: log}
}

// Accessor returns the balance accessor used by the service.
func (s *Service) Accessor() *Accessor {
	return s.accessor
}

// GetTransaction retrieves a transaction by ID
func (s *Service) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	return s.store.Transactions().GetByID(ctx, id)
}

// CreateTransaction records a transaction and applies its effects atomically.
func (s *Service) CreateTransaction(ctx context.Context, params models.CreateTransactionParams) (*models.Transaction, error) {
	var txn *models.Transaction
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos models.Repositories) error {
		var err error
		txn, err = s.Record(ctx, repos, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// Record is CreateTransaction inside a caller-owned unit of work.
func (s *Service) Record(ctx context.Context, repos models.Repositories, params models.CreateTransactionParams) (*models.Transaction, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	account, err := repos.Accounts().GetByID(ctx, params.AccountID)
	if err != nil {
		return nil, err
	}

	txn := &models.Transaction{
		ID:           uuid.NewString(),
		UserID:       params.UserID,
		AccountID:    params.AccountID,
		ToAccountID:  params.ToAccountID,
		ExchangeRate: params.ExchangeRate,
		CategoryID:   params.CategoryID,
		Type:         params.Type,
		Amount:       params.Amount,
		Currency:     params.Currency,
		Date:         params.Date,
		Description:  params.Description,
		PaymentType:  models.PaymentTypeOneTime,
		RecurringID:  params.RecurringID,
	}
	if txn.UserID == 0 {
		txn.UserID = account.UserID
	}
	if txn.Currency == "" {
		txn.Currency = account.Currency
	}
	if txn.Type != models.TransactionTypeTransfer {
		txn.ToAccountID = nil
		txn.ExchangeRate = decimal.NullDecimal{}
	}
	if err := s.resolveRate(ctx, repos, txn); err != nil {
		return nil, err
	}

	if err := s.accessor.ApplyTransaction(ctx, repos, txn, Apply); err != nil {
		return nil, err
	}
	if err := repos.Transactions().Create(ctx, txn); err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"transaction_id": txn.ID,
		"account_id":     txn.AccountID,
		"type":           txn.Type,
		"amount":         txn.Amount.String(),
	}).Debug("Transaction recorded")

	return txn, nil
}

// UpdateTransaction reverts the stored effects and applies the updated ones
// in one unit of work. Amount, type and accounts are frozen while a payment
// plan is attached.
func (s *Service) UpdateTransaction(ctx context.Context, id string, params models.UpdateTransactionParams) (*models.Transaction, error) {
	var updated *models.Transaction
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos models.Repositories) error {
		old, err := repos.Transactions().GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if old.PaymentPlanID != nil && changesEffect(params) {
			return apperror.Conflict("transaction has a payment plan; cancel it before changing amount, type or accounts")
		}

		updated, err = params.Apply(old)
		if err != nil {
			return err
		}
		if params.ExchangeRate == nil && (params.AccountID != nil || params.ToAccountID != nil) {
			updated.ExchangeRate = decimal.NullDecimal{}
		}
		if _, err := repos.Accounts().GetByID(ctx, updated.AccountID); err != nil {
			return err
		}
		if err := s.resolveRate(ctx, repos, updated); err != nil {
			return err
		}

		if err := s.accessor.ApplyTransaction(ctx, repos, old, Revert); err != nil {
			return err
		}
		if err := s.accessor.ApplyTransaction(ctx, repos, updated, Apply); err != nil {
			return err
		}
		if err := repos.Transactions().Update(ctx, updated); err != nil {
			return fmt.Errorf("failed to update transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteTransaction reverts the effects of a transaction and removes it.
func (s *Service) DeleteTransaction(ctx context.Context, id string) error {
	return s.store.WithinTx(ctx, func(ctx context.Context, repos models.Repositories) error {
		txn, err := repos.Transactions().GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if txn.PaymentPlanID != nil {
			plan, err := repos.PaymentPlans().GetByID(ctx, *txn.PaymentPlanID)
			if err != nil && !apperror.IsNotFound(err) {
				return err
			}
			if plan != nil && plan.Status == models.PlanStatusActive {
				return apperror.Conflict("transaction has an active payment plan")
			}
		}

		if err := s.accessor.ApplyTransaction(ctx, repos, txn, Revert); err != nil {
			return err
		}
		if err := repos.Transactions().Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to delete transaction: %w", err)
		}
		return nil
	})
}

// resolveRate looks up the destination of a transfer and, when the
// currencies differ and no rate was given, stores the converter's rate so
// a later reversal credits back exactly what was credited.
func (s *Service) resolveRate(ctx context.Context, repos models.Repositories, txn *models.Transaction) error {
	if txn.Type != models.TransactionTypeTransfer {
		return nil
	}
	dest, err := repos.Accounts().GetByID(ctx, *txn.ToAccountID)
	if err != nil {
		return err
	}
	if txn.ExchangeRate.Valid || dest.Currency == txn.Currency {
		return nil
	}
	if s.fx == nil {
		return apperror.Validationf("exchange rate required for transfer from %s to %s", txn.Currency, dest.Currency)
	}
	_, rate, err := s.fx.Convert(ctx, txn.Amount, txn.Currency, dest.Currency)
	if err != nil {
		return err
	}
	txn.ExchangeRate = decimal.NewNullDecimal(rate)
	return nil
}

func changesEffect(p models.UpdateTransactionParams) bool {
	return p.Amount != nil || p.Type != nil || p.AccountID != nil || p.ToAccountID != nil || p.ExchangeRate != nil
}
