// Package autopayoff settles credit cards from their linked accounts on the
// card's billing day.
package autopayoff

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"famledger/internal/domain/ledger"
	"famledger/internal/models"
	"famledger/internal/shared/apperror"
	"famledger/internal/shared/batch"
	"famledger/internal/shared/dateutil"
)

// Notifier receives payoff events.
type Notifier interface {
	Notify(ctx context.Context, userID int64, kind string, payload map[string]string) error
}

// Notification kinds emitted by the job.
const (
	KindPaid    = "autopayoff.paid"
	KindSkipped = "autopayoff.skipped"
)

// Skip reasons.
const (
	ReasonNoLinkedAccount   = "no linked account"
	ReasonCurrencyMismatch  = "linked account currency differs"
	ReasonInsufficientFunds = "insufficient funds in linked account"
	ReasonNoCreditLimit     = "no credit limit"
	ReasonNotBillingDay     = "not billing day"
)

const description = "Credit card auto-payoff"

// Service runs the daily payoff
type Service struct {
	store    models.Store
	ledger   *ledger.Service
	notifier Notifier
	log      logrus.FieldLogger
}

// NewService creates a new auto-payoff service. notifier may be nil.
func NewService(store models.Store, ledgerService *ledger.Service, notifier Notifier, log logrus.FieldLogger) *Service {
	return &Service{store: store, ledger: ledgerService, notifier: notifier, log: log}
}

// outcome describes what a payoff did, for logging and notifications.
type outcome struct {
	card   *models.Account
	amount decimal.Decimal
	txnID  string
}

// Run pays off every card billing on today. Each card is its own unit of
// work; a card that cannot be paid is skipped and never blocks the others.
func (s *Service) Run(ctx context.Context, today time.Time, concurrency int, observers ...batch.Observer) (*batch.Result, error) {
	today = dateutil.Truncate(today)
	cards, err := s.store.Accounts().ListCreditCardsBillingOn(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("failed to list credit cards billing on %s: %w", today.Format(dateutil.Layout), err)
	}

	result := batch.Run(ctx, cards, concurrency,
		func(card *models.Account) string { return card.ID },
		func(ctx context.Context, card *models.Account) error {
			return s.PayOff(ctx, card.ID, today)
		},
		observers...,
	)
	return result, nil
}

// PayOff settles one card as of today. Returns a batch skip error when the
// card is not eligible.
func (s *Service) PayOff(ctx context.Context, cardID string, today time.Time) error {
	var out outcome
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos models.Repositories) error {
		var err error
		out, err = s.payOff(ctx, repos, cardID, today)
		return err
	})

	fields := logrus.Fields{"card_id": cardID, "date": today.Format(dateutil.Layout)}
	switch {
	case err == nil:
		fields["amount"] = out.amount.String()
		s.log.WithFields(fields).Info("Credit card paid off")
		if out.amount.IsPositive() {
			s.notify(ctx, out.card.UserID, KindPaid, map[string]string{
				"accountId":     cardID,
				"amount":        out.amount.String(),
				"currency":      out.card.Currency,
				"transactionId": out.txnID,
			})
		}
	case batch.IsSkip(err):
		s.log.WithFields(fields).WithError(err).Warn("Credit card payoff skipped")
		if out.card != nil {
			s.notify(ctx, out.card.UserID, KindSkipped, map[string]string{
				"accountId": cardID,
				"reason":    err.Error(),
			})
		}
	default:
		s.log.WithFields(fields).WithError(err).Error("Credit card payoff failed")
	}
	return err
}

func (s *Service) payOff(ctx context.Context, repos models.Repositories, cardID string, today time.Time) (outcome, error) {
	// Read the card unlocked to learn its linked account, then lock both rows
	// in the same order as every other two-account path.
	peek, err := repos.Accounts().GetByID(ctx, cardID)
	if err != nil {
		return outcome{}, err
	}
	if !eligible(peek, today) {
		return outcome{}, batch.Skip(ReasonNotBillingDay)
	}
	ids := []string{cardID}
	if peek.LinkedAccountID != nil {
		ids = append(ids, *peek.LinkedAccountID)
	}
	locked, err := ledger.LockAccounts(ctx, repos, ids...)
	if err != nil {
		return outcome{}, err
	}

	card := locked[cardID]
	out := outcome{card: card, amount: decimal.Zero}
	if !eligible(card, today) {
		return outcome{}, batch.Skip(ReasonNotBillingDay)
	}
	if !card.CreditLimit.Valid {
		return out, batch.Skip(ReasonNoCreditLimit)
	}

	limit := card.CreditLimit.Decimal
	spent := limit.Sub(card.CurrentBalance)
	accessor := s.ledger.Accessor()
	if !spent.IsPositive() {
		return out, accessor.SetBalance(ctx, repos, card.ID, limit)
	}

	if card.LinkedAccountID == nil {
		return out, batch.Skip(ReasonNoLinkedAccount)
	}
	linked, ok := locked[*card.LinkedAccountID]
	if !ok {
		return out, apperror.Conflictf("linked account of card %s changed during payoff", card.ID)
	}
	if linked.Currency != card.Currency {
		return out, batch.Skip(ReasonCurrencyMismatch)
	}
	if linked.CurrentBalance.LessThan(spent) {
		return out, batch.Skipf("%s: need %s, have %s", ReasonInsufficientFunds, spent, linked.CurrentBalance)
	}

	cardRef := card.ID
	txn, err := s.ledger.Record(ctx, repos, models.CreateTransactionParams{
		UserID:      card.UserID,
		AccountID:   linked.ID,
		ToAccountID: &cardRef,
		Type:        models.TransactionTypeTransfer,
		Amount:      spent,
		Currency:    linked.Currency,
		Date:        today,
		Description: description,
	})
	if err != nil {
		return out, err
	}
	if err := accessor.SetBalance(ctx, repos, card.ID, limit); err != nil {
		return out, err
	}

	out.amount = spent
	out.txnID = txn.ID
	return out, nil
}

func eligible(card *models.Account, today time.Time) bool {
	return card.Active && card.IsCreditCard() && card.BillsOn(today)
}

func (s *Service) notify(ctx context.Context, userID int64, kind string, payload map[string]string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userID, kind, payload); err != nil {
		s.log.WithError(err).WithField("kind", kind).Warn("Failed to send auto-payoff notification")
	}
}
