package account

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"famledger/internal/models"
)

// Service contains the business logic for account operations
type Service struct {
	repo models.AccountRepository
	log  logrus.FieldLogger
}

// NewService creates a new account service
func NewService(repo models.AccountRepository, log logrus.FieldLogger) *Service {
	return &Service{repo: repo, log: log}
}

// CreateAccount creates a new account with business validation. A missing ID
// is generated. A linked payoff account must be a non-card account of the
// same user and currency.
func (s *Service) CreateAccount(ctx context.Context, params models.CreateAccountParams) (*models.Account, error) {
	if params.ID == "" {
		params.ID = uuid.NewString()
	}
	params.Currency = strings.ToUpper(params.Currency)
	if !IsValidCurrency(params.Currency) {
		return nil, ErrInvalidCurrency
	}
	if params.UserID <= 0 {
		return nil, ErrInvalidUser
	}

	if err := params.Validate(); err != nil {
		return nil, err
	}

	if params.LinkedAccountID != nil {
		if err := s.checkLinked(ctx, params); err != nil {
			return nil, err
		}
	}

	acc, err := s.repo.Create(ctx, params)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"account": acc.ID,
		"user":    acc.UserID,
		"type":    acc.Type,
	}).Info("Account created")
	return acc, nil
}

func (s *Service) checkLinked(ctx context.Context, params models.CreateAccountParams) error {
	linked, err := s.repo.GetByID(ctx, *params.LinkedAccountID)
	if err != nil {
		return err
	}
	switch {
	case linked.UserID != params.UserID:
		return ErrLinkedNotOwned
	case linked.IsCreditCard():
		return ErrLinkedIsCard
	case linked.Currency != params.Currency:
		return ErrLinkedWrongCurrency
	}
	return nil
}

// GetAccount retrieves an account by ID and verifies user ownership. Accounts
// of other users are reported as not found.
func (s *Service) GetAccount(ctx context.Context, accountID string, userID int64) (*models.Account, error) {
	acc, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if acc.UserID != userID {
		return nil, models.ErrAccountNotFound
	}

	return acc, nil
}

// ListAccountsByUserID retrieves all accounts for a specific user
func (s *Service) ListAccountsByUserID(ctx context.Context, userID int64) ([]*models.Account, error) {
	if userID <= 0 {
		return nil, ErrInvalidUser
	}

	return s.repo.ListByUserID(ctx, userID)
}
