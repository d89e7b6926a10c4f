package service

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/bankportal/internal/apperr"
	"github.com/mmeshcher/bankportal/internal/ledger"
	"github.com/mmeshcher/bankportal/internal/model"
	"github.com/mmeshcher/bankportal/internal/validation"
)

// Balance - текущий баланс счёта.
type Balance struct {
	AccountNumber string          `json:"accountNumber"`
	Balance       decimal.Decimal `json:"balance"`
	Currency      model.Currency  `json:"currency"`
}

// GetBalance возвращает баланс пользователя.
func (s *Service) GetBalance(ctx context.Context, userID string) (*Balance, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	return &Balance{AccountNumber: u.AccountNumber, Balance: u.Balance, Currency: u.Currency}, nil
}

// ListTransactions возвращает журнал операций пользователя.
func (s *Service) ListTransactions(ctx context.Context, userID string) ([]model.Transaction, error) {
	txs, err := s.repo.ListTransactions(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	return txs, nil
}

// Deposit зачисляет средства на счёт пользователя.
func (s *Service) Deposit(ctx context.Context, userID, amount, description string, meta RequestMeta) (*model.Transaction, error) {
	value, msg := validation.ParseAmount(amount)
	if msg != "" {
		return nil, apperr.Validation("Validation failed", map[string]string{"amount": msg})
	}

	description = strings.TrimSpace(description)
	if description == "" {
		description = "Deposit"
	}

	t, err := s.repo.ApplyLedgerEntry(ctx, model.LedgerEntry{
		UserID:      userID,
		Amount:      value,
		Type:        model.TransactionDeposit,
		Category:    "Deposit",
		Description: description,
		Metadata:    model.TransactionMetadata{IP: meta.IP, UserAgent: meta.UserAgent},
	})
	if err != nil {
		return nil, translate(err)
	}

	s.logger.Info("deposit applied", zap.String("user_id", userID), zap.String("amount", value.StringFixed(2)))
	return t, nil
}

// RecalculateBalance пересчитывает баланс по журналу операций и исправляет расхождения.
func (s *Service) RecalculateBalance(ctx context.Context, userID string) (*model.RecalculationResult, error) {
	res, err := s.repo.Recalculate(ctx, userID)
	if err != nil {
		var negative *ledger.NegativeReplayError
		if errors.As(err, &negative) {
			s.logger.Error("balance recalculation refused",
				zap.String("user_id", userID),
				zap.String("balance", negative.Stored.StringFixed(2)),
				zap.String("replayed", negative.Replayed.StringFixed(2)),
			)
		}
		return nil, translate(err)
	}

	if res.Patched > 0 || !res.PreviousBalance.Equal(res.Balance) {
		s.logger.Warn("balance drift corrected",
			zap.String("user_id", userID),
			zap.String("previous", res.PreviousBalance.StringFixed(2)),
			zap.String("balance", res.Balance.StringFixed(2)),
			zap.Int("patched", res.Patched),
		)
	}
	return res, nil
}
