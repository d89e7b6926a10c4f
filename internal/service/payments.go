package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/mmeshcher/bankportal/internal/apperr"
	"github.com/mmeshcher/bankportal/internal/model"
	"github.com/mmeshcher/bankportal/internal/repository"
	"github.com/mmeshcher/bankportal/internal/validation"
)

const paymentIDAttempts = 3

// CreatePayment создаёт платёж в статусе pending. Баланс не меняется до одобрения сотрудником.
func (s *Service) CreatePayment(ctx context.Context, userID string, in validation.Payment, meta RequestMeta) (*model.Payment, error) {
	amount, errs := validation.ValidatePayment(in)
	if len(errs) > 0 {
		return nil, apperr.Validation("Validation failed", errs)
	}

	np := model.NewPayment{
		UserID:           userID,
		Amount:           amount,
		Currency:         model.Currency(in.Currency),
		RecipientName:    in.RecipientName,
		RecipientBank:    in.RecipientBank,
		RecipientAccount: in.RecipientAccount,
		SwiftCode:        in.SwiftCode,
		Provider:         model.Provider(in.Provider),
		PaymentReference: in.PaymentReference,
		CreatedIP:        meta.IP,
		UserAgent:        meta.UserAgent,
	}

	var lastErr error
	for i := 0; i < paymentIDAttempts; i++ {
		id, err := s.newPaymentID()
		if err != nil {
			return nil, apperr.Internal(err)
		}
		np.PaymentID = id

		p, err := s.repo.CreatePayment(ctx, np)
		if err == nil {
			s.logger.Info("payment created",
				zap.String("payment_id", p.PaymentID),
				zap.String("user_id", userID),
				zap.String("amount", p.Amount.StringFixed(2)),
				zap.String("currency", string(p.Currency)),
			)
			return p, nil
		}

		var dup *repository.DuplicateError
		if !errors.As(err, &dup) || dup.Field != "paymentId" {
			return nil, translate(err)
		}
		lastErr = err
	}

	return nil, apperr.Internal(fmt.Errorf("generate unique payment id: %w", lastErr))
}

func (s *Service) newPaymentID() (string, error) {
	entropy := make([]byte, 4)
	if _, err := io.ReadFull(s.entropy, entropy); err != nil {
		return "", fmt.Errorf("read entropy: %w", err)
	}
	return model.NewPaymentID(s.now(), entropy), nil
}

// ListPayments возвращает платежи пользователя.
func (s *Service) ListPayments(ctx context.Context, userID string) ([]model.Payment, error) {
	payments, err := s.repo.ListPaymentsByUser(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	return payments, nil
}

// GetPayment возвращает платёж пользователя.
func (s *Service) GetPayment(ctx context.Context, userID, paymentID string) (*model.Payment, error) {
	p, err := s.repo.GetPaymentForUser(ctx, userID, paymentID)
	if err != nil {
		return nil, translate(err)
	}
	return p, nil
}

// ListAllPayments возвращает платежи всех клиентов для сотрудников, при непустом status только в этом статусе.
func (s *Service) ListAllPayments(ctx context.Context, status string) ([]model.Payment, error) {
	st := model.PaymentStatus(status)
	if status != "" && !st.Valid() {
		return nil, apperr.Validation("Invalid status filter", map[string]string{"status": "Unknown payment status"})
	}

	payments, err := s.repo.ListPayments(ctx, st)
	if err != nil {
		return nil, translate(err)
	}
	return payments, nil
}

// PaymentStats возвращает количество и сумму платежей по статусам.
func (s *Service) PaymentStats(ctx context.Context) ([]model.PaymentStat, error) {
	stats, err := s.repo.PaymentStats(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return stats, nil
}

// DecidePayment применяет решение сотрудника к платежу.
// При одобрении сумма списывается с плательщика в той же транзакции, что и смена статуса.
// Обновление счётчика получателя выполняется после фиксации, и его ошибка не отменяет решение.
func (s *Service) DecidePayment(ctx context.Context, actor Actor, paymentID, status, reason string, meta RequestMeta) (*model.Payment, error) {
	next := model.PaymentStatus(status)
	if !next.Valid() || next == model.PaymentStatusPending {
		return nil, apperr.Validation("Invalid status", map[string]string{
			"status": "Status must be one of processing, completed, failed, cancelled",
		})
	}

	p, err := s.repo.DecidePayment(ctx, model.Decision{
		PaymentID: paymentID,
		Status:    next,
		Reason:    reason,
		ActorID:   actor.ID,
		Actor:     actor.Username,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
	})
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientFunds) {
			s.logger.Warn("payment approval rejected: insufficient funds",
				zap.String("payment_id", paymentID),
				zap.String("actor", actor.Username),
			)
		}
		return nil, translate(err)
	}

	s.logger.Info("payment status updated",
		zap.String("payment_id", p.PaymentID),
		zap.String("status", string(p.Status)),
		zap.String("actor", actor.Username),
	)

	if p.Status == model.PaymentStatusCompleted {
		s.markBeneficiaryUsed(ctx, p)
	}

	return p, nil
}

func (s *Service) markBeneficiaryUsed(ctx context.Context, p *model.Payment) {
	err := s.repo.MarkBeneficiaryUsedByAccount(ctx, p.UserID, p.RecipientAccount)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrBeneficiaryNotFound):
		s.logger.Debug("no saved beneficiary for payment", zap.String("payment_id", p.PaymentID))
	default:
		s.logger.Warn("beneficiary usage update failed",
			zap.String("payment_id", p.PaymentID),
			zap.Error(err),
		)
	}
}
