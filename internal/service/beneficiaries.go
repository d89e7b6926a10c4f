package service

import (
	"context"

	"github.com/mmeshcher/bankportal/internal/apperr"
	"github.com/mmeshcher/bankportal/internal/model"
	"github.com/mmeshcher/bankportal/internal/validation"
)

// ListBeneficiaries возвращает сохранённых получателей пользователя.
func (s *Service) ListBeneficiaries(ctx context.Context, userID string) ([]model.Beneficiary, error) {
	list, err := s.repo.ListBeneficiaries(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	return list, nil
}

// CreateBeneficiary сохраняет получателя.
func (s *Service) CreateBeneficiary(ctx context.Context, userID string, in validation.Beneficiary) (*model.Beneficiary, error) {
	if errs := validation.ValidateBeneficiary(in); len(errs) > 0 {
		return nil, apperr.Validation("Validation failed", errs)
	}

	b, err := s.repo.CreateBeneficiary(ctx, model.Beneficiary{
		UserID:        userID,
		Name:          in.Name,
		BankName:      in.BankName,
		AccountNumber: in.AccountNumber,
		SwiftCode:     in.SwiftCode,
		Currency:      model.Currency(in.Currency),
	})
	if err != nil {
		return nil, translate(err)
	}
	return b, nil
}

// DeleteBeneficiary удаляет получателя.
func (s *Service) DeleteBeneficiary(ctx context.Context, userID, id string) error {
	return translate(s.repo.DeleteBeneficiary(ctx, userID, id))
}

// UseBeneficiary отмечает использование получателя.
func (s *Service) UseBeneficiary(ctx context.Context, userID, id string) (*model.Beneficiary, error) {
	b, err := s.repo.MarkBeneficiaryUsed(ctx, userID, id)
	if err != nil {
		return nil, translate(err)
	}
	return b, nil
}
