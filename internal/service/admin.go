package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/mmeshcher/bankportal/internal/apperr"
	"github.com/mmeshcher/bankportal/internal/model"
	"github.com/mmeshcher/bankportal/internal/validation"
)

// ListStaff возвращает сотрудников и администраторов.
func (s *Service) ListStaff(ctx context.Context) ([]model.User, error) {
	staff, err := s.repo.ListStaff(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return staff, nil
}

// CreateStaff создаёт учётную запись сотрудника или администратора.
func (s *Service) CreateStaff(ctx context.Context, actor Actor, reg validation.Registration, role string) (*model.User, error) {
	r := model.Role(role)
	if !r.IsStaff() {
		return nil, apperr.Validation("Invalid role", map[string]string{"role": "Role must be Employee or Admin"})
	}

	u, err := s.createAccount(ctx, reg, r)
	if err != nil {
		return nil, err
	}

	s.logger.Info("staff account created",
		zap.String("user_id", u.ID),
		zap.String("role", string(u.Role)),
		zap.String("actor", actor.Username),
	)
	return u, nil
}

// UpdateRole меняет роль пользователя. Администратор не может изменить собственную роль.
func (s *Service) UpdateRole(ctx context.Context, actor Actor, userID, role string) (*model.User, error) {
	r := model.Role(role)
	if !r.Valid() {
		return nil, apperr.Validation("Invalid role", map[string]string{"role": "Role must be Customer, Employee or Admin"})
	}
	if actor.ID == userID {
		return nil, apperr.Validation("You cannot change your own role", nil)
	}

	u, err := s.repo.UpdateUserRole(ctx, userID, r)
	if err != nil {
		return nil, translate(err)
	}

	s.logger.Info("user role updated",
		zap.String("user_id", u.ID),
		zap.String("role", string(u.Role)),
		zap.String("actor", actor.Username),
	)
	return u, nil
}

// DeleteStaff удаляет учётную запись сотрудника. Клиентов и самого себя удалить нельзя.
func (s *Service) DeleteStaff(ctx context.Context, actor Actor, userID string) error {
	if actor.ID == userID {
		return apperr.Validation("You cannot delete your own account", nil)
	}

	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return translate(err)
	}
	if !u.Role.IsStaff() {
		return apperr.Validation("Only employee and admin accounts can be deleted", nil)
	}

	if err := s.repo.DeleteStaff(ctx, userID); err != nil {
		return translate(err)
	}

	if err := s.sessions.RemoveAll(ctx, userID); err != nil {
		s.logger.Warn("session registry remove failed", zap.String("user_id", userID), zap.Error(err))
	}

	s.logger.Info("staff account deleted", zap.String("user_id", userID), zap.String("actor", actor.Username))
	return nil
}
