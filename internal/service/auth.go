package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/bankportal/internal/apperr"
	"github.com/mmeshcher/bankportal/internal/mfa"
	"github.com/mmeshcher/bankportal/internal/model"
	"github.com/mmeshcher/bankportal/internal/repository"
	"github.com/mmeshcher/bankportal/internal/validation"
)

// errInvalidCredentials - единственный ответ на неверный логин, номер счёта или пароль.
var errInvalidCredentials = apperr.Authentication("Invalid credentials", nil)

// errInvalidMFACode не уточняет, был ли введён TOTP или резервный код.
var errInvalidMFACode = apperr.Validation("Invalid verification code", nil)

// AuthResult - итог регистрации или входа.
// При RequiresMFA токен не выдаётся и сессия не открывается.
type AuthResult struct {
	Token                string
	ExpiresAt            time.Time
	User                 *model.User
	RequiresMFA          bool
	Username             string
	BackupCodesRemaining *int
}

// MFALogin - второй шаг входа.
type MFALogin struct {
	Username      string
	AccountNumber string
	Password      string
	Token         string
	BackupCode    string
}

// Register создаёт учётную запись клиента и сразу выдаёт токен.
func (s *Service) Register(ctx context.Context, reg validation.Registration) (*AuthResult, error) {
	u, err := s.createAccount(ctx, reg, model.RoleCustomer)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", zap.String("user_id", u.ID), zap.String("username", u.Username))
	return s.startSession(ctx, u)
}

func (s *Service) createAccount(ctx context.Context, reg validation.Registration, role model.Role) (*model.User, error) {
	if errs := validation.ValidateRegistration(reg); len(errs) > 0 {
		return nil, apperr.Validation("Validation failed", errs)
	}

	hash, err := s.hasher.Hash(reg.Password)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("hash password: %w", err))
	}

	u, err := s.repo.CreateUser(ctx, model.NewUser{
		FirstName:     reg.FirstName,
		LastName:      reg.LastName,
		IDNumber:      reg.IDNumber,
		AccountNumber: reg.AccountNumber,
		Username:      reg.Username,
		PasswordHash:  hash,
		Role:          role,
		Currency:      model.DefaultCurrency,
	})
	if err != nil {
		return nil, translate(err)
	}
	return u, nil
}

// Login проверяет учётные данные. Если у пользователя настроен второй фактор, возвращается только признак RequiresMFA.
func (s *Service) Login(ctx context.Context, username, accountNumber, password string) (*AuthResult, error) {
	u, err := s.checkCredentials(ctx, username, accountNumber, password)
	if err != nil {
		return nil, err
	}

	if mfa.IsSetupComplete(u) {
		return &AuthResult{RequiresMFA: true, Username: u.Username}, nil
	}

	return s.startSession(ctx, u)
}

// CompleteMFALogin завершает вход по TOTP или резервному коду.
func (s *Service) CompleteMFALogin(ctx context.Context, req MFALogin) (*AuthResult, error) {
	if req.Token == "" && req.BackupCode == "" {
		return nil, apperr.Validation("Verification code is required", map[string]string{
			"token": "Provide an authenticator code or a backup code",
		})
	}

	u, err := s.checkCredentials(ctx, req.Username, req.AccountNumber, req.Password)
	if err != nil {
		return nil, err
	}

	if !mfa.IsSetupComplete(u) {
		return nil, apperr.Validation("MFA is not enabled for this account", nil)
	}

	var remaining *int
	if req.Token != "" {
		if !s.engine.VerifyToken(req.Token, u.MFASecret) {
			s.logger.Warn("mfa login rejected", zap.String("user_id", u.ID))
			return nil, errInvalidMFACode
		}
	} else {
		left, err := s.consumeBackupCode(ctx, u, req.BackupCode)
		if err != nil {
			return nil, err
		}
		remaining = &left
	}

	res, err := s.startSession(ctx, u)
	if err != nil {
		return nil, err
	}
	res.BackupCodesRemaining = remaining
	return res, nil
}

// consumeBackupCode погашает резервный код. Удаление выполняет хранилище одной операцией.
func (s *Service) consumeBackupCode(ctx context.Context, u *model.User, code string) (int, error) {
	check := mfa.VerifyBackupCode(code, u.MFABackupCodes)
	if !check.Valid {
		s.logger.Warn("backup code rejected", zap.String("user_id", u.ID))
		return 0, errInvalidMFACode
	}

	left, err := s.repo.ConsumeBackupCode(ctx, u.ID, check.UsedHash)
	if errors.Is(err, repository.ErrBackupCodeNotFound) {
		return 0, errInvalidMFACode
	}
	if err != nil {
		return 0, translate(err)
	}

	s.logger.Info("backup code used", zap.String("user_id", u.ID), zap.Int("remaining", left))
	return left, nil
}

func (s *Service) checkCredentials(ctx context.Context, username, accountNumber, password string) (*model.User, error) {
	if username == "" || accountNumber == "" || password == "" {
		return nil, errInvalidCredentials
	}

	u, err := s.repo.GetUserByCredentials(ctx, username, accountNumber)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, errInvalidCredentials
	}
	if err != nil {
		return nil, translate(err)
	}

	if !s.hasher.Compare(u.PasswordHash, password) {
		s.logger.Warn("login failed", zap.String("user_id", u.ID))
		return nil, errInvalidCredentials
	}
	return u, nil
}

// startSession выдаёт токен и открывает запись в реестре сессий.
func (s *Service) startSession(ctx context.Context, u *model.User) (*AuthResult, error) {
	raw, claims, err := s.tokens.Issue(u)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	if err := s.sessions.Create(ctx, u.ID); err != nil {
		s.logger.Warn("session registry create failed", zap.String("user_id", u.ID), zap.Error(err))
	}

	return &AuthResult{
		Token:     raw,
		ExpiresAt: claims.ExpiresAt.Time,
		User:      u,
		Username:  u.Username,
	}, nil
}

// Logout отзывает предъявленный токен и удаляет запись о сессии. Повторный вызов не считается ошибкой.
func (s *Service) Logout(ctx context.Context, userID, rawToken string) error {
	if err := s.tokens.Invalidate(ctx, rawToken); err != nil {
		return apperr.Internal(err)
	}
	if err := s.sessions.Remove(ctx, userID); err != nil {
		s.logger.Warn("session registry remove failed", zap.String("user_id", userID), zap.Error(err))
	}
	return nil
}

// LogoutAll отзывает предъявленный токен и удаляет все записи о сессиях пользователя.
func (s *Service) LogoutAll(ctx context.Context, userID, rawToken string) error {
	if err := s.tokens.Invalidate(ctx, rawToken); err != nil {
		return apperr.Internal(err)
	}
	if err := s.sessions.RemoveAll(ctx, userID); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// SessionInfo возвращает сведения о текущей сессии.
func (s *Service) SessionInfo(ctx context.Context, userID string) (*model.SessionInfo, error) {
	info, err := s.sessions.Info(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if info == nil {
		return nil, apperr.NotFound("No active session", nil)
	}
	return info, nil
}

// Profile возвращает учётную запись пользователя.
func (s *Service) Profile(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	return u, nil
}
