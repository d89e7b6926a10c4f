package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/mmeshcher/bankportal/internal/apperr"
	"github.com/mmeshcher/bankportal/internal/mfa"
	"github.com/mmeshcher/bankportal/internal/model"
)

// MFASetup - данные для подключения приложения-аутентификатора.
type MFASetup struct {
	Secret     string
	OTPAuthURL string
	QRCode     string
}

// MFAStatus - состояние второго фактора пользователя.
type MFAStatus struct {
	Enabled              bool `json:"mfaEnabled"`
	SetupComplete        bool `json:"mfaSetupComplete"`
	BackupCodesRemaining int  `json:"backupCodesRemaining"`
}

// SetupMFA генерирует новый секрет. До подтверждения кодом второй фактор не действует.
func (s *Service) SetupMFA(ctx context.Context, userID string) (*MFASetup, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	if mfa.IsSetupComplete(u) {
		return nil, apperr.Conflict("MFA is already enabled", nil)
	}

	secret, err := s.engine.GenerateSecret(u.Username)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	qr, err := s.engine.QRCode(secret.OTPAuthURL)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	if err := s.repo.UpdateMFA(ctx, u.ID, model.MFASettings{Secret: secret.Base32}); err != nil {
		return nil, translate(err)
	}

	return &MFASetup{Secret: secret.Base32, OTPAuthURL: secret.OTPAuthURL, QRCode: qr}, nil
}

// VerifyMFASetup подтверждает секрет первым кодом, включает второй фактор и возвращает резервные коды.
// Коды в открытом виде возвращаются только здесь и при перевыпуске.
func (s *Service) VerifyMFASetup(ctx context.Context, userID, code string) ([]string, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	if mfa.IsSetupComplete(u) {
		return nil, apperr.Conflict("MFA is already enabled", nil)
	}
	if u.MFASecret == "" {
		return nil, apperr.Validation("MFA setup has not been started", nil)
	}

	if !s.engine.VerifyToken(code, u.MFASecret) {
		return nil, errInvalidMFACode
	}

	codes, err := mfa.GenerateBackupCodes(mfa.BackupCodeCount)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	err = s.repo.UpdateMFA(ctx, u.ID, model.MFASettings{
		Enabled:       true,
		SetupComplete: true,
		Secret:        u.MFASecret,
		BackupCodes:   mfa.HashBackupCodes(codes),
	})
	if err != nil {
		return nil, translate(err)
	}

	s.logger.Info("mfa enabled", zap.String("user_id", u.ID))
	return codes, nil
}

// DisableMFA отключает второй фактор после повторной проверки пароля.
func (s *Service) DisableMFA(ctx context.Context, userID, password string) error {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return translate(err)
	}

	if password == "" || !s.hasher.Compare(u.PasswordHash, password) {
		s.logger.Warn("mfa disable rejected", zap.String("user_id", u.ID))
		return apperr.Authentication("Invalid password", nil)
	}

	if err := s.repo.UpdateMFA(ctx, u.ID, model.MFASettings{}); err != nil {
		return translate(err)
	}

	s.logger.Info("mfa disabled", zap.String("user_id", u.ID))
	return nil
}

// MFAStatus возвращает состояние второго фактора.
func (s *Service) MFAStatus(ctx context.Context, userID string) (*MFAStatus, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	return &MFAStatus{
		Enabled:              u.MFAEnabled,
		SetupComplete:        u.MFASetupComplete,
		BackupCodesRemaining: len(u.MFABackupCodes),
	}, nil
}

// RegenerateBackupCodes заменяет все резервные коды новыми. Требуется действующий TOTP-код.
func (s *Service) RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	if !mfa.IsSetupComplete(u) {
		return nil, apperr.Validation("MFA is not enabled for this account", nil)
	}
	if !s.engine.VerifyToken(code, u.MFASecret) {
		return nil, errInvalidMFACode
	}

	codes, err := mfa.GenerateBackupCodes(mfa.BackupCodeCount)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	err = s.repo.UpdateMFA(ctx, u.ID, model.MFASettings{
		Enabled:       true,
		SetupComplete: true,
		Secret:        u.MFASecret,
		BackupCodes:   mfa.HashBackupCodes(codes),
	})
	if err != nil {
		return nil, translate(err)
	}

	s.logger.Info("backup codes regenerated", zap.String("user_id", u.ID))
	return codes, nil
}
