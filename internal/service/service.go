// Package service реализует бизнес-логику банковского портала.
package service

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/bankportal/internal/apperr"
	"github.com/mmeshcher/bankportal/internal/ledger"
	"github.com/mmeshcher/bankportal/internal/mfa"
	"github.com/mmeshcher/bankportal/internal/model"
	"github.com/mmeshcher/bankportal/internal/repository"
	"github.com/mmeshcher/bankportal/internal/security"
	"github.com/mmeshcher/bankportal/internal/session"
	"github.com/mmeshcher/bankportal/internal/token"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Ping(ctx context.Context) error
	Close() error

	CreateUser(ctx context.Context, nu model.NewUser) (*model.User, error)
	GetUserByCredentials(ctx context.Context, username, accountNumber string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	UpdateMFA(ctx context.Context, userID string, s model.MFASettings) error
	ConsumeBackupCode(ctx context.Context, userID, codeHash string) (int, error)
	UpdateUserRole(ctx context.Context, id string, role model.Role) (*model.User, error)
	DeleteStaff(ctx context.Context, id string) error
	ListStaff(ctx context.Context) ([]model.User, error)

	CreatePayment(ctx context.Context, np model.NewPayment) (*model.Payment, error)
	ListPaymentsByUser(ctx context.Context, userID string) ([]model.Payment, error)
	GetPaymentForUser(ctx context.Context, userID, paymentID string) (*model.Payment, error)
	ListPayments(ctx context.Context, status model.PaymentStatus) ([]model.Payment, error)
	PaymentStats(ctx context.Context) ([]model.PaymentStat, error)
	DecidePayment(ctx context.Context, d model.Decision) (*model.Payment, error)

	ApplyLedgerEntry(ctx context.Context, e model.LedgerEntry) (*model.Transaction, error)
	ListTransactions(ctx context.Context, userID string) ([]model.Transaction, error)
	Recalculate(ctx context.Context, userID string) (*model.RecalculationResult, error)

	CreateBeneficiary(ctx context.Context, b model.Beneficiary) (*model.Beneficiary, error)
	ListBeneficiaries(ctx context.Context, userID string) ([]model.Beneficiary, error)
	DeleteBeneficiary(ctx context.Context, userID, id string) error
	MarkBeneficiaryUsed(ctx context.Context, userID, id string) (*model.Beneficiary, error)
	MarkBeneficiaryUsedByAccount(ctx context.Context, userID, accountNumber string) error
}

// RequestMeta - сведения о запросе, сохраняемые вместе с платежами и проводками.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// Actor - аутентифицированный пользователь, выполняющий операцию.
type Actor struct {
	ID       string
	Username string
	Role     model.Role
}

// Service содержит бизнес-логику банковского портала.
type Service struct {
	repo     Repository
	tokens   *token.Service
	sessions session.Registry
	engine   *mfa.Engine
	hasher   *security.Hasher
	logger   *zap.Logger
	entropy  io.Reader
	now      func() time.Time
}

// NewService создаёт сервис поверх хранилища и компонентов аутентификации.
func NewService(
	repo Repository,
	tokens *token.Service,
	sessions session.Registry,
	engine *mfa.Engine,
	hasher *security.Hasher,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		tokens:   tokens,
		sessions: sessions,
		engine:   engine,
		hasher:   hasher,
		logger:   logger,
		entropy:  rand.Reader,
		now:      time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Ping проверяет доступность хранилища.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// translate переводит ошибки хранилища в прикладные.
func translate(err error) error {
	if err == nil {
		return nil
	}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}

	var (
		dup      *repository.DuplicateError
		negative *ledger.NegativeReplayError
	)
	switch {
	case errors.As(err, &dup):
		e := apperr.Conflict(duplicateMessage(dup.Field), err)
		e.Fields = map[string]string{dup.Field: duplicateMessage(dup.Field)}
		return e
	case errors.Is(err, repository.ErrUserNotFound):
		return apperr.NotFound("User not found", err)
	case errors.Is(err, repository.ErrPaymentNotFound):
		return apperr.NotFound("Payment not found", err)
	case errors.Is(err, repository.ErrBeneficiaryNotFound):
		return apperr.NotFound("Beneficiary not found", err)
	case errors.Is(err, repository.ErrInvalidTransition):
		return apperr.InvalidTransition("Payment has already been processed", err)
	case errors.Is(err, repository.ErrInsufficientFunds):
		return apperr.InsufficientFunds("Insufficient funds", err)
	case errors.Is(err, repository.ErrUserHasHistory):
		return apperr.Conflict("User has payments or transactions and cannot be deleted", err)
	case errors.As(err, &negative):
		e := apperr.Conflict("Transaction history does not reconcile to a valid balance", err)
		e.Fields = map[string]string{
			"balance":         negative.Stored.StringFixed(2),
			"replayedBalance": negative.Replayed.StringFixed(2),
		}
		return e
	}
	return apperr.Internal(err)
}

func duplicateMessage(field string) string {
	switch field {
	case "username":
		return "Username is already taken"
	case "accountNumber":
		return "Account number is already registered"
	case "idNumber":
		return "ID number is already registered"
	}
	return "Record already exists"
}
