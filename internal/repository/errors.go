package repository

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/bankportal/internal/ledger"
)

var (
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrDuplicateKey возвращается при нарушении уникальности. Конкретное поле описывает DuplicateError.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrPaymentNotFound возвращается, если платёж не найден или принадлежит другому пользователю.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrInvalidTransition возвращается при попытке изменить статус платежа, уже находящегося в конечном состоянии.
	ErrInvalidTransition = errors.New("invalid payment status transition")
	// ErrInsufficientFunds возвращается, если списание уводит баланс в минус.
	ErrInsufficientFunds = ledger.ErrInsufficientFunds
	// ErrBackupCodeNotFound возвращается, если резервный код отсутствует или уже использован.
	ErrBackupCodeNotFound = errors.New("backup code not found")
	// ErrBeneficiaryNotFound возвращается, если получатель не найден.
	ErrBeneficiaryNotFound = errors.New("beneficiary not found")
	// ErrUserHasHistory возвращается при удалении пользователя, у которого есть платежи или операции по счёту.
	ErrUserHasHistory = errors.New("user has payments or transactions")
	// ErrNegativeReplay возвращается, если пересчёт журнала даёт отрицательный баланс.
	ErrNegativeReplay = ledger.ErrNegativeReplay
)

// DuplicateError сообщает, какое уникальное поле уже занято.
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string {
	return "duplicate key: " + e.Field
}

// Is позволяет сравнивать ошибку с ErrDuplicateKey через errors.Is.
func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicateKey
}

// constraintFields сопоставляет ограничения уникальности из миграций с полями API.
var constraintFields = map[string]string{
	"users_username_key":             "username",
	"users_account_number_key":       "accountNumber",
	"users_id_number_key":            "idNumber",
	"payments_payment_id_key":        "paymentId",
	"beneficiaries_user_account_key": "accountNumber",
}

func duplicateField(constraint string) string {
	if f, ok := constraintFields[constraint]; ok {
		return f
	}
	return constraint
}

// Суммы хранятся в центах, как в исходной схеме списаний.
func toCents(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}

func fromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}
