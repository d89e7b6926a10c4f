package model

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus описывает состояние международного платежа.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
)

// Valid сообщает, является ли значение известным статусом.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusProcessing, PaymentStatusCompleted,
		PaymentStatusFailed, PaymentStatusCancelled:
		return true
	}
	return false
}

// Terminal сообщает, является ли статус конечным.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed || s == PaymentStatusCancelled
}

// CanTransitionTo проверяет допустимость перехода из s в next.
// Из pending и processing разрешены переходы в processing (только из pending) и в любой конечный статус.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentStatusPending:
		return next == PaymentStatusProcessing || next.Terminal()
	case PaymentStatusProcessing:
		return next.Terminal()
	}
	return false
}

// StatusChange - запись журнала смены статуса платежа.
type StatusChange struct {
	From      PaymentStatus `json:"from"`
	To        PaymentStatus `json:"to"`
	UpdatedBy string        `json:"updatedBy"`
	Reason    string        `json:"reason,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Payment описывает международный платёж клиента.
type Payment struct {
	ID               string
	PaymentID        string
	UserID           string
	Amount           decimal.Decimal
	Currency         Currency
	RecipientName    string
	RecipientBank    string
	RecipientAccount string
	SwiftCode        string
	Provider         Provider
	PaymentReference string
	Status           PaymentStatus
	StatusHistory    []StatusChange
	CreatedIP        string
	UserAgent        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewPayment содержит неизменяемые поля создаваемого платежа.
type NewPayment struct {
	PaymentID        string
	UserID           string
	Amount           decimal.Decimal
	Currency         Currency
	RecipientName    string
	RecipientBank    string
	RecipientAccount string
	SwiftCode        string
	Provider         Provider
	PaymentReference string
	CreatedIP        string
	UserAgent        string
}

// Decision - решение сотрудника по платежу.
type Decision struct {
	PaymentID string
	Status    PaymentStatus
	Reason    string
	ActorID   string
	Actor     string
	IP        string
	UserAgent string
}

// PaymentStat - агрегат платежей одного статуса.
type PaymentStat struct {
	Status PaymentStatus   `json:"status"`
	Count  int64           `json:"count"`
	Total  decimal.Decimal `json:"total"`
}

// NewPaymentID формирует человекочитаемый идентификатор платежа вида PAY-20260102-0A1B2C3D.
func NewPaymentID(now time.Time, entropy []byte) string {
	return fmt.Sprintf("PAY-%s-%s", now.UTC().Format("20060102"), strings.ToUpper(hex.EncodeToString(entropy)))
}
