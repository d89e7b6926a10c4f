package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType описывает вид операции по счёту.
type TransactionType string

const (
	TransactionDeposit    TransactionType = "deposit"
	TransactionWithdrawal TransactionType = "withdrawal"
	TransactionPayment    TransactionType = "payment"
	TransactionTransfer   TransactionType = "transfer"
	TransactionSalary     TransactionType = "salary"
	TransactionRefund     TransactionType = "refund"
)

// TransactionStatus описывает состояние проводки.
type TransactionStatus string

const (
	TransactionCompleted TransactionStatus = "completed"
	TransactionPending   TransactionStatus = "pending"
	TransactionFailed    TransactionStatus = "failed"
)

// Transaction - запись журнала операций. Amount положителен для зачисления и отрицателен для списания.
type Transaction struct {
	ID           string
	UserID       string
	Type         TransactionType
	Amount       decimal.Decimal
	Currency     Currency
	Category     string
	Description  string
	BalanceAfter decimal.Decimal
	Status       TransactionStatus
	PaymentID    string
	Metadata     TransactionMetadata
	CreatedAt    time.Time
}

// TransactionMetadata содержит сведения о запросе, породившем проводку.
type TransactionMetadata struct {
	IP               string `json:"ip,omitempty"`
	UserAgent        string `json:"userAgent,omitempty"`
	RecipientName    string `json:"recipientName,omitempty"`
	RecipientAccount string `json:"recipientAccount,omitempty"`
	SwiftCode        string `json:"swiftCode,omitempty"`
	ApprovedBy       string `json:"approvedBy,omitempty"`
}

// LedgerEntry описывает изменение баланса, которое нужно провести.
type LedgerEntry struct {
	UserID      string
	Amount      decimal.Decimal
	Currency    Currency
	Type        TransactionType
	Category    string
	Description string
	PaymentID   string
	Metadata    TransactionMetadata
}

// RecalculationResult - итог пересчёта баланса по журналу операций.
type RecalculationResult struct {
	PreviousBalance decimal.Decimal `json:"previousBalance"`
	Balance         decimal.Decimal `json:"balance"`
	Transactions    int             `json:"transactionsReplayed"`
	Patched         int             `json:"transactionsPatched"`
}

// Beneficiary - сохранённый получатель платежей клиента.
type Beneficiary struct {
	ID            string
	UserID        string
	Name          string
	BankName      string
	AccountNumber string
	SwiftCode     string
	Currency      Currency
	UsageCount    int64
	LastUsedAt    *time.Time
	CreatedAt     time.Time
}

// SessionInfo - сведения о сессии пользователя для отображения таймера бездействия.
type SessionInfo struct {
	LoginTime     time.Time     `json:"loginTime"`
	LastActivity  time.Time     `json:"lastActivity"`
	TimeRemaining time.Duration `json:"-"`
	IsExpired     bool          `json:"isExpired"`
}
