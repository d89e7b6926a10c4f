// Package model содержит доменные сущности банковского портала.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role описывает роль пользователя портала.
type Role string

const (
	RoleCustomer Role = "Customer"
	RoleEmployee Role = "Employee"
	RoleAdmin    Role = "Admin"
)

// Valid сообщает, является ли значение одной из известных ролей.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleEmployee, RoleAdmin:
		return true
	}
	return false
}

// IsStaff сообщает, относится ли роль к сотрудникам банка.
func (r Role) IsStaff() bool {
	return r == RoleEmployee || r == RoleAdmin
}

// User представляет учётную запись клиента или сотрудника.
type User struct {
	ID               string
	FirstName        string
	LastName         string
	IDNumber         string
	AccountNumber    string
	Username         string
	PasswordHash     string
	Role             Role
	Balance          decimal.Decimal
	Currency         Currency
	MFAEnabled       bool
	MFASetupComplete bool
	MFASecret        string
	MFABackupCodes   []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// MFAActive сообщает, требуется ли второй фактор при входе.
func (u *User) MFAActive() bool {
	return u.MFAEnabled && u.MFASetupComplete && u.MFASecret != ""
}

// MFASettings - состояние второго фактора, сохраняемое одной операцией.
// BackupCodes содержит SHA-256 хеши резервных кодов.
type MFASettings struct {
	Enabled       bool
	SetupComplete bool
	Secret        string
	BackupCodes   []string
}

// NewUser содержит поля, необходимые для создания учётной записи.
type NewUser struct {
	FirstName     string
	LastName      string
	IDNumber      string
	AccountNumber string
	Username      string
	PasswordHash  string
	Role          Role
	Currency      Currency
}

// Currency - код валюты. Конвертация валют не поддерживается.
type Currency string

// Currencies перечисляет допустимые коды валют.
var Currencies = []Currency{"USD", "EUR", "GBP", "ZAR", "JPY", "AUD", "CAD", "CHF", "CNY", "INR"}

// DefaultCurrency назначается новым счетам.
const DefaultCurrency Currency = "ZAR"

// Valid сообщает, входит ли код в список допустимых валют.
func (c Currency) Valid() bool {
	for _, v := range Currencies {
		if v == c {
			return true
		}
	}
	return false
}

// Provider - платёжная сеть. Хранится только как метка.
type Provider string

// Providers перечисляет допустимые платёжные сети.
var Providers = []Provider{"SWIFT", "SEPA", "ACH", "WIRE"}

// Valid сообщает, входит ли значение в список допустимых сетей.
func (p Provider) Valid() bool {
	for _, v := range Providers {
		if v == p {
			return true
		}
	}
	return false
}
