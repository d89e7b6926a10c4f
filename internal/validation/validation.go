// Package validation содержит правила проверки входных данных портала.
package validation

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/bankportal/internal/model"
)

var (
	namePattern          = regexp.MustCompile(`^[A-Za-z][A-Za-z\s'-]{1,49}$`)
	idNumberPattern      = regexp.MustCompile(`^[0-9]{13}$`)
	accountNumberPattern = regexp.MustCompile(`^[A-Z]{3}[0-9]{7,9}$`)
	usernamePattern      = regexp.MustCompile(`^[a-zA-Z0-9_]{3,30}$`)
	swiftPattern         = regexp.MustCompile(`^[A-Z]{6}[A-Z0-9]{2}([A-Z0-9]{3})?$`)
	recipientPattern     = regexp.MustCompile(`^[A-Za-z0-9\s.,'&-]{2,100}$`)
	recipientAccPattern  = regexp.MustCompile(`^[A-Z0-9]{6,34}$`)
	referencePattern     = regexp.MustCompile(`^[A-Za-z0-9\s.,/-]{0,140}$`)
	backupCodePattern    = regexp.MustCompile(`^[0-9A-F]{8}$`)
)

var (
	// MinAmount - минимальная сумма платежа.
	MinAmount = decimal.RequireFromString("0.01")
	// MaxAmount - максимальная сумма платежа.
	MaxAmount = decimal.RequireFromString("1000000")
)

// Errors накапливает сообщения об ошибках по полям.
type Errors map[string]string

func (e Errors) add(field, msg string) {
	if _, ok := e[field]; !ok {
		e[field] = msg
	}
}

// Registration описывает поля регистрационной формы.
type Registration struct {
	FirstName     string
	LastName      string
	IDNumber      string
	AccountNumber string
	Username      string
	Password      string
}

// ValidateRegistration проверяет все поля формы и возвращает перечень ошибок.
func ValidateRegistration(r Registration) Errors {
	errs := Errors{}

	if !namePattern.MatchString(r.FirstName) {
		errs.add("firstName", "First name must be 2-50 letters")
	}
	if !namePattern.MatchString(r.LastName) {
		errs.add("lastName", "Last name must be 2-50 letters")
	}
	if !idNumberPattern.MatchString(r.IDNumber) {
		errs.add("idNumber", "ID number must be exactly 13 digits")
	}
	if !IsValidAccountNumber(r.AccountNumber) {
		errs.add("accountNumber", "Account number must be 3 capital letters followed by 7-9 digits")
	}
	if !usernamePattern.MatchString(r.Username) {
		errs.add("username", "Username must be 3-30 characters: letters, digits or underscore")
	}
	if msg := PasswordProblem(r.Password); msg != "" {
		errs.add("password", msg)
	}

	return errs
}

// IsValidAccountNumber проверяет формат номера счёта.
func IsValidAccountNumber(number string) bool {
	return accountNumberPattern.MatchString(number)
}

// PasswordProblem возвращает описание нарушения требований к паролю или пустую строку.
func PasswordProblem(password string) string {
	if len(password) < 8 {
		return "Password must be at least 8 characters"
	}
	if len(password) > 128 {
		return "Password must be at most 128 characters"
	}

	var upper, lower, digit, special bool
	for _, ch := range password {
		switch {
		case unicode.IsUpper(ch):
			upper = true
		case unicode.IsLower(ch):
			lower = true
		case unicode.IsDigit(ch):
			digit = true
		case unicode.IsPunct(ch) || unicode.IsSymbol(ch):
			special = true
		}
	}

	if !upper || !lower || !digit || !special {
		return "Password must contain upper and lower case letters, a digit and a special character"
	}
	return ""
}

// Payment описывает поля создаваемого платежа в исходном виде.
type Payment struct {
	Amount           string
	Currency         string
	RecipientName    string
	RecipientBank    string
	RecipientAccount string
	SwiftCode        string
	Provider         string
	PaymentReference string
}

// ValidatePayment проверяет поля платежа и возвращает сумму, если она корректна.
func ValidatePayment(p Payment) (decimal.Decimal, Errors) {
	errs := Errors{}

	amount, msg := ParseAmount(p.Amount)
	if msg != "" {
		errs.add("amount", msg)
	}
	if !model.Currency(p.Currency).Valid() {
		errs.add("currency", "Unsupported currency")
	}
	if !model.Provider(p.Provider).Valid() {
		errs.add("provider", "Unsupported payment provider")
	}
	if !recipientPattern.MatchString(p.RecipientName) {
		errs.add("recipientName", "Recipient name must be 2-100 characters")
	}
	if !recipientPattern.MatchString(p.RecipientBank) {
		errs.add("recipientBank", "Recipient bank must be 2-100 characters")
	}
	if !recipientAccPattern.MatchString(p.RecipientAccount) {
		errs.add("recipientAccount", "Recipient account must be 6-34 capital letters or digits")
	}
	if !IsValidSwiftCode(p.SwiftCode) {
		errs.add("swiftCode", "Invalid SWIFT code")
	}
	if !referencePattern.MatchString(p.PaymentReference) {
		errs.add("paymentReference", "Payment reference must be at most 140 characters")
	}

	return amount, errs
}

// ParseAmount разбирает сумму и проверяет диапазон 0.01 - 1 000 000 с точностью до копейки.
func ParseAmount(raw string) (decimal.Decimal, string) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, "Amount must be a number"
	}
	if amount.LessThan(MinAmount) || amount.GreaterThan(MaxAmount) {
		return decimal.Zero, "Amount must be between 0.01 and 1000000"
	}
	if !amount.Equal(amount.Truncate(2)) {
		return decimal.Zero, "Amount must have at most two decimal places"
	}
	return amount, ""
}

// IsValidSwiftCode проверяет формат BIC/SWIFT.
func IsValidSwiftCode(code string) bool {
	return swiftPattern.MatchString(code)
}

// IsValidTOTPCode проверяет, что код состоит ровно из шести ASCII-цифр.
func IsValidTOTPCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// IsValidBackupCode проверяет формат резервного кода.
func IsValidBackupCode(code string) bool {
	return backupCodePattern.MatchString(code)
}

// Beneficiary описывает поля сохраняемого получателя.
type Beneficiary struct {
	Name          string
	BankName      string
	AccountNumber string
	SwiftCode     string
	Currency      string
}

// ValidateBeneficiary проверяет поля получателя.
func ValidateBeneficiary(b Beneficiary) Errors {
	errs := Errors{}

	if !recipientPattern.MatchString(b.Name) {
		errs.add("name", "Name must be 2-100 characters")
	}
	if !recipientPattern.MatchString(b.BankName) {
		errs.add("bankName", "Bank name must be 2-100 characters")
	}
	if !recipientAccPattern.MatchString(b.AccountNumber) {
		errs.add("accountNumber", "Account number must be 6-34 capital letters or digits")
	}
	if !IsValidSwiftCode(b.SwiftCode) {
		errs.add("swiftCode", "Invalid SWIFT code")
	}
	if !model.Currency(b.Currency).Valid() {
		errs.add("currency", "Unsupported currency")
	}

	return errs
}
