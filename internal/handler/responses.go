package handler

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/mmeshcher/bankportal/internal/model"
	"github.com/mmeshcher/bankportal/internal/service"
)

const timeLayout = time.RFC3339

type userResponse struct {
	ID            string `json:"id"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	Username      string `json:"username"`
	AccountNumber string `json:"accountNumber"`
	Role          string `json:"role"`
	Balance       string `json:"balance"`
	Currency      string `json:"currency"`
	MFAEnabled    bool   `json:"mfaEnabled"`
	CreatedAt     string `json:"createdAt"`
}

func newUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:            u.ID,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Username:      u.Username,
		AccountNumber: u.AccountNumber,
		Role:          string(u.Role),
		Balance:       u.Balance.StringFixed(2),
		Currency:      string(u.Currency),
		MFAEnabled:    u.MFAActive(),
		CreatedAt:     u.CreatedAt.Format(timeLayout),
	}
}

type authResponse struct {
	Token                string        `json:"token,omitempty"`
	ExpiresAt            string        `json:"expiresAt,omitempty"`
	User                 *userResponse `json:"user,omitempty"`
	RequiresMFA          bool          `json:"requiresMFA,omitempty"`
	Username             string        `json:"username,omitempty"`
	BackupCodesRemaining *int          `json:"backupCodesRemaining,omitempty"`
}

func newAuthResponse(res *service.AuthResult) authResponse {
	if res.RequiresMFA {
		return authResponse{RequiresMFA: true, Username: res.Username}
	}

	resp := authResponse{
		Token:                res.Token,
		ExpiresAt:            res.ExpiresAt.Format(timeLayout),
		BackupCodesRemaining: res.BackupCodesRemaining,
	}
	if res.User != nil {
		u := newUserResponse(res.User)
		resp.User = &u
	}
	return resp
}

type sessionResponse struct {
	LoginTime       string `json:"loginTime"`
	LastActivity    string `json:"lastActivity"`
	TimeRemainingMs int64  `json:"timeRemaining"`
	MinutesLeft     int64  `json:"minutesRemaining"`
	IsExpired       bool   `json:"isExpired"`
}

func newSessionResponse(s *model.SessionInfo) sessionResponse {
	return sessionResponse{
		LoginTime:       s.LoginTime.Format(timeLayout),
		LastActivity:    s.LastActivity.Format(timeLayout),
		TimeRemainingMs: s.TimeRemaining.Milliseconds(),
		MinutesLeft:     int64(s.TimeRemaining / time.Minute),
		IsExpired:       s.IsExpired,
	}
}

type balanceResponse struct {
	AccountNumber string `json:"accountNumber"`
	Balance       string `json:"balance"`
	Currency      string `json:"currency"`
}

type transactionResponse struct {
	ID           string                    `json:"id"`
	Type         string                    `json:"type"`
	Amount       string                    `json:"amount"`
	Currency     string                    `json:"currency"`
	Category     string                    `json:"category"`
	Description  string                    `json:"description"`
	BalanceAfter string                    `json:"balanceAfter"`
	Status       string                    `json:"status"`
	PaymentID    string                    `json:"paymentId,omitempty"`
	Metadata     model.TransactionMetadata `json:"metadata"`
	CreatedAt    string                    `json:"createdAt"`
}

func newTransactionResponse(t model.Transaction) transactionResponse {
	return transactionResponse{
		ID:           t.ID,
		Type:         string(t.Type),
		Amount:       t.Amount.StringFixed(2),
		Currency:     string(t.Currency),
		Category:     t.Category,
		Description:  t.Description,
		BalanceAfter: t.BalanceAfter.StringFixed(2),
		Status:       string(t.Status),
		PaymentID:    t.PaymentID,
		Metadata:     t.Metadata,
		CreatedAt:    t.CreatedAt.Format(timeLayout),
	}
}

type recalculationResponse struct {
	PreviousBalance string `json:"previousBalance"`
	Balance         string `json:"balance"`
	Transactions    int    `json:"transactionsReplayed"`
	Patched         int    `json:"transactionsPatched"`
}

type paymentResponse struct {
	ID               string               `json:"id"`
	PaymentID        string               `json:"paymentId"`
	UserID           string               `json:"userId"`
	Amount           string               `json:"amount"`
	Currency         string               `json:"currency"`
	RecipientName    string               `json:"recipientName"`
	RecipientBank    string               `json:"recipientBank"`
	RecipientAccount string               `json:"recipientAccount"`
	SwiftCode        string               `json:"swiftCode"`
	Provider         string               `json:"provider"`
	PaymentReference string               `json:"paymentReference,omitempty"`
	Status           string               `json:"status"`
	StatusHistory    []model.StatusChange `json:"statusHistory"`
	CreatedAt        string               `json:"createdAt"`
	UpdatedAt        string               `json:"updatedAt"`
}

func newPaymentResponse(p *model.Payment) paymentResponse {
	history := p.StatusHistory
	if history == nil {
		history = []model.StatusChange{}
	}
	return paymentResponse{
		ID:               p.ID,
		PaymentID:        p.PaymentID,
		UserID:           p.UserID,
		Amount:           p.Amount.StringFixed(2),
		Currency:         string(p.Currency),
		RecipientName:    p.RecipientName,
		RecipientBank:    p.RecipientBank,
		RecipientAccount: p.RecipientAccount,
		SwiftCode:        p.SwiftCode,
		Provider:         string(p.Provider),
		PaymentReference: p.PaymentReference,
		Status:           string(p.Status),
		StatusHistory:    history,
		CreatedAt:        p.CreatedAt.Format(timeLayout),
		UpdatedAt:        p.UpdatedAt.Format(timeLayout),
	}
}

func newPaymentsResponse(payments []model.Payment) []paymentResponse {
	resp := make([]paymentResponse, 0, len(payments))
	for i := range payments {
		resp = append(resp, newPaymentResponse(&payments[i]))
	}
	return resp
}

type statResponse struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
	Total  string `json:"total"`
}

type beneficiaryResponse struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	BankName      string  `json:"bankName"`
	AccountNumber string  `json:"accountNumber"`
	SwiftCode     string  `json:"swiftCode"`
	Currency      string  `json:"currency"`
	UsageCount    int64   `json:"usageCount"`
	LastUsedAt    *string `json:"lastUsedAt"`
	CreatedAt     string  `json:"createdAt"`
}

func newBeneficiaryResponse(b *model.Beneficiary) beneficiaryResponse {
	resp := beneficiaryResponse{
		ID:            b.ID,
		Name:          b.Name,
		BankName:      b.BankName,
		AccountNumber: b.AccountNumber,
		SwiftCode:     b.SwiftCode,
		Currency:      string(b.Currency),
		UsageCount:    b.UsageCount,
		CreatedAt:     b.CreatedAt.Format(timeLayout),
	}
	if b.LastUsedAt != nil {
		s := b.LastUsedAt.Format(timeLayout)
		resp.LastUsedAt = &s
	}
	return resp
}

// amountValue принимает сумму как JSON-число или строку. Проверку выполняет validation.ParseAmount,
// поэтому некорректное значение возвращается как ошибка поля amount.
type amountValue string

func (a *amountValue) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*a = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = amountValue(s)
		return nil
	}
	*a = amountValue(raw)
	return nil
}
