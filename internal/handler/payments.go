package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/bankportal/internal/validation"
)

type paymentRequest struct {
	Amount           amountValue `json:"amount"`
	Currency         string      `json:"currency"`
	RecipientName    string      `json:"recipientName"`
	RecipientBank    string      `json:"recipientBank"`
	RecipientAccount string      `json:"recipientAccount"`
	SwiftCode        string      `json:"swiftCode"`
	Provider         string      `json:"provider"`
	PaymentReference string      `json:"paymentReference"`
}

type statusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// CreatePayment создаёт международный платёж в статусе pending.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	c, ok := h.claims(w, r)
	if !ok {
		return
	}

	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	p, err := h.service.CreatePayment(r.Context(), c.UserID, validation.Payment{
		Amount:           string(req.Amount),
		Currency:         req.Currency,
		RecipientName:    req.RecipientName,
		RecipientBank:    req.RecipientBank,
		RecipientAccount: req.RecipientAccount,
		SwiftCode:        req.SwiftCode,
		Provider:         req.Provider,
		PaymentReference: req.PaymentReference,
	}, requestMeta(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeData(w, http.StatusCreated, "Payment submitted for review", newPaymentResponse(p))
}

// GetPayments возвращает платежи текущего клиента.
func (h *Handler) GetPayments(w http.ResponseWriter, r *http.Request) {
	c, ok := h.claims(w, r)
	if !ok {
		return
	}

	payments, err := h.service.ListPayments(r.Context(), c.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, "", newPaymentsResponse(payments))
}

// GetPayment возвращает платёж текущего клиента по идентификатору.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	c, ok := h.claims(w, r)
	if !ok {
		return
	}

	p, err := h.service.GetPayment(r.Context(), c.UserID, chi.URLParam(r, "paymentID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, "", newPaymentResponse(p))
}

// ListAllPayments возвращает платежи всех клиентов, при необходимости с фильтром по статусу.
func (h *Handler) ListAllPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.service.ListAllPayments(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, "", newPaymentsResponse(payments))
}

// PaymentStats возвращает количество и сумму платежей по статусам.
func (h *Handler) PaymentStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.PaymentStats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]statResponse, 0, len(stats))
	for _, s := range stats {
		resp = append(resp, statResponse{
			Status: string(s.Status),
			Count:  s.Count,
			Total:  s.Total.StringFixed(2),
		})
	}
	writeData(w, http.StatusOK, "", resp)
}

// UpdatePaymentStatus применяет решение сотрудника к платежу.
func (h *Handler) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	c, ok := h.claims(w, r)
	if !ok {
		return
	}

	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	p, err := h.service.DecidePayment(r.Context(), actorOf(c), chi.URLParam(r, "paymentID"), req.Status, req.Reason, requestMeta(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, "Payment status updated", newPaymentResponse(p))
}
