package handler

import (
	"net/http"
)

type depositRequest struct {
	Amount      amountValue `json:"amount"`
	Description string      `json:"description"`
}

// GetBalance возвращает баланс текущего пользователя.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	c, ok := h.claims(w, r)
	if !ok {
		return
	}

	b, err := h.service.GetBalance(r.Context(), c.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, "", balanceResponse{
		AccountNumber: b.AccountNumber,
		Balance:       b.Balance.StringFixed(2),
		Currency:      string(b.Currency),
	})
}

// GetTransactions возвращает журнал операций текущего пользователя, новые записи первыми.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	c, ok := h.claims(w, r)
	if !ok {
		return
	}

	txs, err := h.service.ListTransactions(r.Context(), c.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		resp = append(resp, newTransactionResponse(t))
	}
	writeData(w, http.StatusOK, "", resp)
}

// Deposit зачисляет средства на счёт текущего пользователя.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	c, ok := h.claims(w, r)
	if !ok {
		return
	}

	var req depositRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	t, err := h.service.Deposit(r.Context(), c.UserID, string(req.Amount), req.Description, requestMeta(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeData(w, http.StatusCreated, "Deposit successful", newTransactionResponse(*t))
}

// RecalculateBalance пересчитывает баланс по журналу операций.
func (h *Handler) RecalculateBalance(w http.ResponseWriter, r *http.Request) {
	c, ok := h.claims(w, r)
	if !ok {
		return
	}

	res, err := h.service.RecalculateBalance(r.Context(), c.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, "Balance recalculated", recalculationResponse{
		PreviousBalance: res.PreviousBalance.StringFixed(2),
		Balance:         res.Balance.StringFixed(2),
		Transactions:    res.Transactions,
		Patched:         res.Patched,
	})
}
