package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/bankportal/internal/validation"
)

type beneficiaryRequest struct {
	Name          string `json:"name"`
	BankName      string `json:"bankName"`
	AccountNumber string `json:"accountNumber"`
	SwiftCode     string `json:"swiftCode"`
	Currency      string `json:"currency"`
}

func (h *Handler) ListBeneficiaries(w http.ResponseWriter, r *http.Request) {
	c, ok := h.claims(w, r)
	if !ok {
		return
	}

	list, err := h.service.ListBeneficiaries(r.Context(), c.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]beneficiaryResponse, 0, len(list))
	for i := range list {
		resp = append(resp, newBeneficiaryResponse(&list[i]))
	}
	writeData(w, http.StatusOK, "", resp)
}

func (h *Handler) CreateBeneficiary(w http.ResponseWriter, r *http.Request) {
	c, ok := h.claims(w, r)
	if !ok {
		return
	}

	var req beneficiaryRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	b, err := h.service.CreateBeneficiary(r.Context(), c.UserID, validation.Beneficiary{
		Name:          req.Name,
		BankName:      req.BankName,
		AccountNumber: req.AccountNumber,
		SwiftCode:     req.SwiftCode,
		Currency:      req.Currency,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeData(w, http.StatusCreated, "Beneficiary saved", newBeneficiaryResponse(b))
}

func (h *Handler) DeleteBeneficiary(w http.ResponseWriter, r *http.Request) {
	c, ok := h.claims(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteBeneficiary(r.Context(), c.UserID, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, "Beneficiary deleted", nil)
}

// UseBeneficiary увеличивает счётчик использования получателя.
func (h *Handler) UseBeneficiary(w http.ResponseWriter, r *http.Request) {
	c, ok := h.claims(w, r)
	if !ok {
		return
	}

	b, err := h.service.UseBeneficiary(r.Context(), c.UserID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, "", newBeneficiaryResponse(b))
}
