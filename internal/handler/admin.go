package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type createStaffRequest struct {
	registerRequest
	Role string `json:"role"`
}

type roleRequest struct {
	Role string `json:"role"`
}

// ListEmployees возвращает учётные записи сотрудников и администраторов.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	staff, err := h.service.ListStaff(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]userResponse, 0, len(staff))
	for i := range staff {
		resp = append(resp, newUserResponse(&staff[i]))
	}
	writeData(w, http.StatusOK, "", resp)
}

// CreateEmployee создаёт учётную запись сотрудника.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	c, ok := h.claims(w, r)
	if !ok {
		return
	}

	var req createStaffRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	u, err := h.service.CreateStaff(r.Context(), actorOf(c), req.registration(), req.Role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeData(w, http.StatusCreated, "Employee created", newUserResponse(u))
}

// UpdateEmployeeRole меняет роль пользователя.
func (h *Handler) UpdateEmployeeRole(w http.ResponseWriter, r *http.Request) {
	c, ok := h.claims(w, r)
	if !ok {
		return
	}

	var req roleRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	u, err := h.service.UpdateRole(r.Context(), actorOf(c), chi.URLParam(r, "id"), req.Role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, "Role updated", newUserResponse(u))
}

// DeleteEmployee удаляет учётную запись сотрудника.
func (h *Handler) DeleteEmployee(w http.ResponseWriter, r *http.Request) {
	c, ok := h.claims(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteStaff(r.Context(), actorOf(c), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, "Employee deleted", nil)
}
