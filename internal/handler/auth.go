package handler

import (
	"net/http"

	"github.com/mmeshcher/bankportal/internal/middleware"
	"github.com/mmeshcher/bankportal/internal/service"
	"github.com/mmeshcher/bankportal/internal/validation"
)

type registerRequest struct {
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	IDNumber      string `json:"idNumber"`
	AccountNumber string `json:"accountNumber"`
	Username      string `json:"username"`
	Password      string `json:"password"`
}

func (req registerRequest) registration() validation.Registration {
	return validation.Registration{
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		IDNumber:      req.IDNumber,
		AccountNumber: req.AccountNumber,
		Username:      req.Username,
		Password:      req.Password,
	}
}

type loginRequest struct {
	Username      string `json:"username"`
	AccountNumber string `json:"accountNumber"`
	Password      string `json:"password"`
}

type mfaLoginRequest struct {
	loginRequest
	Token      string `json:"token"`
	BackupCode string `json:"backupCode"`
}

// Register регистрирует клиента и сразу выдаёт токен.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.service.Register(r.Context(), req.registration())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeData(w, http.StatusCreated, "Registration successful", newAuthResponse(res))
}

// Login выполняет первый шаг входа. При включённом втором факторе токен не выдаётся.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.service.Login(r.Context(), req.Username, req.AccountNumber, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if res.RequiresMFA {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":     true,
			"requiresMFA": true,
			"username":    res.Username,
			"message":     "MFA verification required",
		})
		return
	}

	writeData(w, http.StatusOK, "Login successful", newAuthResponse(res))
}

// MFALogin завершает вход кодом приложения-аутентификатора или резервным кодом.
func (h *Handler) MFALogin(w http.ResponseWriter, r *http.Request) {
	var req mfaLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.service.CompleteMFALogin(r.Context(), service.MFALogin{
		Username:      req.Username,
		AccountNumber: req.AccountNumber,
		Password:      req.Password,
		Token:         req.Token,
		BackupCode:    req.BackupCode,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, "Login successful", newAuthResponse(res))
}

// Logout отзывает текущий токен.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	c, ok := h.claims(w, r)
	if !ok {
		return
	}
	raw, _ := middleware.GetTokenFromContext(r.Context())

	if err := h.service.Logout(r.Context(), c.UserID, raw); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, "Logged out successfully", nil)
}

// LogoutAll отзывает текущий токен и завершает все сессии пользователя.
func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	c, ok := h.claims(w, r)
	if !ok {
		return
	}
	raw, _ := middleware.GetTokenFromContext(r.Context())

	if err := h.service.LogoutAll(r.Context(), c.UserID, raw); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, "Logged out from all sessions", nil)
}

// Session возвращает время входа, последней активности и остаток до истечения бездействия.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	c, ok := h.claims(w, r)
	if !ok {
		return
	}

	info, err := h.service.SessionInfo(r.Context(), c.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, "", newSessionResponse(info))
}

// Profile возвращает учётную запись текущего пользователя.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	c, ok := h.claims(w, r)
	if !ok {
		return
	}

	u, err := h.service.Profile(r.Context(), c.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, "", newUserResponse(u))
}
