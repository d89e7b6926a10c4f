package handler

import (
	"net/http"
)

type mfaCodeRequest struct {
	Token string `json:"token"`
}

type mfaDisableRequest struct {
	Password string `json:"password"`
}

// SetupMFA генерирует секрет и QR-код для приложения-аутентификатора.
func (h *Handler) SetupMFA(w http.ResponseWriter, r *http.Request) {
	c, ok := h.claims(w, r)
	if !ok {
		return
	}

	setup, err := h.service.SetupMFA(r.Context(), c.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, "Scan the QR code with your authenticator app", map[string]string{
		"qrCode":     setup.QRCode,
		"manualKey":  setup.Secret,
		"otpauthUrl": setup.OTPAuthURL,
	})
}

// VerifyMFASetup включает второй фактор и единожды возвращает резервные коды.
func (h *Handler) VerifyMFASetup(w http.ResponseWriter, r *http.Request) {
	c, ok := h.claims(w, r)
	if !ok {
		return
	}

	var req mfaCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	codes, err := h.service.VerifyMFASetup(r.Context(), c.UserID, req.Token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, "MFA enabled. Store your backup codes securely", map[string]any{
		"backupCodes": codes,
	})
}

// DisableMFA отключает второй фактор после проверки пароля.
func (h *Handler) DisableMFA(w http.ResponseWriter, r *http.Request) {
	c, ok := h.claims(w, r)
	if !ok {
		return
	}

	var req mfaDisableRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.service.DisableMFA(r.Context(), c.UserID, req.Password); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, "MFA disabled", nil)
}

// MFAStatus возвращает состояние второго фактора.
func (h *Handler) MFAStatus(w http.ResponseWriter, r *http.Request) {
	c, ok := h.claims(w, r)
	if !ok {
		return
	}

	status, err := h.service.MFAStatus(r.Context(), c.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, "", status)
}

// RegenerateBackupCodes выпускает новый набор резервных кодов взамен старого.
func (h *Handler) RegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	c, ok := h.claims(w, r)
	if !ok {
		return
	}

	var req mfaCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	codes, err := h.service.RegenerateBackupCodes(r.Context(), c.UserID, req.Token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, "Backup codes regenerated", map[string]any{
		"backupCodes": codes,
	})
}
