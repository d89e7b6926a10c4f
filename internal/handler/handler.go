// Package handler содержит HTTP-обработчики API банковского портала.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mmeshcher/bankportal/internal/apperr"
	"github.com/mmeshcher/bankportal/internal/middleware"
	"github.com/mmeshcher/bankportal/internal/model"
	"github.com/mmeshcher/bankportal/internal/service"
	"github.com/mmeshcher/bankportal/internal/token"
	"github.com/mmeshcher/bankportal/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Register(ctx context.Context, reg validation.Registration) (*service.AuthResult, error)
	Login(ctx context.Context, username, accountNumber, password string) (*service.AuthResult, error)
	CompleteMFALogin(ctx context.Context, req service.MFALogin) (*service.AuthResult, error)
	Logout(ctx context.Context, userID, rawToken string) error
	LogoutAll(ctx context.Context, userID, rawToken string) error
	SessionInfo(ctx context.Context, userID string) (*model.SessionInfo, error)
	Profile(ctx context.Context, userID string) (*model.User, error)

	SetupMFA(ctx context.Context, userID string) (*service.MFASetup, error)
	VerifyMFASetup(ctx context.Context, userID, code string) ([]string, error)
	DisableMFA(ctx context.Context, userID, password string) error
	MFAStatus(ctx context.Context, userID string) (*service.MFAStatus, error)
	RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error)

	GetBalance(ctx context.Context, userID string) (*service.Balance, error)
	ListTransactions(ctx context.Context, userID string) ([]model.Transaction, error)
	Deposit(ctx context.Context, userID, amount, description string, meta service.RequestMeta) (*model.Transaction, error)
	RecalculateBalance(ctx context.Context, userID string) (*model.RecalculationResult, error)

	CreatePayment(ctx context.Context, userID string, in validation.Payment, meta service.RequestMeta) (*model.Payment, error)
	ListPayments(ctx context.Context, userID string) ([]model.Payment, error)
	GetPayment(ctx context.Context, userID, paymentID string) (*model.Payment, error)
	ListAllPayments(ctx context.Context, status string) ([]model.Payment, error)
	PaymentStats(ctx context.Context) ([]model.PaymentStat, error)
	DecidePayment(ctx context.Context, actor service.Actor, paymentID, status, reason string, meta service.RequestMeta) (*model.Payment, error)

	ListStaff(ctx context.Context) ([]model.User, error)
	CreateStaff(ctx context.Context, actor service.Actor, reg validation.Registration, role string) (*model.User, error)
	UpdateRole(ctx context.Context, actor service.Actor, userID, role string) (*model.User, error)
	DeleteStaff(ctx context.Context, actor service.Actor, userID string) error

	ListBeneficiaries(ctx context.Context, userID string) ([]model.Beneficiary, error)
	CreateBeneficiary(ctx context.Context, userID string, in validation.Beneficiary) (*model.Beneficiary, error)
	DeleteBeneficiary(ctx context.Context, userID, id string) error
	UseBeneficiary(ctx context.Context, userID, id string) (*model.Beneficiary, error)

	Ping(ctx context.Context) error
}

// Handler реализует HTTP-обработчики API банковского портала.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	development    bool
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// В режиме development ответы об ошибках содержат подробности.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, development bool) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		development:    development,
	}
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type errorBody struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
	Details string            `json:"details,omitempty"`
}

var errBadBody = apperr.Validation("Invalid request body", nil)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

// writeError отображает ошибку прикладного уровня в JSON-ответ.
// Внутренние ошибки пишутся в журнал целиком, клиент получает общее сообщение.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	body := errorBody{Message: "Internal server error"}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		body.Message = appErr.Message
		body.Errors = appErr.Fields
	}

	if kind == apperr.KindInternal {
		h.logger.Error("request failed",
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		body.Message = "Internal server error"
	}

	if h.development {
		body.Details = err.Error()
	}

	writeJSON(w, apperr.HTTPStatus(kind), body)
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("Request body is required", nil)
		}
		return errBadBody
	}
	return nil
}

// claims возвращает claims аутентифицированного пользователя. При отсутствии пишет ответ 401.
func (h *Handler) claims(w http.ResponseWriter, r *http.Request) (*token.Claims, bool) {
	c, ok := middleware.GetClaimsFromContext(r.Context())
	if !ok {
		h.writeError(w, r, apperr.Authentication("Authentication required", nil))
		return nil, false
	}
	return c, true
}

func actorOf(c *token.Claims) service.Actor {
	return service.Actor{ID: c.UserID, Username: c.Username, Role: c.Role}
}

func requestMeta(r *http.Request) service.RequestMeta {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	return service.RequestMeta{IP: ip, UserAgent: r.UserAgent()}
}

// Health проверяет доступность хранилища.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.Error("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, envelope{Success: false, Message: "Storage unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "OK"})
}
