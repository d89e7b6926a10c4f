package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/bankportal/internal/middleware"
	"github.com/mmeshcher/bankportal/internal/model"
)

// SetupRouter настраивает HTTP-маршруты и middleware банковского портала.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(chimw.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)

	audit := h.logger.Named("audit")
	customers := custommiddleware.RequireRole(audit, model.RoleCustomer)
	staff := custommiddleware.RequireRole(audit, model.RoleEmployee, model.RoleAdmin)
	admins := custommiddleware.RequireRole(audit, model.RoleAdmin)

	r.Get("/health", h.Health)

	r.Post("/user/register", h.Register)
	r.Post("/user/login", h.Login)
	r.Post("/mfa/login", h.MFALogin)

	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Route("/user", func(r chi.Router) {
			r.Get("/logout", h.Logout)
			r.Post("/logout", h.Logout)
			r.Post("/logout-all", h.LogoutAll)
			r.Get("/session", h.Session)
			r.Get("/profile", h.Profile)
		})

		r.Route("/mfa", func(r chi.Router) {
			r.Post("/setup/generate", h.SetupMFA)
			r.Post("/setup/verify", h.VerifyMFASetup)
			r.Post("/disable", h.DisableMFA)
			r.Get("/status", h.MFAStatus)
			r.Post("/backup-codes/regenerate", h.RegenerateBackupCodes)
		})

		r.Route("/account", func(r chi.Router) {
			r.Use(customers)

			r.Get("/balance", h.GetBalance)
			r.Get("/transactions", h.GetTransactions)
			r.Post("/deposit", h.Deposit)
			r.Post("/recalculate-balance", h.RecalculateBalance)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Use(customers)

			r.Post("/", h.CreatePayment)
			r.Get("/", h.GetPayments)
			r.Get("/{paymentID}", h.GetPayment)
		})

		r.Route("/beneficiaries", func(r chi.Router) {
			r.Use(customers)

			r.Get("/", h.ListBeneficiaries)
			r.Post("/", h.CreateBeneficiary)
			r.Delete("/{id}", h.DeleteBeneficiary)
			r.Post("/{id}/use", h.UseBeneficiary)
		})

		r.Route("/employee", func(r chi.Router) {
			r.Use(staff)

			r.Get("/payments", h.ListAllPayments)
			r.Get("/payments/stats", h.PaymentStats)
			r.Patch("/payments/{paymentID}/status", h.UpdatePaymentStatus)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(admins)

			r.Get("/employees", h.ListEmployees)
			r.Post("/employees", h.CreateEmployee)
			r.Patch("/employees/{id}/role", h.UpdateEmployeeRole)
			r.Delete("/employees/{id}", h.DeleteEmployee)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{Success: false, Message: "Route not found"})
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{Success: false, Message: http.StatusText(http.StatusMethodNotAllowed)})
	})

	return r
}
