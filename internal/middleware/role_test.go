package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mmeshcher/bankportal/internal/model"
	"github.com/mmeshcher/bankportal/internal/token"
)

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name       string
		claims     *token.Claims
		wantStatus int
		wantLog    string
	}{
		{
			name:       "granted",
			claims:     &token.Claims{UserID: "e-1", Username: "emp", Role: model.RoleEmployee},
			wantStatus: http.StatusOK,
			wantLog:    "access granted",
		},
		{
			name:       "insufficient role",
			claims:     &token.Claims{UserID: "c-1", Username: "cust", Role: model.RoleCustomer},
			wantStatus: http.StatusForbidden,
			wantLog:    "access denied",
		},
		{
			name:       "no role",
			claims:     &token.Claims{UserID: "c-2", Username: "ghost"},
			wantStatus: http.StatusForbidden,
			wantLog:    "access denied",
		},
		{
			name:       "not authenticated",
			wantStatus: http.StatusUnauthorized,
			wantLog:    "access denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.InfoLevel)
			guard := RequireRole(zap.New(core), model.RoleEmployee, model.RoleAdmin)

			h := guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			r := httptest.NewRequest(http.MethodPatch, "/employee/payments/1/status", nil)
			if tt.claims != nil {
				r = r.WithContext(WithClaims(context.Background(), tt.claims, "raw"))
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
			require.Equal(t, 1, logs.Len())
			entry := logs.All()[0]
			assert.Equal(t, tt.wantLog, entry.Message)
			assert.Equal(t, "/employee/payments/1/status", entry.ContextMap()["path"])
		})
	}
}

func TestRequireRole_DeniedBodyNamesRoles(t *testing.T) {
	guard := RequireRole(zap.NewNop(), model.RoleAdmin)
	h := guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	}))

	r := httptest.NewRequest(http.MethodGet, "/admin/employees", nil)
	r = r.WithContext(WithClaims(r.Context(), &token.Claims{UserID: "e-1", Role: model.RoleEmployee}, "raw"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	require.Equal(t, http.StatusForbidden, w.Code)

	var body struct {
		Success  bool     `json:"success"`
		Message  string   `json:"message"`
		Required []string `json:"required"`
		Current  string   `json:"current"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.False(t, body.Success)
	assert.Equal(t, []string{"Admin"}, body.Required)
	assert.Equal(t, "Employee", body.Current)
}
