package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mmeshcher/bankportal/internal/model"
	"github.com/mmeshcher/bankportal/internal/token"
)

type touchRecorder struct {
	touched []string
}

func (r *touchRecorder) Touch(_ context.Context, userID string) error {
	r.touched = append(r.touched, userID)
	return nil
}

func issue(t *testing.T, svc *token.Service) string {
	t.Helper()

	raw, _, err := svc.Issue(&model.User{ID: "u-42", Username: "thandi", Role: model.RoleCustomer})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return raw
}

func TestAuthMiddleware_WithValidToken(t *testing.T) {
	svc := token.NewService("test-secret", time.Hour, token.NewMemoryBlacklist())
	sessions := &touchRecorder{}
	m := NewAuthMiddleware(svc, sessions, nil)
	raw := issue(t, svc)

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		claims, ok := GetClaimsFromContext(r.Context())
		if !ok {
			t.Fatalf("claims not in context")
		}
		if claims.UserID != "u-42" {
			t.Fatalf("user id from context = %q, want u-42", claims.UserID)
		}
		if got, _ := GetTokenFromContext(r.Context()); got != raw {
			t.Fatalf("token from context does not match")
		}
	})

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.Header.Set("Authorization", "Bearer "+raw)

	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
	if len(sessions.touched) != 1 || sessions.touched[0] != "u-42" {
		t.Fatalf("session touches = %v, want [u-42]", sessions.touched)
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	svc := token.NewService("test-secret", time.Hour, token.NewMemoryBlacklist())
	m := NewAuthMiddleware(svc, nil, nil)

	revoked := issue(t, svc)
	if err := svc.Invalidate(context.Background(), revoked); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	tests := []struct {
		name   string
		header string
	}{
		{name: "no header", header: ""},
		{name: "wrong scheme", header: "Basic dXNlcjpwYXNz"},
		{name: "garbage", header: "Bearer not-a-token"},
		{name: "revoked", header: "Bearer " + revoked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("next handler should not be called")
			})

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			m.Middleware(next).ServeHTTP(w, r)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "bearer   abc.def.ghi ")
	if got := BearerToken(r); got != "abc.def.ghi" {
		t.Fatalf("BearerToken = %q", got)
	}
}
