package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/conthop/backend/internal/app/auth"
	"github.com/conthop/backend/internal/app/domain/user"
	"github.com/conthop/backend/internal/logging"
)

const testSecret = "middleware-test-secret"

func newTestIssuer(t *testing.T) *auth.TokenIssuer {
	t.Helper()
	issuer, err := auth.NewTokenIssuer(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer() error = %v", err)
	}
	return issuer
}

func issueToken(t *testing.T, issuer *auth.TokenIssuer, u user.User) string {
	t.Helper()
	token, _, err := issuer.Issue(u)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	return token
}

func principalEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.PrincipalFrom(r.Context()) == nil {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.Header().Set("X-User", GetUserID(r.Context()))
		w.WriteHeader(http.StatusOK)
	})
}

func TestNewAuthMiddleware(t *testing.T) {
	issuer := newTestIssuer(t)
	logger := logging.New("test", "info", "json")

	m := NewAuthMiddleware(issuer, logger, []string{"/health", "/metrics"})
	if m == nil {
		t.Fatal("NewAuthMiddleware() returned nil")
	}
	if len(m.skipPaths) != 2 || !m.skipPaths["/health"] {
		t.Errorf("skipPaths = %v", m.skipPaths)
	}
}

func TestAuthMiddleware_Handler_SkipPaths(t *testing.T) {
	m := NewAuthMiddleware(newTestIssuer(t), logging.New("test", "info", "json"), []string{"/health"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	m.Handler(principalEcho()).ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Errorf("status = %d, want handler reached without principal", rr.Code)
	}
}

func TestAuthMiddleware_Handler_ValidToken(t *testing.T) {
	issuer := newTestIssuer(t)
	m := NewAuthMiddleware(issuer, logging.New("test", "info", "json"), nil)
	token := issueToken(t, issuer, user.User{ID: 12, Email: "ada@example.com", Role: user.RoleUser, Status: user.StatusActive})

	req := httptest.NewRequest(http.MethodGet, "/api/user/profile", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	m.Handler(principalEcho()).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("X-User"); got != "12" {
		t.Errorf("user id = %q, want 12", got)
	}
}

func TestAuthMiddleware_Handler_Rejections(t *testing.T) {
	issuer := newTestIssuer(t)
	m := NewAuthMiddleware(issuer, logging.New("test", "info", "json"), nil)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		ID: 12,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	expiredToken, err := expired.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	otherIssuer, err := auth.NewTokenIssuer("a-completely-different-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer() error = %v", err)
	}
	forged := issueToken(t, otherIssuer, user.User{ID: 1, Role: user.RoleAdmin})

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic abc"},
		{"empty bearer", "Bearer "},
		{"garbage", "Bearer not.a.token"},
		{"expired", "Bearer " + expiredToken},
		{"wrong secret", "Bearer " + forged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/user/profile", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			m.Handler(principalEcho()).ServeHTTP(rr, req)
			if rr.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rr.Code)
			}
		})
	}
}

func TestGetUserIDEmpty(t *testing.T) {
	if got := GetUserID(context.Background()); got != "" {
		t.Errorf("GetUserID() = %q, want empty", got)
	}
}
