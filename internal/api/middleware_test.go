package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testJWTSecret = "test-signing-secret"

func signTestToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestAuthMiddleware(t *testing.T) {
	var gotUserID string
	handler := AuthMiddleware(testJWTSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	validToken := signTestToken(t, testJWTSecret, jwt.MapClaims{
		"sub": "user_42",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	expiredToken := signTestToken(t, testJWTSecret, jwt.MapClaims{
		"sub": "user_42",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	wrongKeyToken := signTestToken(t, "another-secret", jwt.MapClaims{"sub": "user_42"})
	noSubToken := signTestToken(t, testJWTSecret, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	cases := []struct {
		name       string
		header     string
		wantStatus int
		wantUserID string
	}{
		{"valid token", "Bearer " + validToken, http.StatusOK, "user_42"},
		{"missing header", "", http.StatusUnauthorized, ""},
		{"not a bearer token", validToken, http.StatusUnauthorized, ""},
		{"expired token", "Bearer " + expiredToken, http.StatusUnauthorized, ""},
		{"wrong signing key", "Bearer " + wrongKeyToken, http.StatusUnauthorized, ""},
		{"missing sub claim", "Bearer " + noSubToken, http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gotUserID = ""
			req := httptest.NewRequest(http.MethodGet, "/accounts", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if gotUserID != tc.wantUserID {
				t.Errorf("user id = %q, want %q", gotUserID, tc.wantUserID)
			}
		})
	}
}
