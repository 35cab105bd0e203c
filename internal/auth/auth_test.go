package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestAuthenticator(t *testing.T, password string) *Authenticator {
	t.Helper()
	a, err := NewAuthenticator(Config{JWTSecret: "test-secret", AdminPassword: password, TokenDuration: time.Hour})
	if err != nil {
		t.Fatalf("NewAuthenticator returned error: %v", err)
	}
	return a
}

func TestLoginIssuesValidToken(t *testing.T) {
	a := newTestAuthenticator(t, "s3cret")

	token, expires, err := a.Login("s3cret")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if time.Until(expires) <= 0 {
		t.Errorf("token already expired at %v", expires)
	}

	subject, err := a.Validate(token)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if subject != adminSubject {
		t.Errorf("subject = %q, want %q", subject, adminSubject)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	a := newTestAuthenticator(t, "s3cret")
	if _, _, err := a.Login("guess"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Login error = %v, want ErrInvalidCredentials", err)
	}
}

func TestNewAuthenticatorAcceptsBcryptHash(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	a := newTestAuthenticator(t, hash)
	if _, _, err := a.Login("s3cret"); err != nil {
		t.Fatalf("Login with hashed config returned error: %v", err)
	}
}

func TestValidateRejectsBadTokens(t *testing.T) {
	a := newTestAuthenticator(t, "s3cret")
	other, err := NewAuthenticator(Config{JWTSecret: "other-secret", AdminPassword: "x"})
	if err != nil {
		t.Fatal(err)
	}
	foreign, _, err := other.Issue(adminSubject)
	if err != nil {
		t.Fatal(err)
	}

	expiredAuth := newTestAuthenticator(t, "s3cret")
	expiredAuth.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, err := expiredAuth.Issue(adminSubject)
	if err != nil {
		t.Fatal(err)
	}

	for name, token := range map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": foreign,
		"expired":      expired,
	} {
		if _, err := a.Validate(token); err == nil {
			t.Errorf("Validate(%s) succeeded, want error", name)
		}
	}
}

func TestMiddleware(t *testing.T) {
	a := newTestAuthenticator(t, "s3cret")
	token, _, err := a.Issue(adminSubject)
	if err != nil {
		t.Fatal(err)
	}

	handler := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, ok := SubjectFromContext(r.Context())
		if !ok || subject != adminSubject {
			t.Errorf("subject in context = %q, %v", subject, ok)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"invalid token", "Bearer abc", http.StatusUnauthorized},
		{"valid token", "Bearer " + token, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/status", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}
