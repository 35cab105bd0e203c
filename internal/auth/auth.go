// Package auth issues and checks the bearer tokens that protect the monitor
// status endpoint.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type contextKey string

const subjectContextKey contextKey = "subject"

const (
	issuer       = "collector"
	adminSubject = "admin"
)

// ErrInvalidCredentials is returned by Login for a wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Config holds authentication configuration. AdminPassword may be a bcrypt
// hash or a plain password.
type Config struct {
	JWTSecret     string
	AdminPassword string
	TokenDuration time.Duration
}

// Authenticator checks the admin password and signs tokens.
type Authenticator struct {
	secret       []byte
	passwordHash []byte
	duration     time.Duration
	now          func() time.Time
}

// NewAuthenticator hashes a plain admin password once so every login goes
// through bcrypt.
func NewAuthenticator(cfg Config) (*Authenticator, error) {
	if cfg.JWTSecret == "" || cfg.AdminPassword == "" {
		return nil, errors.New("auth: jwt secret and admin password are required")
	}
	if cfg.TokenDuration <= 0 {
		cfg.TokenDuration = 24 * time.Hour
	}

	hash := cfg.AdminPassword
	if !isBcryptHash(hash) {
		h, err := HashPassword(cfg.AdminPassword)
		if err != nil {
			return nil, fmt.Errorf("hash admin password: %w", err)
		}
		hash = h
	}

	return &Authenticator{
		secret:       []byte(cfg.JWTSecret),
		passwordHash: []byte(hash),
		duration:     cfg.TokenDuration,
		now:          time.Now,
	}, nil
}

// Login returns a signed token when password matches.
func (a *Authenticator) Login(password string) (string, time.Time, error) {
	if bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)) != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return a.Issue(adminSubject)
}

// Issue signs a token for subject.
func (a *Authenticator) Issue(subject string) (string, time.Time, error) {
	now := a.now()
	expires := now.Add(a.duration)
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expires),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    issuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// Validate checks the signature, issuer and expiry of tokenString and returns
// its subject.
func (a *Authenticator) Validate(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(a.now))
	if err != nil {
		return "", err
	}

	if claims, ok := token.Claims.(*jwt.RegisteredClaims); ok && token.Valid {
		return claims.Subject, nil
	}
	return "", fmt.Errorf("invalid token")
}

// Middleware rejects requests without a valid bearer token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		subject, err := a.Validate(parts[1])
		if err != nil {
			http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), subjectContextKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SubjectFromContext returns the subject stored by Middleware.
func SubjectFromContext(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(subjectContextKey).(string)
	return subject, ok
}

// HashPassword hashes a password using bcrypt.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func isBcryptHash(s string) bool {
	_, err := bcrypt.Cost([]byte(s))
	return err == nil
}
