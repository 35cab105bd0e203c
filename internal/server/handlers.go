package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/auth"
	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/ingestion"
	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/metrics"
)

// StatusProvider returns the live engine counters.
type StatusProvider interface {
	Snapshot() ingestion.Snapshot
}

// TokenRequest is the body of POST /token.
type TokenRequest struct {
	Password string `json:"password"`
}

// TokenResponse is returned by POST /token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HealthCheck is a named dependency probe reported by /healthz.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type handler struct {
	status StatusProvider
	auth   *auth.Authenticator
	checks []HealthCheck
	logger *slog.Logger
}

// NewHandler builds the monitor routes:
//
//	GET  /healthz  liveness plus the given dependency checks
//	GET  /metrics  Prometheus exposition
//	POST /token    exchange the admin password for a bearer token
//	GET  /status   engine snapshot, bearer token required
func NewHandler(status StatusProvider, authenticator *auth.Authenticator, collector *metrics.Collector, logger *slog.Logger, checks ...HealthCheck) http.Handler {
	h := &handler{status: status, auth: authenticator, checks: checks, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.healthz)
	mux.Handle("/metrics", collector.Handler())
	mux.HandleFunc("/token", h.token)
	mux.Handle("/status", authenticator.Middleware(http.HandlerFunc(h.snapshot)))

	return collector.InstrumentHandler(mux)
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := map[string]any{"status": "ok"}
	code := http.StatusOK
	if len(h.checks) > 0 {
		results := make(map[string]string, len(h.checks))
		for _, c := range h.checks {
			if err := c.Check(r.Context()); err != nil {
				h.logger.Warn("health check failed", "check", c.Name, "error", err)
				results[c.Name] = err.Error()
				resp["status"] = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			results[c.Name] = "ok"
		}
		resp["checks"] = results
	}
	h.writeJSON(w, code, resp)
}

func (h *handler) token(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req TokenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<12)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	token, expires, err := h.auth.Login(req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		h.logger.Warn("failed login attempt", "ip", r.RemoteAddr)
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.logger.Error("failed to generate token", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, TokenResponse{Token: token, ExpiresAt: expires})
}

func (h *handler) snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.writeJSON(w, http.StatusOK, h.status.Snapshot())
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
