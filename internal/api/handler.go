package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/parquetsql/parquetsql/internal/config"
	"github.com/parquetsql/parquetsql/internal/observability"
	"github.com/parquetsql/parquetsql/internal/workspace"
)

type ReadinessCheck func(ctx context.Context) error

// Sessions is the part of the workspace the HTTP surface drives.
type Sessions interface {
	Open(ctx context.Context, path string) (*workspace.Session, error)
	Get(id string) (*workspace.Session, error)
	List() []*workspace.Session
	CloseSession(ctx context.Context, id string) error
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Sessions          Sessions
	// QueryWaitLimit caps how long a query request may block waiting for completion.
	QueryWaitLimit time.Duration
	UI             http.Handler
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		payload := map[string]any{"status": "ok", "service": cfg.Service.Name}
		if deps.Sessions != nil {
			payload["sessions_open"] = len(deps.Sessions.List())
		}
		writeJSON(w, http.StatusOK, payload)
	})
	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		handleReady(deps, w, r)
	})
	mux.Handle("GET /v1/metrics", promhttp.Handler())

	guard := sessionGuard(cfg, deps)
	for pattern, handle := range map[string]func(Dependencies, http.ResponseWriter, *http.Request){
		"GET /v1/sessions":                      handleListSessions,
		"POST /v1/sessions":                     handleOpenSession,
		"GET /v1/sessions/{id}":                 handleGetSession,
		"DELETE /v1/sessions/{id}":              handleCloseSession,
		"GET /v1/sessions/{id}/tables":          handleListTables,
		"GET /v1/sessions/{id}/columns":         handleColumns,
		"POST /v1/sessions/{id}/query":          handleQuery,
		"GET /v1/sessions/{id}/status":          handleStatus,
		"POST /v1/sessions/{id}/cancel":         handleCancel,
		"GET /v1/sessions/{id}/results":         handleResults,
		"GET /v1/sessions/{id}/charts":          handleListCharts,
		"POST /v1/sessions/{id}/chart":          handleChart,
		"DELETE /v1/sessions/{id}/charts/{cid}": handleRemoveChart,
	} {
		mux.Handle(pattern, guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handle(deps, w, r)
		})))
	}
	if deps.UI != nil {
		mux.Handle("GET /{path...}", deps.UI)
	}

	return observability.Instrument(deps.Logger)(mux)
}

// sessionGuard wraps session routes in the auth middleware when keys are required.
func sessionGuard(cfg config.Config, deps Dependencies) func(http.Handler) http.Handler {
	switch {
	case !cfg.Auth.Required:
		return func(next http.Handler) http.Handler { return next }
	case deps.AuthMiddleware != nil:
		return deps.AuthMiddleware
	}
	if deps.Logger != nil {
		deps.Logger.Error("auth required but auth middleware missing")
	}
	return func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
		})
	}
}

func handleReady(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Readiness != nil {
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// CheckObjectStoreConfig fails when an object store is partially configured.
func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		store := cfg.ObjectStore
		if store.Endpoint == "" && store.Bucket == "" {
			return nil
		}
		if store.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if store.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

// CheckStagingDirectory fails when s3:// objects could not be staged into dir.
func CheckStagingDirectory(dir string) ReadinessCheck {
	return func(_ context.Context) error {
		if dir == "" {
			return nil
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("staging directory: %w", err)
		}
		probe, err := os.CreateTemp(dir, ".ready-*")
		if err != nil {
			return fmt.Errorf("staging directory is not writable: %w", err)
		}
		name := probe.Name()
		_ = probe.Close()
		return os.Remove(name)
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
