package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/parquetsql/parquetsql/internal/auth"
	"github.com/parquetsql/parquetsql/internal/executor"
	"github.com/parquetsql/parquetsql/internal/query"
	"github.com/parquetsql/parquetsql/internal/workspace"
)

type openSessionRequest struct {
	Path string `json:"path"`
}

type sessionResponse struct {
	ID           string    `json:"id"`
	Path         string    `json:"path"`
	TableName    string    `json:"table_name"`
	DefaultQuery string    `json:"default_query"`
	OpenedAt     time.Time `json:"opened_at"`
	State        string    `json:"state"`
}

func toSessionResponse(session *workspace.Session) sessionResponse {
	return sessionResponse{
		ID:           session.ID,
		Path:         session.Path,
		TableName:    session.TableName,
		DefaultQuery: session.DefaultQuery(),
		OpenedAt:     session.OpenedAt,
		State:        session.Status().State,
	}
}

func handleListSessions(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireSessions(deps, w, r) || !authorize(w, r, auth.RoleReader) {
		return
	}
	sessions := deps.Sessions.List()
	payload := make([]sessionResponse, 0, len(sessions))
	for _, session := range sessions {
		payload = append(payload, toSessionResponse(session))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": payload})
}

func handleOpenSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireSessions(deps, w, r) || !authorize(w, r, auth.RoleQuery) {
		return
	}
	var request openSessionRequest
	if !decodeBody(w, r, &request, false) {
		return
	}
	if strings.TrimSpace(request.Path) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "PATH_REQUIRED", "path is required", false, nil)
		return
	}

	session, err := deps.Sessions.Open(r.Context(), request.Path)
	if err != nil {
		switch {
		case errors.Is(err, workspace.ErrClosed):
			writeError(r.Context(), w, http.StatusServiceUnavailable, "WORKSPACE_CLOSED", "workspace is shutting down", true, nil)
		case query.IsKind(err, query.LoadFailed):
			writeError(r.Context(), w, http.StatusBadRequest, "LOAD_FAILED", "failed to load file", false, map[string]any{"details": err.Error(), "path": request.Path})
		case query.IsKind(err, query.InitFailed):
			writeError(r.Context(), w, http.StatusInternalServerError, "ENGINE_INIT_FAILED", "failed to open engine", true, map[string]any{"details": err.Error()})
		default:
			writeError(r.Context(), w, http.StatusInternalServerError, "SESSION_OPEN_FAILED", "failed to open session", true, map[string]any{"details": err.Error()})
		}
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(session))
}

func handleGetSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	session, ok := lookupSession(deps, w, r, auth.RoleReader)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func handleCloseSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireSessions(deps, w, r) || !authorize(w, r, auth.RoleAdmin) {
		return
	}
	id := r.PathValue("id")
	if err := deps.Sessions.CloseSession(r.Context(), id); err != nil {
		if errors.Is(err, workspace.ErrSessionNotFound) {
			writeSessionNotFound(w, r, id)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "SESSION_CLOSE_FAILED", "session did not close cleanly", false, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": "closed"})
}

func handleListTables(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	session, ok := lookupSession(deps, w, r, auth.RoleReader)
	if !ok {
		return
	}
	tables, err := session.Tables(r.Context())
	if err != nil {
		if query.IsKind(err, query.NotConnected) {
			writeError(r.Context(), w, http.StatusConflict, "NOT_CONNECTED", "session engine is closed", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "LIST_TABLES_FAILED", "failed to list tables", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func lookupSession(deps Dependencies, w http.ResponseWriter, r *http.Request, role string) (*workspace.Session, bool) {
	if !requireSessions(deps, w, r) || !authorize(w, r, role) {
		return nil, false
	}
	id := r.PathValue("id")
	session, err := deps.Sessions.Get(id)
	if err != nil {
		writeSessionNotFound(w, r, id)
		return nil, false
	}
	return session, true
}

func requireSessions(deps Dependencies, w http.ResponseWriter, r *http.Request) bool {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session workspace is not configured", false, nil)
		return false
	}
	return true
}

func authorize(w http.ResponseWriter, r *http.Request, role string) bool {
	if err := auth.Authorize(r.Context(), role); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", "missing required role "+role, false, nil)
		return false
	}
	return true
}

func writeSessionNotFound(w http.ResponseWriter, r *http.Request, id string) {
	writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "session was not found", false, map[string]any{"session_id": id})
}

// decodeBody decodes a JSON body. With optional set, an empty body leaves dst untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", false, map[string]any{"details": err.Error()})
		return false
	}
	return true
}

func isExecutorClosed(err error) bool {
	return errors.Is(err, executor.ErrClosed)
}
