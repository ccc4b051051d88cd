package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/parquetsql/parquetsql/internal/auth"
	"github.com/parquetsql/parquetsql/internal/executor"
	"github.com/parquetsql/parquetsql/internal/query"
	"github.com/parquetsql/parquetsql/internal/results"
)

type queryRequest struct {
	SQL string `json:"sql"`
	// WaitMs makes the request block until the query completes or the wait elapses.
	WaitMs int `json:"wait_ms"`
}

type completionResponse struct {
	SessionID       string `json:"session_id"`
	State           string `json:"state"`
	Success         bool   `json:"success"`
	Error           string `json:"error,omitempty"`
	TotalRows       int    `json:"total_rows"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
}

type cancelRequest struct {
	Interrupt bool `json:"interrupt"`
}

type resultsResponse struct {
	SessionID   string   `json:"session_id"`
	Columns     []string `json:"columns"`
	Rows        [][]any  `json:"rows"`
	Page        int      `json:"page"`
	PageSize    int      `json:"page_size"`
	TotalPages  int      `json:"total_pages"`
	TotalRows   int      `json:"total_rows"`
	Display     bool     `json:"display"`
	ExecutionMs int64    `json:"execution_time_ms"`
}

func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	session, ok := lookupSession(deps, w, r, auth.RoleQuery)
	if !ok {
		return
	}
	var request queryRequest
	if !decodeBody(w, r, &request, true) {
		return
	}
	sqlText := request.SQL
	if strings.TrimSpace(sqlText) == "" {
		sqlText = session.DefaultQuery()
	}
	if request.WaitMs < 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_WAIT", "wait_ms must be >= 0", false, nil)
		return
	}

	var events <-chan executor.Event
	if request.WaitMs > 0 {
		ch, unsubscribe := session.Subscribe()
		defer unsubscribe()
		events = ch
	}

	if err := session.Execute(sqlText); err != nil {
		switch {
		case errors.Is(err, executor.ErrAlreadyExecuting):
			writeError(r.Context(), w, http.StatusConflict, "QUERY_IN_FLIGHT", "a query is already executing for this session", true, map[string]any{"session_id": session.ID})
		case isExecutorClosed(err):
			writeError(r.Context(), w, http.StatusConflict, "SESSION_CLOSED", "session is closed", false, map[string]any{"session_id": session.ID})
		default:
			writeError(r.Context(), w, http.StatusInternalServerError, "QUERY_DISPATCH_FAILED", "failed to dispatch query", true, map[string]any{"details": err.Error()})
		}
		return
	}

	if events == nil {
		writeJSON(w, http.StatusAccepted, map[string]any{"session_id": session.ID, "state": executor.Executing.String()})
		return
	}

	wait := time.Duration(request.WaitMs) * time.Millisecond
	if deps.QueryWaitLimit > 0 && wait > deps.QueryWaitLimit {
		wait = deps.QueryWaitLimit
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case event, open := <-events:
			if !open {
				writeError(r.Context(), w, http.StatusConflict, "SESSION_CLOSED", "session closed while the query was running", false, map[string]any{"session_id": session.ID})
				return
			}
			if event.Kind != executor.EventCompleted {
				continue
			}
			writeJSON(w, http.StatusOK, completionResponse{
				SessionID:       session.ID,
				State:           event.State.String(),
				Success:         event.Success,
				Error:           event.Error,
				TotalRows:       event.Result.TotalRows,
				ExecutionTimeMs: event.Result.ExecutionTimeMs(),
			})
			return
		case <-timer.C:
			writeJSON(w, http.StatusAccepted, map[string]any{"session_id": session.ID, "state": executor.Executing.String()})
			return
		case <-r.Context().Done():
			return
		}
	}
}

func handleStatus(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	session, ok := lookupSession(deps, w, r, auth.RoleReader)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session.Status())
}

func handleCancel(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	session, ok := lookupSession(deps, w, r, auth.RoleQuery)
	if !ok {
		return
	}
	var request cancelRequest
	if !decodeBody(w, r, &request, true) {
		return
	}
	executing := session.Cancel(request.Interrupt)
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": session.ID,
		"executing":  executing,
		"interrupt":  request.Interrupt,
	})
}

func handleResults(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	session, ok := lookupSession(deps, w, r, auth.RoleReader)
	if !ok {
		return
	}
	values := r.URL.Query()

	size := 0
	if raw := values.Get("page_size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_PAGE_SIZE", "page_size must be a positive integer", false, map[string]any{"page_size": raw})
			return
		}
		size = parsed
	}
	page := -1
	if raw := values.Get("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_PAGE", "page must be an integer", false, map[string]any{"page": raw})
			return
		}
		if parsed < 0 {
			writeError(r.Context(), w, http.StatusBadRequest, "PAGE_OUT_OF_RANGE", "page is out of range", false, map[string]any{"page": parsed})
			return
		}
		page = parsed
	}
	view, ok := session.Model().Page(page, size)
	if !ok {
		writeError(r.Context(), w, http.StatusBadRequest, "PAGE_OUT_OF_RANGE", "page is out of range", false, map[string]any{
			"page":        page,
			"total_pages": view.TotalPages,
		})
		return
	}
	display := values.Get("display") == "true"

	encoded := make([][]any, 0, len(view.Rows))
	for _, row := range view.Rows {
		cells := make([]any, len(row))
		for i, cell := range row {
			if display {
				cells[i] = results.FormatCell(cell)
				continue
			}
			cells[i] = cellJSON(cell)
		}
		encoded = append(encoded, cells)
	}

	writeJSON(w, http.StatusOK, resultsResponse{
		SessionID:   session.ID,
		Columns:     view.Columns,
		Rows:        encoded,
		Page:        view.Page,
		PageSize:    view.PageSize,
		TotalPages:  view.TotalPages,
		TotalRows:   view.TotalRows,
		Display:     display,
		ExecutionMs: session.Status().ExecutionTimeMs,
	})
}

// cellJSON maps a cell onto a JSON value. Non-finite doubles become strings.
func cellJSON(cell query.CellValue) any {
	switch cell.Kind() {
	case query.KindNull:
		return nil
	case query.KindBool:
		v, _ := cell.AsBool()
		return v
	case query.KindInt64:
		v, _ := cell.AsInt64()
		return v
	case query.KindDouble:
		v, _ := cell.AsDouble()
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return cell.String()
		}
		return v
	case query.KindText:
		v, _ := cell.AsText()
		return v
	case query.KindDateTime:
		v, _ := cell.AsDateTime()
		return v.Format(time.RFC3339Nano)
	default:
		return cell.String()
	}
}
