package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/parquetsql/parquetsql/internal/auth"
	"github.com/parquetsql/parquetsql/internal/chart"
)

type chartRequest struct {
	ChartID     uint64 `json:"chart_id"`
	Title       string `json:"title"`
	Kind        string `json:"kind"`
	X           string `json:"x"`
	Y           string `json:"y"`
	GroupBy     string `json:"group_by"`
	Aggregation string `json:"aggregation"`
	Bins        int    `json:"bins"`
}

type chartResponse struct {
	ChartID     uint64        `json:"chart_id"`
	Title       string        `json:"title"`
	Kind        string        `json:"kind"`
	X           string        `json:"x,omitempty"`
	Y           string        `json:"y,omitempty"`
	GroupBy     string        `json:"group_by,omitempty"`
	Aggregation string        `json:"aggregation"`
	Bins        int           `json:"bins,omitempty"`
	Series      *chart.Series `json:"series,omitempty"`
}

func toChartResponse(c chart.Chart) chartResponse {
	return chartResponse{
		ChartID:     uint64(c.ID),
		Title:       c.Title,
		Kind:        c.Config.Kind.String(),
		X:           c.Config.X,
		Y:           c.Config.Y,
		GroupBy:     c.Config.GroupBy,
		Aggregation: c.Config.Aggregation.String(),
		Bins:        c.Config.Bins,
	}
}

func handleColumns(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	session, ok := lookupSession(deps, w, r, auth.RoleReader)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": session.ID, "columns": session.Charts().Columns()})
}

func handleListCharts(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	session, ok := lookupSession(deps, w, r, auth.RoleReader)
	if !ok {
		return
	}
	charts := session.Charts().List()
	payload := make([]chartResponse, 0, len(charts))
	for _, c := range charts {
		payload = append(payload, toChartResponse(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": session.ID, "charts": payload})
}

// handleChart configures a chart and returns its rendered series. Without chart_id the
// first chart is used; chart_id 0 with a title adds a new chart.
func handleChart(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	session, ok := lookupSession(deps, w, r, auth.RoleQuery)
	if !ok {
		return
	}
	var request chartRequest
	if !decodeBody(w, r, &request, false) {
		return
	}
	kind, err := chart.ParseKind(request.Kind)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_CHART_KIND", err.Error(), false, map[string]any{"kind": request.Kind})
		return
	}
	if err := chart.ValidateBins(request.Bins); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_BINS", err.Error(), false, map[string]any{
			"bins": request.Bins, "min": chart.MinHistogramBins, "max": chart.MaxHistogramBins,
		})
		return
	}

	charts := session.Charts()
	id := chart.ChartID(request.ChartID)
	switch {
	case id == 0 && request.Title != "":
		id = charts.Add(request.Title).ID
	case id == 0:
		id = charts.List()[0].ID
	}

	cfg := chart.Config{
		Kind:        kind,
		X:           request.X,
		Y:           request.Y,
		GroupBy:     request.GroupBy,
		Aggregation: chart.ParseAggregation(request.Aggregation),
		Bins:        request.Bins,
	}
	if err := charts.Configure(id, cfg); err != nil {
		writeChartError(w, r, id, err)
		return
	}
	series, err := charts.Render(id)
	if err != nil {
		writeChartError(w, r, id, err)
		return
	}
	current, err := charts.Get(id)
	if err != nil {
		writeChartError(w, r, id, err)
		return
	}
	response := toChartResponse(current)
	response.Series = &series
	writeJSON(w, http.StatusOK, response)
}

func handleRemoveChart(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	session, ok := lookupSession(deps, w, r, auth.RoleQuery)
	if !ok {
		return
	}
	raw := r.PathValue("cid")
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_CHART_ID", "chart id must be a positive integer", false, map[string]any{"chart_id": raw})
		return
	}
	id := chart.ChartID(parsed)
	if err := session.Charts().Remove(id); err != nil {
		writeChartError(w, r, id, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": session.ID, "chart_id": parsed, "status": "removed"})
}

func writeChartError(w http.ResponseWriter, r *http.Request, id chart.ChartID, err error) {
	if errors.Is(err, chart.ErrChartNotFound) {
		writeError(r.Context(), w, http.StatusNotFound, "CHART_NOT_FOUND", "chart was not found", false, map[string]any{"chart_id": uint64(id)})
		return
	}
	if errors.Is(err, chart.ErrInvalidBins) {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_BINS", err.Error(), false, nil)
		return
	}
	writeError(r.Context(), w, http.StatusInternalServerError, "CHART_FAILED", "chart request failed", false, map[string]any{"details": err.Error()})
}
