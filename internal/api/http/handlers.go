package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"coatline/internal/audit"
	"coatline/internal/auth"
	"coatline/internal/observability/metrics"
	runhistory "coatline/internal/runhistory/domain"
	telemetry "coatline/internal/telemetry/domain"
)

const (
	timeLayout    = time.RFC3339
	maxReportDays = 93
)

// ProductionHandler serves plan-versus-actual queries.
type ProductionHandler struct {
	reader ProductionReader
}

// NewProductionHandler constructs a ProductionHandler.
func NewProductionHandler(reader ProductionReader) *ProductionHandler {
	return &ProductionHandler{reader: reader}
}

// ServeHTTP handles GET /api/v1/production.
func (h *ProductionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.reader == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	line, from, to, ok := parseReportQuery(w, r)
	if !ok {
		return
	}
	rows, err := h.reader.ListProduction(r.Context(), line, from, to)
	if err != nil {
		http.Error(w, "query production error", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []ProductionRow{}
	}
	writeJSON(w, rows)
}

// ExportProductionHandler serves production report exports.
type ExportProductionHandler struct {
	reader      ProductionReader
	auditLogger audit.Logger
}

// ExportOption configures an ExportProductionHandler.
type ExportOption func(*ExportProductionHandler)

// WithAudit records every served export.
func WithAudit(logger audit.Logger) ExportOption {
	return func(h *ExportProductionHandler) {
		h.auditLogger = logger
	}
}

// NewExportProductionHandler constructs an ExportProductionHandler.
func NewExportProductionHandler(reader ProductionReader, opts ...ExportOption) *ExportProductionHandler {
	h := &ExportProductionHandler{reader: reader}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP handles GET /api/v1/exports/production.{csv,xlsx,pdf}.
func (h *ExportProductionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.reader == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	format := strings.TrimPrefix(r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:], "production.")
	contentType, ok := exportContentTypes[format]
	if !ok {
		http.NotFound(w, r)
		return
	}
	line, from, to, ok := parseReportQuery(w, r)
	if !ok {
		return
	}

	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveExport(format, result, time.Since(start))
	}()

	rows, err := h.reader.ListProduction(r.Context(), line, from, to)
	if err != nil {
		result = metrics.ResultError
		http.Error(w, "query production error", http.StatusInternalServerError)
		return
	}
	var body []byte
	switch format {
	case "csv":
		body, err = BuildProductionCSV(rows)
	case "xlsx":
		body, err = BuildProductionXLSX(rows, from, to)
	case "pdf":
		body, err = BuildProductionPDF(rows, from, to)
	}
	if err != nil {
		result = metrics.ResultError
		http.Error(w, "render export error", http.StatusInternalServerError)
		return
	}
	filename := "production_" + from.Format("20060102") + "_" + to.Format("20060102") + "." + format
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	_, _ = w.Write(body)
	h.logAudit(r, line, "production.export", map[string]any{
		"format": format,
		"from":   from.Format(dateLayout),
		"to":     to.Format(dateLayout),
		"rows":   len(rows),
	})
}

func (h *ExportProductionHandler) logAudit(r *http.Request, line, action string, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	payload, _ := json.Marshal(meta)
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "production_report",
		LineCode:     line,
		Metadata:     payload,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}

var exportContentTypes = map[string]string{
	"csv":  "text/csv; charset=utf-8",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"pdf":  "application/pdf",
}

// SnapshotSource returns the latest aggregates.
type SnapshotSource interface {
	All() []telemetry.Aggregate
	Get(line string) (telemetry.Aggregate, bool)
}

// SnapshotsHandler serves the latest per-line aggregates.
type SnapshotsHandler struct {
	source SnapshotSource
}

// NewSnapshotsHandler constructs a SnapshotsHandler.
func NewSnapshotsHandler(source SnapshotSource) *SnapshotsHandler {
	return &SnapshotsHandler{source: source}
}

// ServeHTTP handles GET /api/v1/lines/snapshots and /api/v1/lines/{line}/snapshot.
func (h *SnapshotsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.source == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/lines/")
	if path == "snapshots" {
		all := h.source.All()
		visible := make([]telemetry.Aggregate, 0, len(all))
		for _, agg := range all {
			if auth.LineAllowed(r.Context(), agg.Line) {
				visible = append(visible, agg)
			}
		}
		writeJSON(w, visible)
		return
	}
	line, rest, found := strings.Cut(path, "/")
	if !found || rest != "snapshot" || line == "" {
		http.NotFound(w, r)
		return
	}
	if !auth.LineAllowed(r.Context(), line) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	agg, ok := h.source.Get(line)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, agg)
}

// RuntimeSummarizer summarises run history over a window.
type RuntimeSummarizer interface {
	SummarizeRuntime(ctx context.Context, lineID string, windowStart, windowEnd time.Time) (runhistory.Summary, error)
}

// RuntimeHandler serves per-status runtime minutes.
type RuntimeHandler struct {
	runs RuntimeSummarizer
}

// NewRuntimeHandler constructs a RuntimeHandler.
func NewRuntimeHandler(runs RuntimeSummarizer) *RuntimeHandler {
	return &RuntimeHandler{runs: runs}
}

type runtimeResponse struct {
	Line        string             `json:"line"`
	WindowStart time.Time          `json:"window_start"`
	WindowEnd   time.Time          `json:"window_end"`
	Minutes     map[string]float64 `json:"minutes"`
	Running     float64            `json:"running_minutes"`
	Total       float64            `json:"total_minutes"`
}

// ServeHTTP handles GET /api/v1/runtime.
func (h *RuntimeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.runs == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	line := r.URL.Query().Get("line")
	if line == "" {
		http.Error(w, "line is required", http.StatusBadRequest)
		return
	}
	if !auth.LineAllowed(r.Context(), line) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	from, err := parseTimeQuery(r, "from")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseTimeQuery(r, "to")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}

	summary, err := h.runs.SummarizeRuntime(r.Context(), line, from, to)
	if err != nil {
		http.Error(w, "query runtime error", http.StatusInternalServerError)
		return
	}
	resp := runtimeResponse{
		Line:        line,
		WindowStart: summary.WindowStart,
		WindowEnd:   summary.WindowEnd,
		Minutes:     make(map[string]float64, len(summary.Minutes)),
		Running:     summary.Running(),
		Total:       summary.Total(),
	}
	for status, minutes := range summary.Minutes {
		resp.Minutes[string(status)] = minutes
	}
	writeJSON(w, resp)
}

func parseReportQuery(w http.ResponseWriter, r *http.Request) (string, time.Time, time.Time, bool) {
	line := r.URL.Query().Get("line")
	if line != "" && !auth.LineAllowed(r.Context(), line) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return "", time.Time{}, time.Time{}, false
	}
	if line == "" && auth.HasLineScope(r.Context()) {
		http.Error(w, "line is required", http.StatusBadRequest)
		return "", time.Time{}, time.Time{}, false
	}
	from, err := parseDateQuery(r, "from")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", time.Time{}, time.Time{}, false
	}
	to, err := parseDateQuery(r, "to")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", time.Time{}, time.Time{}, false
	}
	if to.Before(from) {
		http.Error(w, "to must not be before from", http.StatusBadRequest)
		return "", time.Time{}, time.Time{}, false
	}
	if to.Sub(from) > maxReportDays*24*time.Hour {
		http.Error(w, "range too large", http.StatusBadRequest)
		return "", time.Time{}, time.Time{}, false
	}
	return line, from, to, true
}

func parseDateQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, errors.New(key + " is required")
	}
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, errors.New(key + " must be YYYY-MM-DD")
	}
	return parsed, nil
}

func parseTimeQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, errors.New(key + " is required")
	}
	parsed, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, errors.New(key + " must be RFC3339")
	}
	return parsed.UTC(), nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(timeLayout)
}

func formatInt64(value int64) string {
	return strconv.FormatInt(value, 10)
}
