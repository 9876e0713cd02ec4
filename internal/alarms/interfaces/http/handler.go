package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	alarms "coatline/internal/alarms/domain"
	"coatline/internal/auth"
)

const maxListLimit = 500

// AlarmLister reads recent alarm rows.
type AlarmLister interface {
	Recent(ctx context.Context, lineNo string, limit int) ([]alarms.Event, error)
}

// Handler provides alarm HTTP endpoints.
type Handler struct {
	alarms AlarmLister
}

// NewHandler constructs a handler.
func NewHandler(lister AlarmLister) (*Handler, error) {
	if lister == nil {
		return nil, errors.New("alarms handler: nil lister")
	}
	return &Handler{alarms: lister}, nil
}

// ServeHTTP handles /api/v1/alarms.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/v1/alarms" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	line := r.URL.Query().Get("line")
	if line != "" && !auth.LineAllowed(r.Context(), line) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	// An empty line lists every line, which a scoped caller may not do.
	if line == "" && auth.HasLineScope(r.Context()) {
		http.Error(w, "line is required", http.StatusBadRequest)
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		if parsed > maxListLimit {
			parsed = maxListLimit
		}
		limit = parsed
	}

	list, err := h.alarms.Recent(r.Context(), line, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []alarms.Event{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}
