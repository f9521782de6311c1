package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/hlog"

	"github.com/isdelr/lab-portal/internal/models"
	"github.com/isdelr/lab-portal/internal/websocket"
)

// AuditQuerier reads the audit trail.
type AuditQuerier interface {
	QueryAudit(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, error)
}

// AuditHandler exposes the audit trail to administrators.
type AuditHandler struct {
	audit AuditQuerier
	hub   *websocket.Hub
}

// NewAuditHandler creates a new AuditHandler. hub may be nil, which disables
// the live stream.
func NewAuditHandler(audit AuditQuerier, hub *websocket.Hub) *AuditHandler {
	return &AuditHandler{audit: audit, hub: hub}
}

// List returns audit entries newest first. Query parameters actor and action
// filter by substring; limit caps the row count (default 50, 0 for all).
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.AuditFilter{
		Actor:  q.Get("actor"),
		Action: q.Get("action"),
		Limit:  models.DefaultAuditLimit,
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}

	entries, err := h.audit.QueryAudit(r.Context(), filter)
	if err != nil {
		serverError(w, r, err, "Failed to query audit log")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(map[string]any{"entries": entries}); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Failed to encode audit entries")
	}
}

// Stream upgrades to a websocket that receives every new audit entry.
func (h *AuditHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		http.Error(w, "Live stream unavailable", http.StatusServiceUnavailable)
		return
	}
	h.hub.ServeWS(w, r, websocket.TopicAudit)
}

// HostStream upgrades to a websocket that receives host resource snapshots.
func (h *AuditHandler) HostStream(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		http.Error(w, "Live stream unavailable", http.StatusServiceUnavailable)
		return
	}
	h.hub.ServeWS(w, r, websocket.TopicHost)
}
