// Package httpx exposes the packing session engine to rendering clients:
// JSON endpoints for opening orders, handling scans, and committing
// completion, plus a WebSocket stream of session snapshots.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/avelez/packstation/internal/packlog"
	"github.com/avelez/packstation/internal/session"
)

// ActivityLister is the read side of the packing activity log.
// Satisfied by the sqlite repository; may be nil when no log is configured.
type ActivityLister interface {
	ListByOrder(ctx context.Context, orderID string) ([]*packlog.Entry, error)
}

// Handler handles incoming HTTP requests for one terminal's packing session.
type Handler struct {
	sessions *session.Manager
	activity ActivityLister // nil-safe: activity endpoint returns empty
	hub      *Hub
}

// NewHandler wires the handler to the session manager and, optionally, the
// activity log and a websocket hub.
func NewHandler(sessions *session.Manager, activity ActivityLister, hub *Hub) *Handler {
	return &Handler{sessions: sessions, activity: activity, hub: hub}
}

// OpenOrder resolves the posted token and installs the order as the active
// session.
func (h *Handler) OpenOrder(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "token_required", "")
		return
	}

	res, err := h.sessions.OpenOrder(r.Context(), req.Token)
	if err != nil {
		writeError(w, http.StatusBadGateway, "ledger_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleScan classifies and dispatches one scanned token. Every operational
// outcome — including misses and rejections — is a 200 with a tagged result;
// the operator recovers by re-scanning, nothing here is fatal.
func (h *Handler) HandleScan(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "token_required", "")
		return
	}

	res, err := h.sessions.HandleScan(r.Context(), req.Token)
	if err != nil {
		writeError(w, http.StatusBadGateway, "ledger_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetSession returns the read-only session snapshot for rendering.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessions.Snapshot())
}

// CloseSession discards the local session state. The order is not mutated.
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	h.sessions.Close()
	w.WriteHeader(http.StatusNoContent)
}

// CompletePacking commits the terminal packed transition.
func (h *Handler) CompletePacking(w http.ResponseWriter, r *http.Request) {
	// The snapshot is taken up front: a successful commit closes the session.
	orderID := h.sessions.Snapshot().OrderID

	entry, err := h.sessions.CompletePacking(r.Context())
	switch {
	case errors.Is(err, session.ErrNoSession):
		writeError(w, http.StatusConflict, "no_active_order", "")
	case errors.Is(err, session.ErrIncomplete):
		writeError(w, http.StatusConflict, "incomplete", "not every item is fully verified")
	case errors.Is(err, session.ErrCompletedElsewhere):
		writeError(w, http.StatusConflict, "completed_elsewhere", err.Error())
	case err != nil:
		// The commit was not acknowledged; the session is untouched and the
		// operator should retry.
		slog.ErrorContext(r.Context(), "completion commit failed", "error", err)
		writeError(w, http.StatusBadGateway, "commit_failed", err.Error())
	default:
		writeJSON(w, http.StatusOK, CompleteResponse{
			OrderID:   orderID,
			Status:    string(entry.Status),
			Actor:     entry.Actor,
			Note:      entry.Note,
			Timestamp: entry.Timestamp,
		})
	}
}

// GetActivity lists the packing activity recorded for an order.
func (h *Handler) GetActivity(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "order_id_required", "")
		return
	}

	if h.activity == nil {
		writeJSON(w, http.StatusOK, []ActivityEntryResponse{})
		return
	}

	entries, err := h.activity.ListByOrder(r.Context(), orderID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "activity_error", err.Error())
		return
	}

	out := make([]ActivityEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = ActivityEntryResponse{
			ID:         e.ID,
			OrderID:    e.OrderID,
			ItemID:     e.ItemID,
			Quantity:   e.Quantity,
			Event:      string(e.Event),
			Actor:      e.Actor,
			TraceID:    e.TraceID,
			OccurredAt: e.OccurredAt,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: msg,
	})
}
