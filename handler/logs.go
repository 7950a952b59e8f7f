package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/mewspay/vpos/gateway"
	"github.com/mewspay/vpos/infra/opensearch"
	"github.com/mewspay/vpos/infra/response"
)

// LogQuerier reads back the payment audit index.
type LogQuerier interface {
	GetTransactionLogs(ctx context.Context, kind, transactionID string) ([]opensearch.PaymentLog, error)
	GetRecentErrorLogs(ctx context.Context, kind string, hours int) ([]opensearch.PaymentLog, error)
	GetGatewayStats(ctx context.Context, kind string, hours int) (map[string]any, error)
}

// LogsHandler exposes the payment audit log to operations staff:
// per-transaction exchange history, recent bank errors, and aggregate
// gateway statistics.
type LogsHandler struct {
	logs     LogQuerier
	registry *gateway.Registry
}

// NewLogsHandler creates a new logs handler. A nil querier means the
// audit index is not configured; every endpoint then answers 503.
func NewLogsHandler(logs LogQuerier, registry *gateway.Registry) *LogsHandler {
	return &LogsHandler{
		logs:     logs,
		registry: registry,
	}
}

func (h *LogsHandler) kindParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.logs == nil {
		response.Error(w, http.StatusServiceUnavailable, "Log search is not configured", nil)
		return "", false
	}
	kind := chi.URLParam(r, "kind")
	if !h.registry.Known(gateway.Kind(kind)) {
		response.Error(w, http.StatusBadRequest, "Unknown gateway kind: "+kind, nil)
		return "", false
	}
	return kind, true
}

// hoursParam parses the lookback window, defaulting to 24 hours and
// capping at one week.
func hoursParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("hours")
	if raw == "" {
		return 24, true
	}
	hours, err := strconv.Atoi(raw)
	if err != nil || hours < 1 || hours > 168 {
		response.Error(w, http.StatusBadRequest, "hours must be between 1 and 168", err)
		return 0, false
	}
	return hours, true
}

// GetTransactionLogs returns the exchange history for one transaction
func (h *LogsHandler) GetTransactionLogs(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}
	txnID := chi.URLParam(r, "txnID")
	if txnID == "" {
		response.Error(w, http.StatusBadRequest, "Missing transaction ID", nil)
		return
	}

	logs, err := h.logs.GetTransactionLogs(r.Context(), kind, txnID)
	if err != nil {
		response.Error(w, http.StatusBadGateway, "Failed to search transaction logs", err)
		return
	}
	response.Success(w, http.StatusOK, "Transaction logs retrieved", logs)
}

// GetErrorLogs returns the recent failed exchanges for a gateway
func (h *LogsHandler) GetErrorLogs(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}
	hours, ok := hoursParam(w, r)
	if !ok {
		return
	}

	logs, err := h.logs.GetRecentErrorLogs(r.Context(), kind, hours)
	if err != nil {
		response.Error(w, http.StatusBadGateway, "Failed to search error logs", err)
		return
	}
	response.Success(w, http.StatusOK, "Error logs retrieved", logs)
}

// GetGatewayStats returns aggregate exchange statistics for a gateway
func (h *LogsHandler) GetGatewayStats(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}
	hours, ok := hoursParam(w, r)
	if !ok {
		return
	}

	stats, err := h.logs.GetGatewayStats(r.Context(), kind, hours)
	if err != nil {
		response.Error(w, http.StatusBadGateway, "Failed to aggregate gateway stats", err)
		return
	}
	response.Success(w, http.StatusOK, "Gateway stats retrieved", stats)
}
